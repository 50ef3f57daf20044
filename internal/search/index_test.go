package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) *Index {
	t.Helper()

	idx, err := Build([]Document{
		{
			ID:      "hello",
			Kind:    "post",
			Title:   "Hello World",
			Content: "Welcome to the blog. Gardening notes follow.",
			Tags:    []string{"intro"},
			Path:    "/posts/hello",
			Date:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:      "about",
			Kind:    "page",
			Title:   "About",
			Content: "I write about compilers and gardens.",
			Path:    "/about",
		},
		{
			ID:      "saga/entry/1",
			Kind:    "entry",
			Title:   "Saga: Part 1",
			Content: "Compilers are fun.",
			Path:    "/posts/saga/entry/1",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	return idx
}

func hitIDs(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.ID)
	}

	return out
}

func TestSearch(t *testing.T) {
	idx := buildSample(t)
	assert.Equal(t, 3, idx.Len())

	t.Run("stemmed content match", func(t *testing.T) {
		hits, err := idx.Search("garden", 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"hello", "about"}, hitIDs(hits))
	})

	t.Run("stored fields come back", func(t *testing.T) {
		hits, err := idx.Search("compilers", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)

		var entry Hit
		for _, h := range hits {
			if h.ID == "saga/entry/1" {
				entry = h
			}
		}
		assert.Equal(t, "entry", entry.Kind)
		assert.Equal(t, "/posts/saga/entry/1", entry.Path)
		assert.Equal(t, "Saga: Part 1", entry.Title)
	})

	t.Run("limit", func(t *testing.T) {
		hits, err := idx.Search("garden", 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("empty query", func(t *testing.T) {
		hits, err := idx.Search("", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("no match", func(t *testing.T) {
		hits, err := idx.Search("zeppelin", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	hits, err := idx.Search("anything", 5)
	assert.NoError(t, err)
	assert.Nil(t, hits)
	assert.Equal(t, 0, idx.Len())
	assert.NoError(t, idx.Close())
}
