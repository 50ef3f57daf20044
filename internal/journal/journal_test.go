package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &Record{
		Generation: 1,
		Trigger:    "startup",
		Outcome:    OutcomePublished,
		StartedAt:  base,
		Duration:   42 * time.Millisecond,
		Files:      3,
		Posts:      2,
		Pages:      1,
	}
	require.NoError(t, j.Record(ctx, first))
	assert.NotEmpty(t, first.ID)

	require.NoError(t, j.Record(ctx, &Record{
		Generation: 1,
		Trigger:    "watch",
		Outcome:    OutcomeFailed,
		StartedAt:  base.Add(time.Minute),
		Error:      "content root unreadable",
	}))

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, OutcomeFailed, recent[0].Outcome)
	assert.Equal(t, "content root unreadable", recent[0].Error)
	assert.Equal(t, "watch", recent[0].Trigger)

	got := recent[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, uint64(1), got.Generation)
	assert.True(t, base.Equal(got.StartedAt))
	assert.Equal(t, 42*time.Millisecond, got.Duration)
	assert.Equal(t, 3, got.Files)
	assert.Empty(t, got.Error)

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), &Record{Trigger: "startup", Outcome: OutcomePublished, StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	n, err := j.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInMemory(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record(context.Background(), &Record{Trigger: "manual", Outcome: OutcomePublished, StartedAt: time.Now()}))
	recent, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
