package pipeline

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/snapshot"
)

const root = "/site"

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	for name, body := range files {
		full := path.Join(root, name)
		require.NoError(t, fs.MkdirAll(path.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(fs, full, []byte(body), 0o644))
	}

	return fs
}

func run(t *testing.T, fs afero.Fs, opts Options) (*snapshot.Snapshot, *Report) {
	t.Helper()
	opts.Root = content.ContentRoot{Path: root}
	snap, report, err := New(fs, opts, nil).Run(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, snap)

	return snap, report
}

func TestRunAboutAndHello(t *testing.T) {
	fs := newFs(t, map[string]string{
		"about.md":            "---\ntitle: About\n---\nAbout me.\n",
		"2024-01-02-hello.md": "---\ntitle: Hello\ntags: [intro]\n---\nHi there.\n",
	})

	snap, report := run(t, fs, Options{Feed: index.FeedOptions{BaseURL: "https://example.com"}})
	assert.Equal(t, 2, report.Files)
	assert.Zero(t, report.Issues.Len())

	page, ok := snap.Page("about")
	require.True(t, ok)
	assert.Equal(t, "About", page.Title)
	assert.Contains(t, page.HTML, "About me.")

	post, ok := snap.Post("hello")
	require.True(t, ok)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, []string{"intro"}, post.Tags)
	require.Len(t, post.Entries, 1)
	assert.Equal(t, "hello", post.Entries[0].Slug)

	tagged := snap.Tagged("intro")
	require.Len(t, tagged, 1)
	assert.Equal(t, "hello", tagged[0].Slug)

	require.Len(t, snap.Feed(), 1)
	assert.Equal(t, "https://example.com/posts/hello", snap.Feed()[0].Link)
	assert.Equal(t, []string{"about", "hello"}, snap.Slugs())
}

func TestRunCutMarker(t *testing.T) {
	fs := newFs(t, map[string]string{
		"2024-01-02-cut.md": "---\ntitle: Cut\n---\nFirst para.\n\n<!-- cut -->\n\nSecond para.\n",
	})

	snap, _ := run(t, fs, Options{})
	post, ok := snap.Post("cut")
	require.True(t, ok)
	assert.Equal(t, "<p>First para.</p>", post.Entries[0].Summary)
	assert.Contains(t, post.Entries[0].HTML, "Second para.")
}

func TestRunDrafts(t *testing.T) {
	files := map[string]string{
		"2024-01-02-wip.md":  "---\ntitle: WIP\ndraft: true\n---\nNot yet.\n",
		"2024-01-01-done.md": "---\ntitle: Done\n---\nShipped.\n",
	}

	snap, _ := run(t, newFs(t, files), Options{})
	_, ok := snap.Lookup("wip")
	assert.False(t, ok)
	assert.Len(t, snap.Listing(0, 0), 1)

	snap, _ = run(t, newFs(t, files), Options{IncludeDrafts: true})
	_, ok = snap.Lookup("wip")
	assert.True(t, ok)
	assert.Len(t, snap.Listing(0, 0), 2)
}

func TestRunThread(t *testing.T) {
	body := strings.Join([]string{
		"---",
		"title: Saga",
		"tags: [long-form]",
		"---",
		"## Example",
		"Opening.",
		"",
		"--- entry",
		"date: 2024-01-03",
		"---",
		"## Example",
		"Middle.",
		"",
		"--- entry",
		"date: 2024-01-07",
		"title: Finale",
		"---",
		"## Wrap up",
		"End.",
		"",
	}, "\n")
	fs := newFs(t, map[string]string{"2024-01-01-saga.md": body})

	snap, _ := run(t, fs, Options{})
	post, ok := snap.Post("saga")
	require.True(t, ok)
	require.Len(t, post.Entries, 3)

	for i, e := range post.Entries {
		assert.Equal(t, i, e.Ordinal)
		assert.Equal(t, content.EntrySlug("saga", i), e.Slug)
		if i > 0 {
			assert.False(t, e.Date.Before(post.Entries[i-1].Date))
		}
	}
	assert.Equal(t, "Saga", post.Entries[1].Title)
	assert.Equal(t, "Finale", post.Entries[2].Title)

	assert.Equal(t, "example", post.Entries[0].Headings[0].ID)
	assert.Equal(t, "example-1", post.Entries[1].Headings[0].ID)

	require.Len(t, post.TOC, 3)
	for i, group := range post.TOC {
		assert.Equal(t, content.EntryAnchor(i), group.ID)
		assert.Len(t, group.Children, 1)
	}

	assert.Len(t, snap.Chrono(0, 0), 3)
	assert.Equal(t, "https://x.test/posts/saga/entry/2",
		index.NewFeedItem(post, "https://x.test").Link)
}

var idAttr = regexp.MustCompile(`id="([^"]+)"`)

func TestRunThreadFootnotesAreDistinct(t *testing.T) {
	body := strings.Join([]string{
		"---", "title: Notes", "---",
		"First claim.[^1]", "",
		"[^1]: First source.", "",
		"--- entry", "date: 2024-01-03", "---",
		"Second claim.[^1]", "",
		"[^1]: Second source.", "",
	}, "\n")
	fs := newFs(t, map[string]string{
		"2024-01-01-notes.md": body,
		"2024-01-02-solo.md":  "---\ntitle: Solo\n---\nOne.[^1]\n\n[^1]: Only source.\n",
	})

	snap, _ := run(t, fs, Options{})
	post, ok := snap.Post("notes")
	require.True(t, ok)
	require.Len(t, post.Entries, 2)

	seen := make(map[string]int)
	for i, e := range post.Entries {
		seen[content.EntryAnchor(i)]++
		for _, m := range idAttr.FindAllStringSubmatch(e.HTML, -1) {
			seen[m[1]]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %q repeated on the thread page", id)
	}

	second := post.Entries[1].HTML
	assert.Contains(t, second, `id="entry-1-fn:1"`)
	assert.Contains(t, second, `href="#entry-1-fn:1"`)
	assert.Contains(t, second, `href="#entry-1-fnref:1"`)
	assert.NotContains(t, second, `"#fn:1"`)

	solo, ok := snap.Post("solo")
	require.True(t, ok)
	assert.Contains(t, solo.Entries[0].HTML, `id="fn:1"`)
}

func TestRunFileScopedErrors(t *testing.T) {
	fs := newFs(t, map[string]string{
		"2024-01-01-untitled.md": "---\ntags: [x]\n---\nNo title.\n",
		"2024-01-02-broken.md":   "---\ntitle: [unclosed\n---\nBody.\n",
		"2024-01-03-ok.md":       "---\ntitle: OK\n---\nFine.\n",
		"dup.md":                 "---\nslug: ok\n---\nPage with a taken slug.\n",
	})

	snap, report := run(t, fs, Options{})

	_, ok := snap.Post("ok")
	assert.True(t, ok)
	assert.Len(t, snap.Listing(0, 0), 1)

	require.Len(t, report.Issues.Errors(), 2)
	for _, issue := range report.Issues.Errors() {
		assert.Equal(t, errors.ErrCodeFrontMatter, issue.Code)
	}
	require.Len(t, report.Issues.Warnings(), 1)
	assert.Equal(t, errors.ErrCodeDuplicateSlug, report.Issues.Warnings()[0].Code)
	assert.Equal(t, "dup.md", report.Issues.Warnings()[0].File)

	assert.Len(t, snap.Warnings(), 3)
}

func TestRunRootUnreadable(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap, _, err := New(fs, Options{Root: content.ContentRoot{Path: "/missing"}}, nil).
		Run(context.Background(), 1)

	assert.Nil(t, snap)
	assert.ErrorIs(t, err, errors.ErrRootUnreadable)
}

func TestRunCancelled(t *testing.T) {
	fs := newFs(t, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, _, err := New(fs, Options{Root: content.ContentRoot{Path: root}}, nil).Run(ctx, 1)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIsIdempotent(t *testing.T) {
	files := map[string]string{
		"_index.md":             "# Welcome\n",
		"about.md":              "---\ntitle: About\n---\n## Me\n",
		"notes/2024-02-01-a.md": "---\ntitle: A\ntags: [Go, notes]\n---\n```go\nfunc a() {}\n```\n",
	}
	for i := 0; i < 10; i++ {
		files[fmt.Sprintf("2024-03-%02d-p%d.md", i+1, i)] = fmt.Sprintf("---\ntitle: P%d\n---\nBody %d.\n", i, i)
	}
	fs := newFs(t, files)

	p := New(fs, Options{Root: content.ContentRoot{Path: root}, Workers: 4}, nil)
	first, _, err := p.Run(context.Background(), 1)
	require.NoError(t, err)
	second, _, err := p.Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, first.Slugs(), second.Slugs())
	assert.Equal(t, first.Stats(), second.Stats())
	assert.Equal(t, first.Tags(), second.Tags())
	assert.Equal(t, first.Feed(), second.Feed())

	for _, slug := range first.Slugs() {
		a, okA := first.Lookup(slug)
		b, okB := second.Lookup(slug)
		require.Equal(t, okA, okB, slug)
		if okA {
			assert.Equal(t, a, b, slug)
		}
	}

	post, ok := first.Post("notes/a")
	require.True(t, ok)
	assert.Equal(t, []string{"go", "notes"}, post.Tags)
}

func TestRunSearch(t *testing.T) {
	fs := newFs(t, map[string]string{
		"2024-01-02-garden.md": "---\ntitle: Garden\n---\nTomatoes and basil.\n",
		"about.md":             "About me.\n",
	})

	snap, _ := run(t, fs, Options{Search: true})
	hits, err := snap.Search("tomatoes", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "garden", hits[0].ID)
}
