package server

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quire/internal/config"
	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/pipeline"
	"github.com/conneroisu/quire/internal/reload"
	"github.com/conneroisu/quire/internal/snapshot"
	"github.com/conneroisu/quire/internal/watcher"
)

type fakeSource struct {
	snap   atomic.Pointer[snapshot.Snapshot]
	status reload.Status
	broker *reload.Broker
}

func (f *fakeSource) Current() *snapshot.Snapshot { return f.snap.Load() }

func (f *fakeSource) Status() reload.Status { return f.status }

func (f *fakeSource) Subscribe() (<-chan reload.Event, func()) { return f.broker.Subscribe() }

var siteFiles = map[string]string{
	"_index.md":           "---\ntitle: Welcome\n---\nHello from the home page.\n",
	"about.md":            "---\ntitle: About\n---\nAbout me.\n",
	"2024-01-02-hello.md": "---\ntitle: Hello\ntags: [intro]\n---\nHi there, searchable words.\n",
	"2024-01-01-saga.md": strings.Join([]string{
		"---", "title: Saga", "tags: [long-form]", "---",
		"Opening.", "",
		"--- entry", "date: 2024-01-05", "title: Sequel", "---",
		"Second part.", "",
	}, "\n"),
	"css/site.css": "body{}",
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080, BaseURL: "https://blog.example.com", StaticPath: "/static"},
		Render: config.RenderConfig{HighlightStyle: "github"},
		Feed:   config.FeedConfig{Title: "Test Blog", Description: "Notes", MaxItems: 20},
		Watch:  config.WatchConfig{Enabled: true},
		Search: config.SearchConfig{Enabled: true},
	}
}

func buildSnapshot(t *testing.T, generation uint64) (*snapshot.Snapshot, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range siteFiles {
		dir := "/site"
		if strings.HasPrefix(name, "css/") {
			dir = "/static"
			name = strings.TrimPrefix(name, "css/")
		}
		full := path.Join(dir, name)
		require.NoError(t, fs.MkdirAll(path.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(fs, full, []byte(body), 0o644))
	}

	p := pipeline.New(fs, pipeline.Options{
		Root:   content.ContentRoot{Path: "/site"},
		Feed:   index.FeedOptions{BaseURL: "https://blog.example.com"},
		Search: true,
	}, nil)
	snap, _, err := p.Run(context.Background(), generation)
	require.NoError(t, err)

	return snap, fs
}

func newTestServer(t *testing.T) (*Server, *fakeSource) {
	t.Helper()
	snap, fs := buildSnapshot(t, 3)
	source := &fakeSource{broker: reload.NewBroker(4)}
	source.snap.Store(snap)
	source.status = reload.Status{State: reload.StateIdle, Generation: 3, Runs: 1, LastSuccess: time.Now()}

	srv, err := New(testConfig(), source, fs, nil)
	require.NoError(t, err)

	return srv, source
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name   string
		target string
		status int
		want   []string
	}{
		{"home", "/", http.StatusOK, []string{"Hello from the home page.", "Recent posts", `href="/posts/hello"`}},
		{"listing", "/posts", http.StatusOK, []string{`href="/posts/hello"`, `href="/posts/saga/entry/1"`}},
		{"listing past the end", "/posts?page=9", http.StatusNotFound, []string{"Not found"}},
		{"single post", "/posts/hello", http.StatusOK, []string{"<h1>Hello</h1>", "Hi there"}},
		{"thread", "/posts/saga", http.StatusOK, []string{`id="entry-0"`, `id="entry-1"`, "Second part."}},
		{"thread entry", "/posts/saga/entry/1", http.StatusOK, []string{"Second part.", `rel="prev"`}},
		{"missing entry", "/posts/saga/entry/7", http.StatusNotFound, []string{"/posts/saga/entry/7"}},
		{"missing post", "/posts/nope", http.StatusNotFound, []string{"Not found"}},
		{"chrono", "/chrono", http.StatusOK, []string{"Saga: Sequel", `<time datetime="2024-01-05">`}},
		{"tags", "/tags", http.StatusOK, []string{`<a href="/tagged/intro">intro</a> (1)`, "long-form"}},
		{"tagged", "/tagged/Intro", http.StatusOK, []string{`href="/posts/hello"`}},
		{"unknown tag", "/tagged/zzz", http.StatusNotFound, nil},
		{"search", "/search?q=searchable", http.StatusOK, []string{`href="/posts/hello"`, "<mark>searchable</mark>"}},
		{"page", "/about", http.StatusOK, []string{"<h1>About</h1>", "About me."}},
		{"missing page", "/nowhere", http.StatusNotFound, []string{"/nowhere"}},
		{"static", "/static/site.css", http.StatusOK, []string{"body{}"}},
		{"static missing", "/static/none.css", http.StatusNotFound, nil},
		{"highlight css", "/highlight.css", http.StatusOK, []string{".chroma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			for _, want := range tt.want {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestPagesCarryLiveReloadGeneration(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/about")

	assert.Contains(t, rec.Body.String(), "var generation = 3;")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestFeedRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/rss.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get("Content-Type"))

	var doc struct {
		Channel struct {
			Title string `xml:"title"`
			Items []struct {
				Link string `xml:"link"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Test Blog", doc.Channel.Title)
	require.Len(t, doc.Channel.Items, 2)
	assert.Equal(t, "https://blog.example.com/posts/saga/entry/1", doc.Channel.Items[0].Link)
}

func TestAtomRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/atom.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/atom+xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<feed")
	assert.Contains(t, rec.Body.String(), "https://blog.example.com/posts/hello")
}

func TestNoSnapshotYet(t *testing.T) {
	source := &fakeSource{broker: reload.NewBroker(1)}
	srv, err := New(testConfig(), source, afero.NewMemMapFs(), nil)
	require.NoError(t, err)

	rec := get(t, srv.Handler(), "/posts")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), errors.ErrCodeSnapshotMissing)

	rec = get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.Contains(t, health.Checks["content"].Message, errors.ErrCodeSnapshotMissing)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv, _ := newTestServer(t)
		rec := get(t, srv.Handler(), "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, HealthStatusHealthy, health.Status)
		assert.Equal(t, uint64(3), health.Generation)
		assert.Equal(t, "idle", health.Reload.State)
		require.NotNil(t, health.Content)
		assert.Equal(t, 2, health.Content.Posts)
		assert.Equal(t, 2, health.Content.Pages)
	})

	t.Run("degraded watcher", func(t *testing.T) {
		srv, source := newTestServer(t)
		source.status.Watch = watcher.Health{Degraded: true}

		health := srv.Health()
		assert.Equal(t, HealthStatusDegraded, health.Status)
		assert.Equal(t, HealthStatusDegraded, health.Checks["watcher"].Status)
	})

	t.Run("failed reload", func(t *testing.T) {
		srv, source := newTestServer(t)
		source.status.LastFailure = source.status.LastSuccess.Add(time.Second)
		source.status.LastError = "root unreadable"

		health := srv.Health()
		assert.Equal(t, HealthStatusDegraded, health.Status)
		assert.Equal(t, "root unreadable", health.Checks["reload"].Message)
	})
}

func TestMiddleware(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.config.Server.AllowedOrigins = []string{"https://friend.example"}
	h := srv.Handler()

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/posts", nil)
		req.Header.Set("Origin", "https://friend.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://friend.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin gets no cors header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/posts", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("writes are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader("x"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestSnapshotSwapIsVisibleToNextRequest(t *testing.T) {
	srv, source := newTestServer(t)
	h := srv.Handler()

	next, _ := buildSnapshot(t, 4)
	source.snap.Store(next)

	body, err := io.ReadAll(get(t, h, "/").Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "var generation = 4;")
}

func TestNewRejectsUnknownStyle(t *testing.T) {
	cfg := testConfig()
	cfg.Render.HighlightStyle = "no-such-style"

	_, err := New(cfg, &fakeSource{broker: reload.NewBroker(1)}, nil, nil)
	assert.Error(t, err)
}
