package server

import (
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/feed"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/snapshot"
	"github.com/conneroisu/quire/internal/views"
)

const (
	// PageSize is the number of posts per listing page.
	PageSize = 20
	// HomePosts is the number of recent posts on the home page.
	HomePosts = 10
	// SearchResults caps the number of hits shown.
	SearchResults = 25
)

var entryPath = regexp.MustCompile(`^(.+)/entry/(\d+)$`)

// snapshot loads the current snapshot, answering 503 when none exists yet.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*snapshot.Snapshot, bool) {
	snap := s.source.Current()
	if snap == nil {
		err := errors.SnapshotMissing()
		s.logger.Warn(r.Context(), err, "Request before first snapshot", "path", r.URL.Path)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)

		return nil, false
	}

	return snap, true
}

func (s *Server) site(snap *snapshot.Snapshot) views.Site {
	return views.Site{
		Title:       s.config.Feed.Title,
		Description: s.config.Feed.Description,
		LiveReload:  s.config.Watch.Enabled,
		Generation:  snap.Generation(),
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, snap *snapshot.Snapshot, title string, body templ.Component, status int) {
	page := views.Layout(s.site(snap), title, body)
	templ.Handler(page, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Current()
	if snap == nil {
		http.NotFound(w, r)

		return
	}
	s.render(w, r, snap, "Not found", views.NotFound(r.URL.Path), http.StatusNotFound)
}

// pageNumber reads the 1-based ?page= parameter.
func pageNumber(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}

	return n
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	home, _ := snap.Home()

	title := s.config.Feed.Title
	if home != nil && home.Title != "" {
		title = home.Title
	}
	s.render(w, r, snap, title, views.Home(home, snap.Listing(0, HomePosts)), http.StatusOK)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	page := pageNumber(r)
	posts := snap.Listing((page-1)*PageSize, PageSize)
	if len(posts) == 0 && page > 1 {
		s.notFound(w, r)

		return
	}
	s.render(w, r, snap, "Posts", views.PostList("Posts", posts), http.StatusOK)
}

// handlePost serves /posts/{slug} and /posts/{slug}/entry/{n}.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	slug := r.PathValue("slug")

	if m := entryPath.FindStringSubmatch(slug); m != nil {
		ordinal, err := strconv.Atoi(m[2])
		if err == nil {
			if post, entry, found := snap.Entry(m[1], ordinal); found {
				s.render(w, r, snap, post.Title+": "+entry.Title, views.Entry(post, entry), http.StatusOK)

				return
			}
		}
	}

	post, found := snap.Post(slug)
	if !found {
		s.notFound(w, r)

		return
	}
	s.render(w, r, snap, post.Title, views.Post(post), http.StatusOK)
}

func (s *Server) handleChrono(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	page := pageNumber(r)
	s.render(w, r, snap, "Updates", views.Chrono(snap.Chrono((page-1)*PageSize, PageSize)), http.StatusOK)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.render(w, r, snap, "Tags", views.Tags(snap.Tags()), http.StatusOK)
}

func (s *Server) handleTagged(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	tag, err := content.NormalizeTag(r.PathValue("tag"))
	posts := snap.Tagged(tag)
	if err != nil || len(posts) == 0 {
		s.notFound(w, r)

		return
	}
	s.render(w, r, snap, "Tagged "+tag, views.Tagged(tag, posts), http.StatusOK)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, r, "application/rss+xml; charset=utf-8", feed.WriteRSS)
}

func (s *Server) handleAtom(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, r, "application/atom+xml; charset=utf-8", feed.WriteAtom)
}

func (s *Server) writeFeed(w http.ResponseWriter, r *http.Request, contentType string,
	write func(io.Writer, feed.Channel, []index.FeedItem) error) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", contentType)
	if err := write(w, s.channel, snap.Feed()); err != nil {
		s.logger.Error(r.Context(), err, "Failed to write feed")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")

	hits, err := snap.Search(query, SearchResults)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Search failed", "query", query)
		hits = nil
	}
	s.render(w, r, snap, "Search", views.Search(query, hits, snap.Searchable()), http.StatusOK)
}

func (s *Server) handleHighlightCSS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(s.css))
}

// handlePage serves any remaining path as a page slug.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	page, found := snap.Page(r.PathValue("page"))
	if !found {
		s.notFound(w, r)

		return
	}
	s.render(w, r, snap, page.Title, views.Page(page), http.StatusOK)
}
