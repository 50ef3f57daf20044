// Package snapshot assembles parsed documents into an immutable, internally
// consistent view of the site and serves read queries against it.
//
// A Snapshot is never modified after Assemble returns. Readers obtain one
// with a single atomic load from the reload coordinator and may hold it for
// as long as they like.
package snapshot

import (
	"sort"
	"time"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/search"
)

// Stats summarizes the size of a snapshot.
type Stats struct {
	Posts    int
	Pages    int
	Entries  int
	Tags     int
	Warnings int
}

// Snapshot is the published content state.
type Snapshot struct {
	generation uint64
	builtAt    time.Time

	docs    map[string]content.Document
	entries map[string]*content.Entry
	posts   []*content.Post
	pages   []*content.Page

	index    *index.Index
	search   *search.Index
	warnings []error
}

// Generation is the publication counter assigned by the coordinator.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// BuiltAt is the wall-clock time assembly finished.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Lookup finds a post or page by slug.
func (s *Snapshot) Lookup(slug string) (content.Document, bool) {
	doc, ok := s.docs[slug]

	return doc, ok
}

// Post finds a post by slug.
func (s *Snapshot) Post(slug string) (*content.Post, bool) {
	doc, ok := s.docs[slug]
	if !ok || doc.Kind != content.KindPost {
		return nil, false
	}

	return doc.Post, true
}

// Page finds a page by slug.
func (s *Snapshot) Page(slug string) (*content.Page, bool) {
	doc, ok := s.docs[slug]
	if !ok || doc.Kind != content.KindPage {
		return nil, false
	}

	return doc.Page, true
}

// Home returns the root page, if the site has one.
func (s *Snapshot) Home() (*content.Page, bool) {
	return s.Page(content.HomeSlug)
}

// Entry returns one entry of a post by ordinal.
func (s *Snapshot) Entry(postSlug string, ordinal int) (*content.Post, *content.Entry, bool) {
	p, ok := s.Post(postSlug)
	if !ok || ordinal < 0 || ordinal >= len(p.Entries) {
		return nil, nil, false
	}

	return p, p.Entries[ordinal], true
}

// EntryBySlug resolves any entry slug, including the bare slug of a
// single-entry post.
func (s *Snapshot) EntryBySlug(slug string) (*content.Entry, bool) {
	e, ok := s.entries[slug]

	return e, ok
}

// Posts returns every post, newest first.
func (s *Snapshot) Posts() []*content.Post {
	return s.index.Listing
}

// Pages returns every page in slug order.
func (s *Snapshot) Pages() []*content.Page {
	return s.pages
}

// Tags lists tags alphabetically with their post counts.
func (s *Snapshot) Tags() []index.TagCount {
	return s.index.TagCounts()
}

// Tagged returns posts with the tag, newest first.
func (s *Snapshot) Tagged(tag string) []*content.Post {
	return s.index.Tagged(tag)
}

// Listing returns a window of the post listing.
func (s *Snapshot) Listing(offset, limit int) []*content.Post {
	return window(s.index.Listing, offset, limit)
}

// Chrono returns a window of the per-entry log.
func (s *Snapshot) Chrono(offset, limit int) []index.ChronoItem {
	return window(s.index.Chrono, offset, limit)
}

// Feed returns the feed items, newest first.
func (s *Snapshot) Feed() []index.FeedItem {
	return s.index.Feed
}

// Search queries the snapshot's full-text index. Without one it returns
// no hits.
func (s *Snapshot) Search(query string, limit int) ([]search.Hit, error) {
	return s.search.Search(query, limit)
}

// Searchable reports whether a search index was built.
func (s *Snapshot) Searchable() bool {
	return s.search != nil
}

// Warnings are the file-scoped problems found while building the snapshot.
func (s *Snapshot) Warnings() []error {
	return append([]error(nil), s.warnings...)
}

// Slugs lists every lookup key in the snapshot, entry slugs included.
func (s *Snapshot) Slugs() []string {
	seen := make(map[string]bool, len(s.docs)+len(s.entries))
	for slug := range s.docs {
		seen[slug] = true
	}
	for slug := range s.entries {
		seen[slug] = true
	}

	out := make([]string, 0, len(seen))
	for slug := range seen {
		out = append(out, slug)
	}
	sort.Strings(out)

	return out
}

// Stats reports counts for health and journaling.
func (s *Snapshot) Stats() Stats {
	return Stats{
		Posts:    len(s.posts),
		Pages:    len(s.pages),
		Entries:  len(s.index.Chrono),
		Tags:     len(s.index.Tags),
		Warnings: len(s.warnings),
	}
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return items[offset:end]
}
