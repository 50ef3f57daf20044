// Package index derives the tag index, the post listing, the per-entry
// chronological log and the feed items from a set of posts.
package index

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/markdown"
)

// DefaultFeedItems caps the feed when no limit is configured.
const DefaultFeedItems = 20

// FeedOptions controls feed item derivation.
type FeedOptions struct {
	BaseURL  string
	MaxItems int
}

// FeedItem is a read-only projection of a post's latest entry.
type FeedItem struct {
	PostSlug  string
	Title     string
	Link      string
	Summary   string
	Published time.Time
	Updated   time.Time
	GUID      string
	Tags      []string
}

// ChronoItem is one entry in the per-entry update log.
type ChronoItem struct {
	Post  *content.Post
	Entry *content.Entry
}

// Date is the entry's effective date.
func (c ChronoItem) Date() time.Time {
	return c.Entry.EffectiveDate()
}

// TagCount pairs a tag with the number of posts carrying it.
type TagCount struct {
	Name  string
	Count int
}

// Index is the derived read model for one snapshot.
type Index struct {
	Tags    map[string][]*content.Post
	Listing []*content.Post
	Chrono  []ChronoItem
	Feed    []FeedItem
}

// Build derives every index from posts. The input slice is not modified.
func Build(posts []*content.Post, opts FeedOptions) *Index {
	listing := append([]*content.Post(nil), posts...)
	SortPosts(listing)

	tags := make(map[string][]*content.Post)
	for _, p := range listing {
		for _, tag := range p.Tags {
			tags[tag] = append(tags[tag], p)
		}
	}

	return &Index{
		Tags:    tags,
		Listing: listing,
		Chrono:  buildChrono(listing),
		Feed:    buildFeed(listing, opts),
	}
}

// SortPosts orders posts newest first by effective date, then by slug.
func SortPosts(posts []*content.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		di, dj := posts[i].EffectiveDate(), posts[j].EffectiveDate()
		if !di.Equal(dj) {
			return di.After(dj)
		}

		return posts[i].Slug < posts[j].Slug
	})
}

func buildChrono(posts []*content.Post) []ChronoItem {
	var items []ChronoItem
	for _, p := range posts {
		for _, e := range p.Entries {
			items = append(items, ChronoItem{Post: p, Entry: e})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		di, dj := items[i].Date(), items[j].Date()
		if !di.Equal(dj) {
			return di.After(dj)
		}
		if items[i].Post.Slug != items[j].Post.Slug {
			return items[i].Post.Slug < items[j].Post.Slug
		}

		return items[i].Entry.Ordinal > items[j].Entry.Ordinal
	})

	return items
}

func buildFeed(sorted []*content.Post, opts FeedOptions) []FeedItem {
	limit := opts.MaxItems
	if limit <= 0 {
		limit = DefaultFeedItems
	}

	items := make([]FeedItem, 0, min(limit, len(sorted)))
	for _, p := range sorted {
		if len(items) == limit {
			break
		}
		items = append(items, NewFeedItem(p, opts.BaseURL))
	}

	return items
}

// PostPath is the site path of a post, or of its latest entry for threads.
func PostPath(p *content.Post) string {
	if p.IsThread() {
		return "/posts/" + content.EntrySlug(p.Slug, p.Latest().Ordinal)
	}

	return "/posts/" + p.Slug
}

// NewFeedItem projects the latest entry of p. The GUID is a name-based UUID
// of the link, so it is stable across reloads.
func NewFeedItem(p *content.Post, baseURL string) FeedItem {
	latest := p.Latest()
	link := strings.TrimRight(baseURL, "/") + PostPath(p)

	title := p.Title
	if p.IsThread() && latest.Title != "" && latest.Title != p.Title {
		title = p.Title + ": " + latest.Title
	}

	return FeedItem{
		PostSlug:  p.Slug,
		Title:     SingleLine(title),
		Link:      link,
		Summary:   SingleLine(latest.Summary),
		Published: latest.Date,
		Updated:   latest.EffectiveDate(),
		GUID:      "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String(),
		Tags:      append([]string(nil), p.Tags...),
	}
}

// SingleLine replaces line breaks with spaces.
func SingleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

// Tagged returns the posts carrying tag, newest first.
func (ix *Index) Tagged(tag string) []*content.Post {
	return ix.Tags[tag]
}

// TagCounts lists every tag alphabetically with its post count.
func (ix *Index) TagCounts() []TagCount {
	counts := make([]TagCount, 0, len(ix.Tags))
	for name, posts := range ix.Tags {
		counts = append(counts, TagCount{Name: name, Count: len(posts)})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Name < counts[j].Name })

	return counts
}

// PlainSummary is the feed summary with markup removed.
func (f FeedItem) PlainSummary() string {
	return markdown.PlainText(f.Summary)
}
