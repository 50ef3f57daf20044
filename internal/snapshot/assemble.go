package snapshot

import (
	"sort"
	"time"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/markdown"
	"github.com/conneroisu/quire/internal/search"
	"github.com/conneroisu/quire/internal/toc"
)

// Input is everything the assembler needs for one build.
type Input struct {
	// Documents are the parsed posts and pages. They are processed in
	// source path order regardless of the order given.
	Documents     []content.Document
	IncludeDrafts bool
	Feed          index.FeedOptions
	Search        bool
	// Warnings carries file-scoped problems from earlier stages.
	Warnings []error
}

// Assemble applies the draft policy, enforces slug uniqueness and builds
// the indexes. The input documents are not modified. An error is returned
// only if the search index cannot be created.
func Assemble(in Input, generation uint64) (*Snapshot, error) {
	docs := append([]content.Document(nil), in.Documents...)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Path() < docs[j].Path() })

	s := &Snapshot{
		generation: generation,
		docs:       make(map[string]content.Document),
		entries:    make(map[string]*content.Entry),
		warnings:   append([]error(nil), in.Warnings...),
	}

	owner := make(map[string]string)

	for _, doc := range docs {
		if doc.Kind == content.KindPost {
			p := finalizePost(doc.Post, in.IncludeDrafts)
			if p == nil {
				continue
			}
			doc = content.Document{Kind: content.KindPost, Post: p}
		}

		keys := documentKeys(doc)
		if slug, kept, clash := firstClash(keys, owner); clash {
			s.warnings = append(s.warnings, errors.DuplicateSlug(slug, kept, doc.Path()))
			continue
		}
		for _, k := range keys {
			owner[k] = doc.Path()
		}

		s.docs[doc.Slug()] = doc
		switch doc.Kind {
		case content.KindPost:
			s.posts = append(s.posts, doc.Post)
			for _, e := range doc.Post.Entries {
				s.entries[e.Slug] = e
			}
		case content.KindPage:
			s.pages = append(s.pages, doc.Page)
		}
	}

	sort.Slice(s.pages, func(i, j int) bool { return s.pages[i].Slug < s.pages[j].Slug })

	s.index = index.Build(s.posts, in.Feed)

	if in.Search {
		idx, err := search.Build(searchDocuments(s))
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeSearchFailure, "building search index", err)
		}
		s.search = idx
	}

	s.builtAt = time.Now()

	return s, nil
}

// finalizePost returns a copy of p with the draft policy applied, entry
// slugs assigned and the post outline merged. It returns nil when nothing
// publishable remains.
func finalizePost(p *content.Post, includeDrafts bool) *content.Post {
	kept := len(p.Entries)
	if !includeDrafts {
		for i, e := range p.Entries {
			if e.Draft {
				kept = i

				break
			}
		}
	}
	if kept == 0 {
		return nil
	}

	out := *p
	out.Entries = make([]*content.Entry, kept)
	for i := 0; i < kept; i++ {
		e := *p.Entries[i]
		e.PostSlug = p.Slug
		e.Ordinal = i
		if kept == 1 {
			e.Slug = p.Slug
		} else {
			e.Slug = content.EntrySlug(p.Slug, i)
		}
		if e.TOC == nil {
			e.TOC = toc.Build(e.Headings)
		}
		out.Entries[i] = &e
	}

	if kept == 1 {
		out.TOC = out.Entries[0].TOC
	} else {
		groups := make([]toc.Group, 0, kept)
		for _, e := range out.Entries {
			groups = append(groups, toc.Group{ID: e.Anchor(), Title: e.Title, Roots: e.TOC})
		}
		out.TOC = toc.Merge(groups)
	}

	return &out
}

func documentKeys(doc content.Document) []string {
	keys := []string{doc.Slug()}
	if doc.Kind == content.KindPost && doc.Post.IsThread() {
		for _, e := range doc.Post.Entries {
			keys = append(keys, e.Slug)
		}
	}

	return keys
}

func firstClash(keys []string, owner map[string]string) (slug, kept string, clash bool) {
	for _, k := range keys {
		if path, ok := owner[k]; ok {
			return k, path, true
		}
	}

	return "", "", false
}

func searchDocuments(s *Snapshot) []search.Document {
	var docs []search.Document

	for _, p := range s.posts {
		for _, e := range p.Entries {
			kind := content.KindPost.String()
			title := p.Title
			if p.IsThread() {
				kind = "entry"
				if e.Title != "" && e.Title != p.Title {
					title = p.Title + ": " + e.Title
				}
			}
			docs = append(docs, search.Document{
				ID:      e.Slug,
				Kind:    kind,
				Title:   title,
				Content: markdown.PlainText(e.HTML),
				Tags:    p.Tags,
				Path:    "/posts/" + e.Slug,
				Date:    e.Date,
			})
		}
	}

	for _, pg := range s.pages {
		path := "/" + pg.Slug
		if pg.Slug == content.HomeSlug {
			path = "/"
		}
		docs = append(docs, search.Document{
			ID:      pg.Slug,
			Kind:    content.KindPage.String(),
			Title:   pg.Title,
			Content: markdown.PlainText(pg.HTML),
			Path:    path,
		})
	}

	return docs
}
