// Package feed serializes index feed items as RSS 2.0 and Atom.
package feed

import (
	"io"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/conneroisu/quire/internal/index"
)

// Channel describes the feed as a whole.
type Channel struct {
	Title       string
	Description string
	BaseURL     string
	Author      string
	Email       string
}

// Build converts items into a gorilla feed. The feed's updated time is the
// newest item update, so identical snapshots serialize identically.
func Build(ch Channel, items []index.FeedItem) *feeds.Feed {
	f := &feeds.Feed{
		Title:       index.SingleLine(ch.Title),
		Link:        &feeds.Link{Href: strings.TrimRight(ch.BaseURL, "/") + "/"},
		Description: index.SingleLine(ch.Description),
	}
	if ch.Author != "" || ch.Email != "" {
		f.Author = &feeds.Author{Name: ch.Author, Email: ch.Email}
	}

	var newest time.Time
	for _, it := range items {
		if it.Updated.After(newest) {
			newest = it.Updated
		}

		f.Items = append(f.Items, &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.Link},
			Description: it.Summary,
			Id:          it.GUID,
			Created:     it.Published,
			Updated:     it.Updated,
		})
	}
	f.Created = newest
	f.Updated = newest

	return f
}

// WriteRSS writes the RSS 2.0 document for items to w.
func WriteRSS(w io.Writer, ch Channel, items []index.FeedItem) error {
	return Build(ch, items).WriteRss(w)
}

// WriteAtom writes the Atom 1.0 document for items to w.
func WriteAtom(w io.Writer, ch Channel, items []index.FeedItem) error {
	return Build(ch, items).WriteAtom(w)
}
