// Package content holds the content model and the first pipeline stages:
// walking the content root, parsing front matter and splitting threaded
// posts into entries.
package content

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/quire/internal/toc"
)

// Kind distinguishes the two document variants.
type Kind int

const (
	KindPost Kind = iota
	KindPage
)

func (k Kind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindPage:
		return "page"
	default:
		return "unknown"
	}
}

// HomeSlug is the slug of the page rendered at the site root.
const HomeSlug = "_index"

// ContentRoot is the directory the pipeline reads from.
type ContentRoot struct {
	Path   string
	Ignore []string
}

// SourceFile is a candidate file found by the walker. Path is slash
// separated and relative to the content root.
type SourceFile struct {
	Path    string
	ModTime time.Time
	Data    []byte
}

// Date is a calendar date or timestamp read from front matter.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate accepts a bare date or one of a few timestamp layouts.
// Values without a zone are taken as UTC.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t.UTC()}, nil
		}
	}

	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date must be a scalar", value.Line)
	}

	parsed, err := ParseDate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed

	return nil
}

// Discussion links an entry to threads on outside sites.
type Discussion struct {
	Lobsters   string `yaml:"lobsters"`
	HackerNews string `yaml:"hacker_news"`
}

// Empty reports whether no discussion link is set.
func (d Discussion) Empty() bool {
	return d.Lobsters == "" && d.HackerNews == ""
}

// FrontMatter is the metadata block at the top of a source file.
type FrontMatter struct {
	Title      string   `yaml:"title"`
	Date       *Date    `yaml:"date"`
	Updated    *Date    `yaml:"updated"`
	Tags       []string `yaml:"tags"`
	Draft      bool     `yaml:"draft"`
	Cut        int      `yaml:"cut"`
	Slug       string   `yaml:"slug"`
	Discussion `yaml:",inline"`
}

// Entry is one rendered unit of a post.
type Entry struct {
	Slug       string
	PostSlug   string
	Ordinal    int
	Title      string
	Date       time.Time
	Updated    time.Time
	Draft      bool
	Discussion Discussion
	HTML       string
	Summary    string
	Headings   []toc.Heading
	TOC        []*toc.Node
	Front      FrontMatter
}

// EffectiveDate is the update date when present, else the creation date.
func (e *Entry) EffectiveDate() time.Time {
	if !e.Updated.IsZero() {
		return e.Updated
	}

	return e.Date
}

// Anchor is the in-page anchor of the entry inside its post.
func (e *Entry) Anchor() string {
	return EntryAnchor(e.Ordinal)
}

// EntryAnchor is the element id marking entry ordinal on a post page.
func EntryAnchor(ordinal int) string {
	return fmt.Sprintf("entry-%d", ordinal)
}

// Post is one or more entries sharing an identity.
type Post struct {
	Slug    string
	Title   string
	Path    string
	Tags    []string
	Entries []*Entry
	TOC     []*toc.Node
}

// IsThread reports whether the post has more than one entry.
func (p *Post) IsThread() bool {
	return len(p.Entries) > 1
}

// First returns the opening entry.
func (p *Post) First() *Entry {
	if len(p.Entries) == 0 {
		return nil
	}

	return p.Entries[0]
}

// Latest returns the entry with the highest ordinal.
func (p *Post) Latest() *Entry {
	if len(p.Entries) == 0 {
		return nil
	}

	return p.Entries[len(p.Entries)-1]
}

// Date is the creation date of the opening entry.
func (p *Post) Date() time.Time {
	if e := p.First(); e != nil {
		return e.Date
	}

	return time.Time{}
}

// EffectiveDate ranks the post in listings: the latest entry's effective date.
func (p *Post) EffectiveDate() time.Time {
	if e := p.Latest(); e != nil {
		return e.EffectiveDate()
	}

	return time.Time{}
}

// HasTag reports whether the post carries the normalized tag.
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// Page is a non-chronological document such as an about page.
type Page struct {
	Slug     string
	Title    string
	Path     string
	HTML     string
	Summary  string
	Headings []toc.Heading
	TOC      []*toc.Node
}

// Document is the value returned by slug lookup: exactly one of Post or
// Page is set, matching Kind.
type Document struct {
	Kind Kind
	Post *Post
	Page *Page
}

// Slug returns the slug of whichever variant is set.
func (d Document) Slug() string {
	if d.Kind == KindPost && d.Post != nil {
		return d.Post.Slug
	}
	if d.Page != nil {
		return d.Page.Slug
	}

	return ""
}

// Title returns the title of whichever variant is set.
func (d Document) Title() string {
	if d.Kind == KindPost && d.Post != nil {
		return d.Post.Title
	}
	if d.Page != nil {
		return d.Page.Title
	}

	return ""
}

// Path returns the source path of whichever variant is set.
func (d Document) Path() string {
	if d.Kind == KindPost && d.Post != nil {
		return d.Post.Path
	}
	if d.Page != nil {
		return d.Page.Path
	}

	return ""
}

// EntrySlug is the lookup key of an entry inside a thread.
func EntrySlug(postSlug string, ordinal int) string {
	return fmt.Sprintf("%s/entry/%d", postSlug, ordinal)
}
