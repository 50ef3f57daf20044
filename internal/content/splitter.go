package content

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/quire/internal/errors"
)

// EntryMarker opens a per-entry metadata block inside a post body. The block
// runs until a line consisting of exactly "---".
const EntryMarker = "--- entry"

const blockClose = "---"

// RawEntry is one segment of a post body with its effective metadata.
type RawEntry struct {
	Ordinal    int
	Title      string
	Date       time.Time
	Updated    time.Time
	Draft      bool
	Discussion Discussion
	Cut        int
	Body       []byte
	Front      FrontMatter
}

type entryMeta struct {
	Title      string `yaml:"title"`
	Date       *Date  `yaml:"date"`
	Updated    *Date  `yaml:"updated"`
	Draft      bool   `yaml:"draft"`
	Cut        int    `yaml:"cut"`
	Discussion `yaml:",inline"`
}

type segment struct {
	meta *entryMeta
	line int
	body strings.Builder
}

// Split divides a post body into entries at EntryMarker blocks. Markers
// inside fenced code are ignored. A body without markers yields one entry.
func Split(pf *ParsedFile) ([]RawEntry, error) {
	segments, err := scanSegments(pf)
	if err != nil {
		return nil, err
	}

	// A body that opens directly with a marker describes entry 0 with it.
	if len(segments) > 1 && strings.TrimSpace(segments[0].body.String()) == "" {
		segments = segments[1:]
	}

	entries := make([]RawEntry, 0, len(segments))
	for i, seg := range segments {
		entry := RawEntry{Ordinal: i, Body: []byte(seg.body.String())}

		if i == 0 {
			entry.Title = pf.Front.Title
			entry.Date = pf.Date
			entry.Updated = pf.Updated
			entry.Draft = pf.Front.Draft
			entry.Discussion = pf.Front.Discussion
			entry.Cut = pf.Front.Cut
		} else {
			prev := entries[i-1]
			entry.Title = pf.Front.Title
			entry.Date = prev.Date
		}

		if seg.meta != nil {
			applyMeta(&entry, seg.meta)
		}

		if i > 0 && entry.Date.Before(entries[i-1].Date) {
			return nil, errors.FrontMatterMalformed(pf.Path,
				fmt.Sprintf("entry %d is dated before entry %d", i, i-1), nil).
				WithLocation(pf.Path, seg.line)
		}
		if !entry.Updated.IsZero() && entry.Updated.Before(entry.Date) {
			return nil, errors.FrontMatterMalformed(pf.Path,
				fmt.Sprintf("entry %d updated is before date", i), nil).
				WithLocation(pf.Path, seg.line)
		}

		entry.Front = effectiveFront(pf, entry)
		entries = append(entries, entry)
	}

	return entries, nil
}

func applyMeta(entry *RawEntry, meta *entryMeta) {
	if meta.Title != "" {
		entry.Title = meta.Title
	}
	if meta.Date != nil {
		entry.Date = meta.Date.Time
	}
	if meta.Updated != nil {
		entry.Updated = meta.Updated.Time
	}
	if meta.Draft {
		entry.Draft = true
	}
	if meta.Cut > 0 {
		entry.Cut = meta.Cut
	}
	if meta.Lobsters != "" {
		entry.Discussion.Lobsters = meta.Lobsters
	}
	if meta.HackerNews != "" {
		entry.Discussion.HackerNews = meta.HackerNews
	}
}

func effectiveFront(pf *ParsedFile, entry RawEntry) FrontMatter {
	fm := pf.Front
	fm.Title = entry.Title
	date := Date{Time: entry.Date}
	fm.Date = &date
	fm.Updated = nil
	if !entry.Updated.IsZero() {
		updated := Date{Time: entry.Updated}
		fm.Updated = &updated
	}
	fm.Tags = pf.Tags
	fm.Draft = entry.Draft
	fm.Cut = entry.Cut
	fm.Discussion = entry.Discussion

	return fm
}

func scanSegments(pf *ParsedFile) ([]*segment, error) {
	lines := strings.SplitAfter(string(pf.Body), "\n")
	segments := []*segment{{line: 1}}
	current := segments[0]

	var fence fenceState
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimRight(line, "\r\n")

		if fence.update(trimmed) || fence.open() || trimmed != EntryMarker {
			current.body.WriteString(line)
			continue
		}

		start := i + 1
		var block strings.Builder
		closed := false
		for i++; i < len(lines); i++ {
			if strings.TrimRight(lines[i], "\r\n") == blockClose {
				closed = true
				break
			}
			block.WriteString(lines[i])
		}
		if !closed {
			return nil, errors.FrontMatterMalformed(pf.Path, "unterminated entry block", nil).
				WithLocation(pf.Path, start)
		}

		meta := &entryMeta{}
		if err := yaml.Unmarshal([]byte(block.String()), meta); err != nil {
			return nil, errors.FrontMatterMalformed(pf.Path, "invalid entry metadata", err).
				WithLocation(pf.Path, start)
		}

		current = &segment{meta: meta, line: start}
		segments = append(segments, current)
	}

	return segments, nil
}

// fenceState tracks whether the scanner is inside a fenced code block.
type fenceState struct {
	char  byte
	width int
}

func (f *fenceState) open() bool {
	return f.width > 0
}

// update consumes a line and reports whether it opened or closed a fence.
func (f *fenceState) update(line string) bool {
	s := strings.TrimLeft(line, " ")
	if len(line)-len(s) > 3 || len(s) < 3 {
		return false
	}

	c := s[0]
	if c != '`' && c != '~' {
		return false
	}
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	if n < 3 {
		return false
	}

	if !f.open() {
		f.char, f.width = c, n

		return true
	}
	if c == f.char && n >= f.width && strings.TrimSpace(s[n:]) == "" {
		f.char, f.width = 0, 0

		return true
	}

	return false
}
