package markdown

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/yuin/goldmark/ast"
	"golang.org/x/text/unicode/norm"
)

// Slugify turns heading text into an anchor id: NFKD folded, lower case,
// ASCII letters and digits kept, separators collapsed to single dashes.
func Slugify(text string) string {
	var b strings.Builder
	pendingDash := false

	for _, r := range norm.NFKD.String(text) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingDash = true
		}
	}

	return b.String()
}

// AnchorSet hands out unique heading ids. Repeats of a base slug get
// "-1", "-2", ... in order of appearance, skipping ids already taken.
// One set is shared by every entry of a post.
type AnchorSet struct {
	used   map[string]bool
	counts map[string]int
}

// NewAnchorSet creates a set with the given ids already reserved.
func NewAnchorSet(reserved ...string) *AnchorSet {
	s := &AnchorSet{
		used:   make(map[string]bool),
		counts: make(map[string]int),
	}
	for _, id := range reserved {
		s.used[id] = true
	}

	return s
}

// Next returns a unique id for the given heading text.
func (s *AnchorSet) Next(text string) string {
	base := Slugify(text)
	if base == "" {
		base = "section"
	}

	id := base
	if s.used[id] {
		n := s.counts[base]
		for {
			n++
			id = base + "-" + strconv.Itoa(n)
			if !s.used[id] {
				break
			}
		}
		s.counts[base] = n
	}
	s.used[id] = true

	return id
}

// Generate implements goldmark's parser.IDs.
func (s *AnchorSet) Generate(value []byte, _ ast.NodeKind) []byte {
	return []byte(s.Next(string(value)))
}

// Put implements goldmark's parser.IDs.
func (s *AnchorSet) Put(value []byte) {
	s.used[string(value)] = true
}
