package markdown

import (
	"strings"

	"golang.org/x/net/html"
)

// CutMarker placed on its own line in a body ends the summary.
const CutMarker = "<!-- cut -->"

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func isHeadingTag(name string) bool {
	return len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6'
}

// Summarize truncates rendered HTML for previews. In priority order it cuts
// at a top-level cut marker comment, after cutBlocks top-level blocks
// (when positive), or right before the second top-level heading; otherwise
// the whole body is returned. Cuts only happen between top-level nodes, so
// the result is an exact, balanced prefix of rendered.
func Summarize(rendered string, cutBlocks int) string {
	z := html.NewTokenizer(strings.NewReader(rendered))

	var (
		offset   int
		depth    int
		blocks   int
		headings int

		markerCut  = -1
		blockCut   = -1
		headingCut = -1
	)

	endBlock := func(end int) {
		blocks++
		if cutBlocks > 0 && blocks == cutBlocks && blockCut < 0 {
			blockCut = end
		}
	}

scan:
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		start := offset
		offset += len(z.Raw())

		switch tt {
		case html.CommentToken:
			if depth == 0 && strings.TrimSpace(string(z.Text())) == "cut" {
				markerCut = start

				break scan
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if depth == 0 && isHeadingTag(tag) {
				headings++
				if headings == 2 && headingCut < 0 {
					headingCut = start
				}
			}
			if voidElements[tag] {
				if depth == 0 {
					endBlock(offset)
				}

				continue
			}
			depth++
		case html.SelfClosingTagToken:
			if depth == 0 {
				endBlock(offset)
			}
		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				endBlock(offset)
			}
		}
	}

	cut := len(rendered)
	switch {
	case markerCut >= 0:
		cut = markerCut
	case blockCut >= 0:
		cut = blockCut
	case headingCut >= 0:
		cut = headingCut
	}

	return strings.TrimSpace(rendered[:cut])
}

// Balanced reports whether every non-void start tag in fragment is closed
// in order.
func Balanced(fragment string) bool {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var stack []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			return len(stack) == 0
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if len(stack) == 0 || stack[len(stack)-1] != string(name) {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
}

// PlainText strips tags from rendered HTML, collapsing whitespace. It feeds
// the search index and feed descriptions.
func PlainText(rendered string) string {
	z := html.NewTokenizer(strings.NewReader(rendered))
	var b strings.Builder

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
