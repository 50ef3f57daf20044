// Package markdown renders entry bodies to HTML and derives summaries.
//
// Rendering uses goldmark with GFM, footnotes and raw HTML passthrough.
// Headings get ids from an AnchorSet and a trailing self-link; fenced
// code with a known language hint is highlighted by chroma using CSS
// classes, so pages need the stylesheet from HighlightCSS.
package markdown

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/conneroisu/quire/internal/toc"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "github"

// Options configures a Renderer.
type Options struct {
	HighlightStyle string
}

// Result is the output of rendering one body.
type Result struct {
	HTML     string
	Headings []toc.Heading
}

// Renderer converts markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// footnotePrefixKey holds the per-render footnote id prefix in document meta.
const footnotePrefixKey = "quire-footnote-prefix"

// NewRenderer builds a renderer.
//
// Fenced code is emitted with chroma classes only, so opts.HighlightStyle
// matters to the stylesheet from HighlightCSS and not to the markup.
func NewRenderer(opts Options) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.NewFootnote(extension.WithFootnoteIDPrefixFunction(footnotePrefix)),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&blockRenderer{}, 100)),
		),
	)

	return &Renderer{md: md}
}

func footnotePrefix(n ast.Node) []byte {
	doc := n.OwnerDocument()
	if doc == nil {
		return nil
	}
	prefix, _ := doc.Meta()[footnotePrefixKey].(string)

	return []byte(prefix)
}

// Render converts source to HTML. Heading ids are drawn from anchors, which
// may be shared across calls; nil means a fresh set.
func (r *Renderer) Render(source []byte, anchors *AnchorSet) (Result, error) {
	return r.RenderPrefixed(source, anchors, "")
}

// RenderPrefixed is Render with every footnote id and link prefixed, so
// several bodies rendered onto one page keep distinct footnotes.
func (r *Renderer) RenderPrefixed(source []byte, anchors *AnchorSet, footnotes string) (res Result, err error) {
	if anchors == nil {
		anchors = NewAnchorSet()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()

	ctx := parser.NewContext(parser.WithIDs(anchors))
	doc := r.md.Parser().Parse(text.NewReader(source), parser.WithContext(ctx))
	if footnotes != "" {
		doc.OwnerDocument().AddMeta(footnotePrefixKey, footnotes)
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return Result{}, err
	}

	return Result{
		HTML:     buf.String(),
		Headings: collectHeadings(doc, source),
	}, nil
}

func collectHeadings(doc ast.Node, source []byte) []toc.Heading {
	var headings []toc.Heading

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		writeNodeText(&buf, h, source)
		headings = append(headings, toc.Heading{
			ID:    headingID(h),
			Text:  string(bytes.TrimSpace(buf.Bytes())),
			Level: h.Level,
		})

		return ast.WalkSkipChildren, nil
	})

	return headings
}

func headingID(h *ast.Heading) string {
	v, ok := h.AttributeString("id")
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case []byte:
		return string(id)
	case string:
		return id
	}

	return ""
}

func writeNodeText(buf *bytes.Buffer, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.Label(source))
		case *ast.RawHTML:
		default:
			writeNodeText(buf, c, source)
		}
	}
}

// blockRenderer overrides heading and fenced code output.
type blockRenderer struct{}

func (r *blockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindHeading, r.renderHeading)
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *blockRenderer) renderHeading(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Heading)
	level := strconv.Itoa(n.Level)
	id := util.EscapeHTML([]byte(headingID(n)))

	if entering {
		_, _ = w.WriteString("<h" + level + ` id="`)
		_, _ = w.Write(id)
		_, _ = w.WriteString(`">`)

		return ast.WalkContinue, nil
	}

	_, _ = w.WriteString(` <a class="anchor" href="#`)
	_, _ = w.Write(id)
	_, _ = w.WriteString(`" aria-hidden="true">#</a></h` + level + ">\n")

	return ast.WalkContinue, nil
}

func (r *blockRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	var lang string
	if n.Info != nil {
		lang = string(n.Language(source))
	}

	if lang != "" {
		if lexer := lexers.Get(lang); lexer != nil {
			var out bytes.Buffer
			if err := highlight(&out, lexer, code.String()); err == nil {
				_, _ = w.Write(out.Bytes())

				return ast.WalkSkipChildren, nil
			}
		}
	}

	if lang != "" {
		_, _ = w.WriteString(`<pre><code class="language-`)
		_, _ = w.Write(util.EscapeHTML([]byte(lang)))
		_, _ = w.WriteString(`">`)
	} else {
		_, _ = w.WriteString("<pre><code>")
	}
	_, _ = w.Write(util.EscapeHTML(code.Bytes()))
	_, _ = w.WriteString("</code></pre>\n")

	return ast.WalkSkipChildren, nil
}

func newFormatter() *chromahtml.Formatter {
	return chromahtml.New(chromahtml.WithClasses(true))
}

func highlight(out *bytes.Buffer, lexer chroma.Lexer, code string) error {
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return err
	}

	// Classes only; the style is applied by the stylesheet.
	return newFormatter().Format(out, styles.Fallback, iterator)
}

// HighlightCSS returns the stylesheet for the named chroma style.
func HighlightCSS(style string) (string, error) {
	if !KnownStyle(style) {
		return "", fmt.Errorf("unknown highlight style %q", style)
	}
	s := styles.Get(style)

	var buf bytes.Buffer
	if err := newFormatter().WriteCSS(&buf, s); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// KnownStyle reports whether chroma ships a style with this name.
func KnownStyle(style string) bool {
	for _, name := range styles.Names() {
		if name == style {
			return true
		}
	}

	return false
}
