package views

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/search"
)

func postSummary(w *writer, p *content.Post) {
	latest := p.Latest()
	w.raw("<article class=\"summary\">\n<h2>")
	w.printf("<a href=\"%s\">", href(index.PostPath(p)))
	w.text(p.Title)
	w.raw("</a></h2>\n<p class=\"meta\">")
	w.printf("<time datetime=\"%s\">%s</time>", formatDate(p.Date()), formatDate(p.Date()))
	if p.IsThread() {
		w.printf(" <span class=\"updated\">%d entries, last %s</span>", len(p.Entries), formatDate(latest.EffectiveDate()))
	} else if !latest.Updated.IsZero() {
		w.printf(" <span class=\"updated\">updated %s</span>", formatDate(latest.Updated))
	}
	w.raw(" ")
	tagLinks(w, p.Tags)
	w.raw("</p>\n")
	w.raw(latest.Summary)
	w.raw("\n</article>\n")
}

// PostList renders a heading followed by post summaries.
func PostList(title string, posts []*content.Post) templ.Component {
	return view(func(_ context.Context, w *writer) {
		w.raw("<h1>")
		w.text(title)
		w.raw("</h1>\n")
		if len(posts) == 0 {
			w.raw("<p class=\"empty\">Nothing here yet.</p>\n")

			return
		}
		for _, p := range posts {
			postSummary(w, p)
		}
	})
}

// Home renders the _index page, when present, above the most recent posts.
func Home(home *content.Page, recent []*content.Post) templ.Component {
	return view(func(ctx context.Context, w *writer) {
		if home != nil {
			w.raw("<section class=\"home\">\n")
			w.raw(home.HTML)
			w.raw("\n</section>\n")
		}
		w.component(ctx, PostList("Recent posts", recent))
	})
}

func discussion(w *writer, d content.Discussion) {
	if d.Empty() {
		return
	}
	w.raw("<p class=\"discussion\">Discuss on")
	if d.Lobsters != "" {
		w.printf(" <a href=\"%s\">Lobsters</a>", href(d.Lobsters))
	}
	if d.HackerNews != "" {
		w.printf(" <a href=\"%s\">Hacker News</a>", href(d.HackerNews))
	}
	w.raw("</p>\n")
}

func entryBody(w *writer, p *content.Post, e *content.Entry) {
	w.printf("<section class=\"entry\" id=\"%s\">\n", attr(e.Anchor()))
	if p.IsThread() {
		w.printf("<h2 class=\"entry-title\"><a href=\"%s\">", href("/posts/"+e.Slug))
		w.text(e.Title)
		w.raw("</a></h2>\n")
	}
	w.printf("<p class=\"meta\"><time datetime=\"%s\">%s</time>", formatDate(e.Date), formatDate(e.Date))
	if !e.Updated.IsZero() {
		w.printf(" <span class=\"updated\">updated %s</span>", formatDate(e.Updated))
	}
	if e.Draft {
		w.raw(" <span class=\"draft\">draft</span>")
	}
	w.raw("</p>\n")
	w.raw(e.HTML)
	w.raw("\n")
	discussion(w, e.Discussion)
	w.raw("</section>\n")
}

// Post renders every entry of a post with its merged outline.
func Post(p *content.Post) templ.Component {
	return view(func(ctx context.Context, w *writer) {
		w.raw("<article class=\"post\">\n<h1>")
		w.text(p.Title)
		w.raw("</h1>\n<p class=\"meta\">")
		tagLinks(w, p.Tags)
		w.raw("</p>\n")
		w.component(ctx, TOC(p.TOC))
		for _, e := range p.Entries {
			entryBody(w, p, e)
		}
		w.raw("</article>\n")
	})
}

// Entry renders a single entry of a thread with links to its neighbours.
func Entry(p *content.Post, e *content.Entry) templ.Component {
	return view(func(ctx context.Context, w *writer) {
		w.raw("<article class=\"post\">\n<h1>")
		w.printf("<a href=\"%s\">", href("/posts/"+p.Slug))
		w.text(p.Title)
		w.raw("</a></h1>\n")
		w.component(ctx, TOC(e.TOC))
		entryBody(w, p, e)

		w.raw("<nav class=\"entries\">")
		if e.Ordinal > 0 {
			prev := p.Entries[e.Ordinal-1]
			w.printf("<a rel=\"prev\" href=\"%s\">", href("/posts/"+prev.Slug))
			w.text(prev.Title)
			w.raw("</a> ")
		}
		if e.Ordinal+1 < len(p.Entries) {
			next := p.Entries[e.Ordinal+1]
			w.printf("<a rel=\"next\" href=\"%s\">", href("/posts/"+next.Slug))
			w.text(next.Title)
			w.raw("</a>")
		}
		w.raw("</nav>\n</article>\n")
	})
}

// Page renders a standalone page.
func Page(p *content.Page) templ.Component {
	return view(func(ctx context.Context, w *writer) {
		w.raw("<article class=\"page\">\n")
		if p.Title != "" {
			w.raw("<h1>")
			w.text(p.Title)
			w.raw("</h1>\n")
		}
		w.component(ctx, TOC(p.TOC))
		w.raw(p.HTML)
		w.raw("\n</article>\n")
	})
}

// Chrono renders the per-entry update log.
func Chrono(items []index.ChronoItem) templ.Component {
	return view(func(_ context.Context, w *writer) {
		w.raw("<h1>Updates</h1>\n<ol class=\"chrono\">\n")
		for _, item := range items {
			link := "/posts/" + item.Post.Slug
			if item.Post.IsThread() {
				link = "/posts/" + item.Entry.Slug
			}
			w.printf("<li><time datetime=\"%s\">%s</time> <a href=\"%s\">", formatDate(item.Date()), formatDate(item.Date()), href(link))
			w.text(item.Post.Title)
			if item.Post.IsThread() && item.Entry.Title != item.Post.Title {
				w.raw(": ")
				w.text(item.Entry.Title)
			}
			w.raw("</a></li>\n")
		}
		w.raw("</ol>\n")
	})
}

// Tags renders every tag with its post count.
func Tags(counts []index.TagCount) templ.Component {
	return view(func(_ context.Context, w *writer) {
		w.raw("<h1>Tags</h1>\n<ul class=\"tags\">\n")
		for _, tc := range counts {
			w.printf("<li><a href=\"%s\">%s</a> (%d)</li>\n", href(tagPath(tc.Name)), templ.EscapeString(tc.Name), tc.Count)
		}
		w.raw("</ul>\n")
	})
}

// Tagged renders the posts carrying tag.
func Tagged(tag string, posts []*content.Post) templ.Component {
	return PostList(fmt.Sprintf("Tagged %q", tag), posts)
}

// Search renders a query form and its results. Fragments come from the
// search highlighter and are already escaped.
func Search(query string, hits []search.Hit, enabled bool) templ.Component {
	return view(func(_ context.Context, w *writer) {
		w.raw("<h1>Search</h1>\n")
		w.printf("<form action=\"/search\" method=\"get\"><input type=\"search\" name=\"q\" value=\"%s\"></form>\n", attr(query))
		switch {
		case !enabled:
			w.raw("<p class=\"empty\">Search is disabled.</p>\n")

			return
		case query == "":
			return
		case len(hits) == 0:
			w.raw("<p class=\"empty\">No results for ")
			w.text(query)
			w.raw(".</p>\n")

			return
		}

		w.raw("<ol class=\"results\">\n")
		for _, h := range hits {
			w.printf("<li class=\"%s\"><a href=\"%s\">", attr(h.Kind), href(h.Path))
			w.text(h.Title)
			w.raw("</a>")
			for _, f := range h.Fragments["Content"] {
				w.raw("<p>")
				w.raw(f)
				w.raw("</p>")
			}
			w.raw("</li>\n")
		}
		w.raw("</ol>\n")
	})
}

// NotFound renders the 404 body.
func NotFound(path string) templ.Component {
	return view(func(_ context.Context, w *writer) {
		w.raw("<h1>Not found</h1>\n<p>Nothing lives at <code>")
		w.text(path)
		w.raw("</code>.</p>\n")
	})
}
