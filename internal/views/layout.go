// Package views renders snapshot data into HTML documents.
//
// Components are built on the templ runtime: each view is a
// templ.Component that streams escaped markup to the response writer.
// Rendered post and page bodies are trusted and written with templ.Raw.
package views

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/quire/internal/toc"
)

// DateFormat is used wherever a date is shown.
const DateFormat = "2006-01-02"

// Site carries what every page shell needs.
type Site struct {
	Title       string
	Description string
	// LiveReload adds the websocket client script.
	LiveReload bool
	Generation uint64
}

// writer remembers the first write error so views can write freely and
// check once.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) printf(format string, args ...interface{}) {
	w.raw(fmt.Sprintf(format, args...))
}

func (w *writer) component(ctx context.Context, c templ.Component) {
	if w.err != nil || c == nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

func view(fn func(ctx context.Context, w *writer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		fn(ctx, w)

		return w.err
	})
}

func attr(s string) string {
	return templ.EscapeString(s)
}

// href prepares a URL for an href attribute. Unsafe schemes such as
// javascript: are replaced by templ's sanitized placeholder.
func href(u string) string {
	return attr(string(templ.URL(u)))
}

func tagPath(tag string) string {
	return "/tagged/" + url.PathEscape(tag)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(DateFormat)
}

// Layout wraps body in the document shell.
func Layout(site Site, title string, body templ.Component) templ.Component {
	return view(func(ctx context.Context, w *writer) {
		full := site.Title
		if title != "" && title != site.Title {
			full = title + " | " + site.Title
		}

		w.raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
		w.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
		w.raw("<title>")
		w.text(full)
		w.raw("</title>\n")
		if site.Description != "" {
			w.printf("<meta name=\"description\" content=\"%s\">\n", attr(site.Description))
		}
		w.printf("<link rel=\"alternate\" type=\"application/rss+xml\" title=\"%s\" href=\"/rss.xml\">\n", attr(site.Title))
		w.raw("<link rel=\"stylesheet\" href=\"/highlight.css\">\n")
		w.raw("<link rel=\"stylesheet\" href=\"/static/site.css\">\n")
		w.raw("</head>\n<body>\n<header>\n<nav>\n")
		w.printf("<a class=\"site-title\" href=\"/\">%s</a>\n", templ.EscapeString(site.Title))
		w.raw("<a href=\"/posts\">Posts</a>\n<a href=\"/chrono\">Updates</a>\n<a href=\"/tags\">Tags</a>\n")
		w.raw("<form action=\"/search\" method=\"get\"><input type=\"search\" name=\"q\" placeholder=\"Search\"></form>\n")
		w.raw("</nav>\n</header>\n<main>\n")
		w.component(ctx, body)
		w.raw("\n</main>\n")
		if site.LiveReload {
			w.raw(liveReloadScript(site.Generation))
		}
		w.raw("</body>\n</html>\n")
	})
}

// liveReloadScript reloads the page when the server announces a newer
// generation than the one it was rendered from.
func liveReloadScript(generation uint64) string {
	return fmt.Sprintf(`<script>
(function () {
  var generation = %d;
  function connect() {
    var proto = location.protocol === "https:" ? "wss:" : "ws:";
    var ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload" && msg.generation > generation) {
        location.reload();
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>
`, generation)
}

// TOC renders an outline as nested lists. Group nodes link to their entry.
func TOC(nodes []*toc.Node) templ.Component {
	return view(func(_ context.Context, w *writer) {
		if len(nodes) == 0 {
			return
		}
		w.raw("<nav class=\"toc\">\n")
		writeTOC(w, nodes)
		w.raw("</nav>\n")
	})
}

func writeTOC(w *writer, nodes []*toc.Node) {
	w.raw("<ul>\n")
	for _, n := range nodes {
		class := ""
		if n.IsGroup() {
			class = " class=\"toc-entry\""
		}
		w.printf("<li%s><a href=\"%s\">", class, href("#"+n.ID))
		w.text(n.Text)
		w.raw("</a>")
		if len(n.Children) > 0 {
			w.raw("\n")
			writeTOC(w, n.Children)
		}
		w.raw("</li>\n")
	}
	w.raw("</ul>\n")
}

func tagLinks(w *writer, tags []string) {
	if len(tags) == 0 {
		return
	}
	links := make([]string, 0, len(tags))
	for _, t := range tags {
		links = append(links, fmt.Sprintf("<a class=\"tag\" href=\"%s\">%s</a>", href(tagPath(t)), templ.EscapeString(t)))
	}
	w.printf("<span class=\"tags\">%s</span>", strings.Join(links, " "))
}
