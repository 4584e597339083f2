// Package components holds the HTML building blocks shared by pages.
package components

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

const htmxScriptURL = "https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js"

// Component adapts a node to the templ render contract used by handlers.
func Component(n g.Node) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return n.Render(w)
	})
}

// Layout wraps body in the document shell.
func Layout(appName, appURL string, meta PageMeta, body ...g.Node) g.Node {
	title := meta.fullTitle(appName)
	canonical := meta.canonicalURL(appURL)

	return h.Doctype(
		h.HTML(h.Lang("en"),
			h.Head(
				h.Meta(h.Charset("utf-8")),
				h.Meta(h.Name("viewport"), h.Content("width=device-width, initial-scale=1")),
				g.El("title", g.Text(title)),
				g.If(meta.Description != "", h.Meta(h.Name("description"), h.Content(meta.Description))),
				h.Link(h.Rel("canonical"), h.Href(canonical)),
				g.El("meta", g.Attr("property", "og:title"), h.Content(title)),
				g.El("meta", g.Attr("property", "og:type"), h.Content(meta.resolvedType())),
				g.El("meta", g.Attr("property", "og:url"), h.Content(canonical)),
				g.If(meta.Image != "", g.El("meta", g.Attr("property", "og:image"), h.Content(meta.Image))),
				h.Link(h.Rel("icon"), h.Type("image/svg+xml"), h.Href("/static/logo.svg")),
				h.Link(h.Rel("stylesheet"), h.Href("/static/app.css")),
				h.Script(h.Src(htmxScriptURL), g.Attr("defer")),
			),
			h.Body(h.Class("page"), g.Group(body)),
		),
	)
}

// CSRFField is the hidden input checked by the double-submit middleware.
func CSRFField(token string) g.Node {
	return h.Input(h.Type("hidden"), h.Name("csrf_token"), h.Value(token))
}

// PostForm is a form that posts to action and, under htmx, swaps the modal
// in place.
func PostForm(action, csrfToken string, children ...g.Node) g.Node {
	return g.El("form",
		h.Method("post"),
		h.Action(action),
		g.Attr("hx-post", action),
		g.Attr("hx-target", "#"+ModalID),
		g.Attr("hx-swap", "outerHTML"),
		CSRFField(csrfToken),
		g.Group(children),
	)
}

func ArrowIcon(size int, class string) g.Node {
	return h.Img(
		h.Src("/static/Arrow.svg"),
		h.Alt("→"),
		g.Attr("width", strconv.Itoa(size)),
		g.Attr("height", strconv.Itoa(size)),
		g.If(class != "", h.Class(class)),
	)
}
