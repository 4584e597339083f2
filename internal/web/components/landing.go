package components

import (
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

// Nav renders the top bar. The call to action is a form so the modal opens
// without JavaScript too.
func Nav(brand, cta, csrfToken string) g.Node {
	return h.Nav(h.Class("nav"),
		h.Div(h.Class("nav-brand"),
			h.Img(h.Src("/static/logo.svg"), h.Alt(brand), g.Attr("width", "100"), g.Attr("height", "100"), h.Class("nav-logo")),
			h.Span(h.Class("nav-name"), g.Text(brand)),
		),
		h.Div(h.Class("nav-actions"),
			PostForm("/signup/open", csrfToken,
				h.Button(h.Type("submit"), h.Class("button button-light group"), h.ID("signup-cta"),
					g.Text(cta),
					ArrowIcon(12, "arrow"),
				),
			),
		),
	)
}

type HeroData struct {
	Lead        string
	Emphasis    string
	Tail        string
	LeadHTML    string
	LaunchURL   string
	LaunchLabel string
}

func Hero(d HeroData) g.Node {
	return h.Section(h.Class("hero"),
		h.H1(h.Class("hero-title"),
			g.Text(d.Lead+" "),
			h.Span(h.Class("hero-emphasis"), g.Text(d.Emphasis)),
			h.Br(),
			g.Text(d.Tail+" "),
			g.If(d.LaunchURL != "",
				h.A(h.Class("hero-launch"), h.Href(d.LaunchURL), h.Target("_blank"), h.Rel("noopener noreferrer"),
					g.Attr("aria-label", d.LaunchLabel),
					ArrowIcon(44, ""),
				),
			),
		),
		h.Div(h.Class("hero-lead"), g.Raw(d.LeadHTML)),
	)
}

func BackgroundVideo(src string) g.Node {
	if src == "" {
		return g.Group{}
	}
	return h.Video(h.Class("bg-video"),
		g.Attr("autoplay"), g.Attr("loop"), g.Attr("muted"), g.Attr("playsinline"),
		h.Source(h.Src(src), h.Type("video/mp4")),
	)
}

// Notice is the one-shot banner shown after a completed sign-up or sign-in.
func Notice(text string) g.Node {
	if text == "" {
		return g.Group{}
	}
	return h.Div(h.Class("notice"), g.Attr("role", "status"), h.ID("notice"), g.Text(text))
}
