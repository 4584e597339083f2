package pages

import (
	"github.com/a-h/templ"
	h "maragu.dev/gomponents/html"

	"github.com/flowweave/flowweave-web/internal/content"
	"github.com/flowweave/flowweave-web/internal/signup"
	"github.com/flowweave/flowweave-web/internal/web/components"
)

type HomePageModel struct {
	AppName   string
	AppURL    string
	LaunchURL string
	Landing   content.Landing
	Notice    string
	CSRFToken string
	Modal     components.ModalData
}

// ModalFromSession converts a modal session into render data. The session
// never carries a password, so nothing secret can reach the markup.
func ModalFromSession(sess signup.Session, providers []string, csrfToken string) components.ModalData {
	screen := components.ModalScreenClosed
	switch sess.Screen() {
	case signup.StateChoosingMethod:
		screen = components.ModalScreenChooser
	case signup.StatePasswordEntry:
		screen = components.ModalScreenPassword
	}
	return components.ModalData{
		Screen:    screen,
		SignIn:    sess.Mode == signup.ModeSignIn,
		Email:     sess.Email,
		Error:     sess.Error,
		Loading:   sess.Loading(),
		Providers: providers,
		CSRFToken: csrfToken,
	}
}

func HomePage(m HomePageModel) templ.Component {
	meta := components.PageMeta{
		Title:       m.Landing.Title,
		Description: m.Landing.Description,
		Path:        "/",
	}
	return components.Component(components.Layout(m.AppName, m.AppURL, meta,
		components.BackgroundVideo(m.Landing.BackgroundVideo),
		h.Div(h.Class("container"),
			components.Nav(m.Landing.Brand, m.Landing.CTA, m.CSRFToken),
			components.Notice(m.Notice),
			h.Main(
				components.Hero(components.HeroData{
					Lead:        m.Landing.HeadlineLead,
					Emphasis:    m.Landing.HeadlineEmphasis,
					Tail:        m.Landing.HeadlineTail,
					LeadHTML:    m.Landing.LeadHTML,
					LaunchURL:   m.LaunchURL,
					LaunchLabel: m.Landing.LaunchLabel,
				}),
			),
		),
		components.Modal(m.Modal),
	))
}

// SignUpModal is the fragment returned to htmx requests.
func SignUpModal(m components.ModalData) templ.Component {
	return components.Component(components.Modal(m))
}
