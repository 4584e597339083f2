package components

import (
	"strings"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

// ModalID is the element htmx swaps on every modal action.
const ModalID = "signup-modal"

const (
	ModalScreenClosed   = "closed"
	ModalScreenChooser  = "choosing_method"
	ModalScreenPassword = "password_entry"
)

type ModalData struct {
	Screen    string
	SignIn    bool
	Email     string
	Error     string
	Loading   bool
	Providers []string
	CSRFToken string
}

func (d ModalData) title() string {
	if d.SignIn {
		return "Sign In"
	}
	return "Create Account"
}

func (d ModalData) submitLabel() string {
	switch {
	case d.Loading && d.SignIn:
		return "Signing In..."
	case d.Loading:
		return "Creating Account..."
	case d.SignIn:
		return "SIGN IN WITH EMAIL"
	default:
		return "SIGN UP WITH EMAIL"
	}
}

// Modal renders the sign-up dialog. A closed modal is an empty placeholder
// so htmx always has a target.
func Modal(d ModalData) g.Node {
	if d.Screen == ModalScreenClosed || d.Screen == "" {
		return h.Div(h.ID(ModalID))
	}

	var screen g.Node
	if d.Screen == ModalScreenPassword {
		screen = passwordScreen(d)
	} else {
		screen = chooserScreen(d)
	}

	return h.Div(h.ID(ModalID), h.Class("modal"), g.Attr("data-screen", d.Screen),
		PostForm("/signup/close", d.CSRFToken,
			h.Button(h.Type("submit"), h.Class("modal-backdrop"), g.Attr("aria-label", "Close"), g.Attr("tabindex", "-1")),
		),
		h.Div(h.Class("modal-panel"), g.Attr("role", "dialog"), g.Attr("aria-modal", "true"), g.Attr("aria-labelledby", "signup-title"),
			h.Div(h.Class("modal-header"),
				h.H2(h.ID("signup-title"), g.Text(d.title())),
				PostForm("/signup/close", d.CSRFToken,
					h.Button(h.Type("submit"), h.Class("modal-close"), g.Attr("aria-label", "Close"), g.Text("✕")),
				),
			),
			screen,
			g.If(d.Error != "", h.P(h.Class("modal-error"), g.Attr("role", "alert"), g.Text(d.Error))),
			g.If(!d.Loading, modeSwitch(d)),
		),
	)
}

func chooserScreen(d ModalData) g.Node {
	return h.Div(h.Class("modal-screen"),
		g.Map(d.Providers, func(p string) g.Node {
			return PostForm("/signup/oauth/"+p, d.CSRFToken,
				h.Button(h.Type("submit"), h.Class("button button-provider"), g.Attr("data-provider", p),
					h.Img(h.Src("/static/"+p+".svg"), h.Alt(providerLabel(p)), g.Attr("width", "20"), g.Attr("height", "20")),
					g.Text("Continue with "+providerLabel(p)),
				),
			)
		}),
		g.If(len(d.Providers) > 0,
			h.Div(h.Class("separator"), h.Span(g.Text("Or continue with email"))),
		),
		PostForm("/signup/email", d.CSRFToken,
			g.El("label", h.For("signup-email"), h.Class("field-label"), g.Text("Email")),
			h.Input(h.ID("signup-email"), h.Type("email"), h.Name("email"), h.Value(d.Email),
				h.Placeholder("Enter your email"), h.AutoComplete("email"), g.Attr("required"), h.Class("field")),
			h.Button(h.Type("submit"), h.Class("button button-light"), g.Text("CONTINUE"), ArrowIcon(12, "arrow")),
		),
	)
}

func passwordScreen(d ModalData) g.Node {
	placeholder := "Create a password"
	autocomplete := "new-password"
	if d.SignIn {
		placeholder = "Enter your password"
		autocomplete = "current-password"
	}

	return h.Div(h.Class("modal-screen"),
		h.Div(h.Class("modal-email"),
			h.Span(h.Class("modal-email-value"), g.Text(d.Email)),
			g.If(!d.Loading, PostForm("/signup/back", d.CSRFToken,
				h.Button(h.Type("submit"), h.Class("link-button"), g.Text("Change")),
			)),
		),
		PostForm("/signup/submit", d.CSRFToken,
			g.Attr("hx-disabled-elt", "find button[type='submit']"),
			g.El("label", h.For("signup-password"), h.Class("field-label"), g.Text("Password")),
			h.Input(h.ID("signup-password"), h.Type("password"), h.Name("password"),
				h.Placeholder(placeholder), h.AutoComplete(autocomplete), g.Attr("required"), h.Class("field"),
				g.If(d.Loading, g.Attr("disabled"))),
			h.Button(h.Type("submit"), h.Class("button button-light"), h.ID("signup-submit"),
				g.If(d.Loading, g.Attr("disabled")),
				g.Text(d.submitLabel()),
				g.If(!d.Loading, ArrowIcon(12, "arrow")),
			),
		),
	)
}

func modeSwitch(d ModalData) g.Node {
	target, prompt, action := "sign_in", "Already have an account?", "Sign in"
	if d.SignIn {
		target, prompt, action = "sign_up", "New to Flowweave?", "Create an account"
	}
	return PostForm("/signup/mode", d.CSRFToken,
		h.Input(h.Type("hidden"), h.Name("mode"), h.Value(target)),
		h.P(h.Class("modal-switch"),
			g.Text(prompt+" "),
			h.Button(h.Type("submit"), h.Class("link-button"), g.Text(action)),
		),
	)
}

func providerLabel(p string) string {
	switch p {
	case "github":
		return "GitHub"
	case "gitlab":
		return "GitLab"
	}
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}
