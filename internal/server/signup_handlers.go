package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/flowweave/flowweave-web/internal/logger"
	"github.com/flowweave/flowweave-web/internal/signup"
	"github.com/flowweave/flowweave-web/internal/web/pages"
)

type modalAction func(ctx context.Context, id string, r *http.Request) (signup.Session, error)

// modal wraps a modal action: it resolves the session cookie, runs the
// action and answers with the modal fragment (htmx) or a redirect home.
func (h handler) modal(action modalAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := h.modalSessionID(w, r, true)
		sess, err := action(r.Context(), id, r)
		if err != nil && !h.reportModalError(r, err) {
			http.Error(w, "something went wrong", http.StatusInternalServerError)
			return
		}
		h.respondModal(w, r, sess)
	}
}

func (h handler) openModal(ctx context.Context, id string, _ *http.Request) (signup.Session, error) {
	return h.signup.Open(ctx, id)
}

func (h handler) closeModal(ctx context.Context, id string, _ *http.Request) (signup.Session, error) {
	return h.signup.Close(ctx, id)
}

func (h handler) continueWithEmail(ctx context.Context, id string, r *http.Request) (signup.Session, error) {
	return h.signup.ContinueWithEmail(ctx, id, r.PostFormValue("email"))
}

func (h handler) backToChooser(ctx context.Context, id string, _ *http.Request) (signup.Session, error) {
	return h.signup.Back(ctx, id)
}

func (h handler) switchMode(ctx context.Context, id string, r *http.Request) (signup.Session, error) {
	mode, ok := signup.ParseMode(r.PostFormValue("mode"))
	if !ok {
		return h.signup.View(ctx, id)
	}
	return h.signup.SetMode(ctx, id, mode)
}

func (h handler) submitPassword(ctx context.Context, id string, r *http.Request) (signup.Session, error) {
	return h.signup.Submit(ctx, id, r.PostFormValue("password"))
}

func (h handler) startOAuth(w http.ResponseWriter, r *http.Request) {
	id := h.modalSessionID(w, r, true)
	provider := chi.URLParam(r, "provider")

	redirect, sess, err := h.signup.InitiateOAuth(r.Context(), id, provider)
	if err != nil {
		if !h.reportModalError(r, err) {
			http.Error(w, "something went wrong", http.StatusInternalServerError)
			return
		}
		h.respondModal(w, r, sess)
		return
	}

	if isHtmx(r) {
		w.Header().Set("HX-Redirect", redirect)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// oauthCallback is where the identity provider sends the browser back after
// an OAuth sign-in.
func (h handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	id := h.modalSessionID(w, r, true)
	q := r.URL.Query()
	providerErr := firstNonEmpty(q.Get("error_description"), q.Get("error"))

	_, err := h.signup.CompleteOAuth(r.Context(), id, q.Get("flow"), q.Get("code"), providerErr)
	if err != nil && !h.reportModalError(r, err) {
		http.Error(w, "something went wrong", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// reportModalError logs err and reports whether it is already reflected in
// the session shown to the visitor.
func (h handler) reportModalError(r *http.Request, err error) bool {
	log := logger.FromContext(r.Context(), h.logger)
	if signup.IsUserFacing(err) {
		log.Debug("signup action rejected", zap.String("path", r.URL.Path), zap.Error(err))
		return true
	}
	log.Error("signup action failed", zap.String("path", r.URL.Path), zap.Error(err))
	return false
}

func (h handler) respondModal(w http.ResponseWriter, r *http.Request, sess signup.Session) {
	if !isHtmx(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if sess.Notice != "" {
		// the notice lives on the full page
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}
	h.renderPage(w, r, pages.SignUpModal(pages.ModalFromSession(sess, h.signup.Providers(), csrfTokenFromContext(r))))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
