package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"github.com/flowweave/flowweave-web/internal/config"
	"github.com/flowweave/flowweave-web/internal/content"
	"github.com/flowweave/flowweave-web/internal/logger"
	"github.com/flowweave/flowweave-web/internal/signup"
	"github.com/flowweave/flowweave-web/internal/web/pages"
)

// HealthCheck is one dependency reported by the health endpoints.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type handler struct {
	appName   string
	appURL    string
	appEnv    string
	launchURL string

	signup  *signup.Service
	landing *content.Loader
	checks  []HealthCheck
	logger  *zap.Logger

	cookieName        string
	cookieTTL         time.Duration
	cookieForceSecure bool
}

func newHandler(cfg config.Config, deps Deps) handler {
	ttl := cfg.Signup.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cookieName := strings.TrimSpace(cfg.Signup.CookieName)
	if cookieName == "" {
		cookieName = "flowweave_signup"
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return handler{
		appName:           strings.TrimSpace(cfg.AppName),
		appURL:            strings.TrimSpace(cfg.AppURL),
		appEnv:            strings.TrimSpace(cfg.AppEnv),
		launchURL:         strings.TrimSpace(cfg.AppLaunchURL),
		signup:            deps.Signup,
		landing:           deps.Landing,
		checks:            deps.HealthChecks,
		logger:            log,
		cookieName:        cookieName,
		cookieTTL:         ttl,
		cookieForceSecure: cfg.Signup.CookieSecure,
	}
}

func (h handler) homePage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.logger)
	id := h.modalSessionID(w, r, false)

	sess, err := h.signup.View(r.Context(), id)
	if err != nil {
		log.Error("load signup session", zap.Error(err))
	}
	modal := pages.ModalFromSession(sess, h.signup.Providers(), csrfTokenFromContext(r))

	if isHtmx(r) {
		h.renderPage(w, r, pages.SignUpModal(modal))
		return
	}

	landing, err := h.landing.Landing()
	if err != nil {
		log.Error("load landing content", zap.Error(err))
		if landing.Brand == "" {
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}
	}

	h.renderPage(w, r, pages.HomePage(pages.HomePageModel{
		AppName:   h.appName,
		AppURL:    h.appURL,
		LaunchURL: h.launchURL,
		Landing:   landing,
		Notice:    sess.Notice,
		CSRFToken: csrfTokenFromContext(r),
		Modal:     modal,
	}))
}

func (h handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	payload := map[string]any{"status": "ok", "checks": checks}
	status := http.StatusOK

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			payload["status"] = "degraded"
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "up"
	}

	writeJSON(w, status, payload)
}

func isHtmx(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func (h handler) renderPage(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		logger.FromContext(r.Context(), h.logger).Error("render page", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
