package server

import (
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/flowweave/flowweave-web/internal/config"
	"github.com/flowweave/flowweave-web/internal/content"
	"github.com/flowweave/flowweave-web/internal/metrics"
	"github.com/flowweave/flowweave-web/internal/signup"
	webstatic "github.com/flowweave/flowweave-web/static"
)

// Deps are the collaborators the router wires into handlers. Metrics and
// Gatherer are optional.
type Deps struct {
	Logger       *zap.Logger
	Signup       *signup.Service
	Landing      *content.Loader
	HealthChecks []HealthCheck
	Metrics      *metrics.Collector
	Gatherer     prometheus.Gatherer
}

func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   appOrigins(cfg.AppURL),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", "HX-Request", "HX-Current-URL", "HX-Target", "HX-Trigger"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	var rec requestRecorder
	if deps.Metrics != nil {
		rec = deps.Metrics
	}
	r.Use(observeRequests(deps.Logger, rec))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	staticFS := webstatic.FileSystem()
	// development serves edits from disk without a rebuild
	if strings.EqualFold(cfg.AppEnv, "development") {
		if _, err := os.Stat("static"); err == nil {
			staticFS = http.Dir("static")
		}
	}

	h := newHandler(cfg, deps)
	limiter := newIPLimiter(cfg.Signup.RateLimit, cfg.Signup.RateWindow)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(staticFS)))
	r.Get("/healthz", h.healthz)
	r.Get("/api/health", h.healthz)
	if cfg.MetricsEnabled && deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(limitForms)
		r.Use(requireCSRF)

		r.Get("/", h.homePage)

		r.Group(func(r chi.Router) {
			r.Use(limiter.middleware)
			r.Post("/signup/open", h.modal(h.openModal))
			r.Post("/signup/close", h.modal(h.closeModal))
			r.Post("/signup/email", h.modal(h.continueWithEmail))
			r.Post("/signup/back", h.modal(h.backToChooser))
			r.Post("/signup/mode", h.modal(h.switchMode))
			r.Post("/signup/submit", h.modal(h.submitPassword))
			r.Post("/signup/oauth/{provider}", h.startOAuth)
			r.Get("/auth/callback", h.oauthCallback)
		})
	})

	return r
}

func appOrigins(appURL string) []string {
	appURL = strings.TrimSpace(appURL)
	if appURL == "" {
		return nil
	}
	parsed, err := url.Parse(appURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}
	return []string{parsed.Scheme + "://" + parsed.Host}
}
