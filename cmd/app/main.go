package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/flowweave/flowweave-web/internal/config"
	"github.com/flowweave/flowweave-web/internal/content"
	"github.com/flowweave/flowweave-web/internal/identity"
	"github.com/flowweave/flowweave-web/internal/logger"
	"github.com/flowweave/flowweave-web/internal/metrics"
	"github.com/flowweave/flowweave-web/internal/postgres"
	"github.com/flowweave/flowweave-web/internal/server"
	"github.com/flowweave/flowweave-web/internal/signup"
)

const (
	contentReloadInterval = 30 * time.Second
	purgeInterval         = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idp, err := identity.NewClient(identity.Options{
		BaseURL:   cfg.Identity.URL,
		APIKey:    cfg.Identity.AnonKey,
		JWTSecret: cfg.Identity.JWTSecret,
		Timeout:   cfg.Identity.Timeout,
	})
	if err != nil {
		return fmt.Errorf("identity client: %w", err)
	}
	checks := []server.HealthCheck{{Name: "identity", Check: idp.Health}}

	var store signup.Store = signup.NewMemoryStore()
	if cfg.Database.Enabled() {
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		sessions := postgres.NewSessionStore(pool)
		store = sessions
		checks = append(checks, server.HealthCheck{Name: "database", Check: sessions.Ping})
		lg.Info("using postgres session store")
	} else {
		lg.Info("using in-memory session store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	svc := signup.NewService(store, idp, signup.Options{
		AppURL:          cfg.AppURL,
		Providers:       cfg.Identity.OAuthProviders,
		SessionTTL:      cfg.Signup.SessionTTL,
		ProviderTimeout: cfg.Identity.Timeout,
		Logger:          lg.Named("signup"),
		Recorder:        collector,
	})
	go purgeSessions(ctx, svc, lg)

	router := server.NewRouter(cfg, server.Deps{
		Logger:       lg,
		Signup:       svc,
		Landing:      content.NewLoader(cfg.ContentDir, contentReloadInterval),
		HealthChecks: checks,
		Metrics:      collector,
		Gatherer:     reg,
	})
	srv := server.New(cfg, router, lg)

	lg.Info("starting",
		zap.String("env", cfg.AppEnv),
		zap.String("url", listenURL(cfg.HTTPAddr)),
		zap.Strings("oauth_providers", svc.Providers()),
	)
	return srv.Start(ctx)
}

func purgeSessions(ctx context.Context, svc *signup.Service, lg *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Purge(ctx)
			if err != nil {
				lg.Warn("purge signup sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("purged signup sessions", zap.Int64("count", n))
			}
		}
	}
}

func listenURL(addr string) string {
	listen := addr
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	} else if strings.HasPrefix(listen, "0.0.0.0:") {
		listen = "127.0.0.1" + listen[len("0.0.0.0"):]
	}
	if !strings.Contains(listen, "://") {
		listen = "http://" + listen
	}
	return listen
}
