package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppName         string        `env:"APP_NAME"         envDefault:"Flowweave"`
	AppEnv          string        `env:"APP_ENV"          envDefault:"development"`
	AppURL          string        `env:"APP_URL"          envDefault:"http://127.0.0.1:8080"`
	AppLaunchURL    string        `env:"APP_LAUNCH_URL"   envDefault:"https://app_flowweave.ar.io"`
	HTTPAddr        string        `env:"HTTP_ADDR"        envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	ContentDir      string        `env:"CONTENT_DIR"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED"  envDefault:"true"`
	Identity        IdentityConfig
	Signup          SignupConfig
	Database        DatabaseConfig
}

type IdentityConfig struct {
	URL            string        `env:"IDENTITY_URL"`
	AnonKey        string        `env:"IDENTITY_ANON_KEY"`
	JWTSecret      string        `env:"IDENTITY_JWT_SECRET"`
	Timeout        time.Duration `env:"IDENTITY_TIMEOUT"         envDefault:"10s"`
	OAuthProviders []string      `env:"IDENTITY_OAUTH_PROVIDERS" envDefault:"google" envSeparator:","`
}

type SignupConfig struct {
	CookieName   string        `env:"SIGNUP_COOKIE_NAME"   envDefault:"flowweave_signup"`
	SessionTTL   time.Duration `env:"SIGNUP_SESSION_TTL"   envDefault:"30m"`
	CookieSecure bool          `env:"SIGNUP_COOKIE_SECURE"`
	RateLimit    int           `env:"SIGNUP_RATE_LIMIT"    envDefault:"10"`
	RateWindow   time.Duration `env:"SIGNUP_RATE_WINDOW"   envDefault:"1m"`
}

// DatabaseConfig is optional; an empty URL selects the in-memory session store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS"          envDefault:"4"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME"  envDefault:"30m"`
	MaxConnIdleTime time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" envDefault:"5m"`
}

func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.URL) != ""
}

// parseOptions lets every duration also be given as bare seconds.
func parseOptions() env.Options {
	return env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(v string) (any, error) {
				return parseDuration(v)
			},
		},
	}
}

func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, parseOptions()); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AppEnv = strings.TrimSpace(cfg.AppEnv)
	cfg.ContentDir = strings.TrimSpace(cfg.ContentDir)
	cfg.Identity.URL = strings.TrimRight(strings.TrimSpace(cfg.Identity.URL), "/")
	cfg.Identity.AnonKey = strings.TrimSpace(cfg.Identity.AnonKey)
	cfg.Identity.JWTSecret = strings.TrimSpace(cfg.Identity.JWTSecret)
	cfg.Identity.OAuthProviders = normalizeProviders(cfg.Identity.OAuthProviders)

	appURL, err := url.Parse(strings.TrimSpace(cfg.AppURL))
	if err != nil || appURL.Scheme == "" || appURL.Host == "" {
		return Config{}, errors.New("APP_URL must be a valid absolute URL")
	}
	if strings.EqualFold(cfg.AppEnv, "production") && !strings.EqualFold(appURL.Scheme, "https") {
		return Config{}, errors.New("APP_URL must use https in production")
	}
	cfg.AppURL = strings.TrimRight(appURL.String(), "/")

	identityURL, err := url.Parse(cfg.Identity.URL)
	if cfg.Identity.URL == "" || err != nil || identityURL.Scheme == "" || identityURL.Host == "" {
		return Config{}, errors.New("IDENTITY_URL must be a valid absolute URL")
	}
	if cfg.Identity.AnonKey == "" {
		return Config{}, errors.New("IDENTITY_ANON_KEY is required")
	}

	if cfg.Signup.RateLimit <= 0 {
		return Config{}, errors.New("SIGNUP_RATE_LIMIT must be a positive integer")
	}
	for name, d := range map[string]time.Duration{
		"SHUTDOWN_TIMEOUT":   cfg.ShutdownTimeout,
		"IDENTITY_TIMEOUT":   cfg.Identity.Timeout,
		"SIGNUP_SESSION_TTL": cfg.Signup.SessionTTL,
		"SIGNUP_RATE_WINDOW": cfg.Signup.RateWindow,
	} {
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", name)
		}
	}
	if err := cfg.Database.check(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings, for tooling that never
// talks to the identity provider.
func LoadDatabase() (DatabaseConfig, error) {
	var db DatabaseConfig
	if err := env.ParseWithOptions(&db, parseOptions()); err != nil {
		return DatabaseConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := db.check(); err != nil {
		return DatabaseConfig{}, err
	}
	if !db.Enabled() {
		return DatabaseConfig{}, errors.New("DATABASE_URL is required")
	}
	return db, nil
}

func (d *DatabaseConfig) check() error {
	d.URL = strings.TrimSpace(d.URL)
	if d.MaxConns <= 0 {
		return errors.New("DATABASE_MAX_CONNS must be a positive integer")
	}
	return nil
}

func normalizeProviders(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(seconds) * time.Second, nil
}
