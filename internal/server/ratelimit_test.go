package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/flowweave/flowweave-web/internal/config"
)

func limitSignupTo(n int) func(*config.Config) {
	return func(cfg *config.Config) {
		cfg.Signup.RateLimit = n
		cfg.Signup.RateWindow = time.Minute
	}
}

func TestSignupRoutesShareOneBudgetPerClient(t *testing.T) {
	t.Parallel()
	app := newTestAppWith(t, limitSignupTo(2))

	if got := app.do(t, http.MethodPost, "/signup/open", url.Values{}, true).Code; got != http.StatusOK {
		t.Fatalf("open status = %d, want %d", got, http.StatusOK)
	}
	if got := app.do(t, http.MethodPost, "/signup/close", url.Values{}, true).Code; got != http.StatusOK {
		t.Fatalf("close status = %d, want %d", got, http.StatusOK)
	}

	rec := app.do(t, http.MethodPost, "/signup/oauth/google", url.Values{}, true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third signup action status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	// two requests a minute refill one token every 30 seconds
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("Retry-After = %q, want %q", got, "30")
	}
	if got := rec.Header().Get("HX-Redirect"); got != "" {
		t.Fatalf("throttled oauth start still redirected to %q", got)
	}

	if got := app.do(t, http.MethodGet, "/", nil, false).Code; got != http.StatusOK {
		t.Fatalf("home page should not be rate limited, got %d", got)
	}
	if got := app.do(t, http.MethodGet, "/auth/callback?flow=x", nil, false).Code; got != http.StatusTooManyRequests {
		t.Fatalf("callback status = %d, want %d", got, http.StatusTooManyRequests)
	}
}

func TestSignupRateLimitIsPerClientAddress(t *testing.T) {
	t.Parallel()
	app := newTestAppWith(t, limitSignupTo(1))

	app.remoteAddr = "198.51.100.10:1000"
	if got := app.do(t, http.MethodPost, "/signup/open", url.Values{}, true).Code; got != http.StatusOK {
		t.Fatalf("first client status = %d, want %d", got, http.StatusOK)
	}
	app.remoteAddr = "198.51.100.10:2000"
	if got := app.do(t, http.MethodPost, "/signup/close", url.Values{}, true).Code; got != http.StatusTooManyRequests {
		t.Fatalf("same address on another port status = %d, want %d", got, http.StatusTooManyRequests)
	}
	app.remoteAddr = "198.51.100.11:1000"
	if got := app.do(t, http.MethodPost, "/signup/close", url.Values{}, true).Code; got != http.StatusOK {
		t.Fatalf("second client status = %d, want %d", got, http.StatusOK)
	}
}

func TestIPLimiterRefillsAndForgetsIdleClients(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	limiter := newIPLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := range 2 {
		if wait := limiter.reserve("203.0.113.5"); wait != 0 {
			t.Fatalf("request %d waited %v, want none", i+1, wait)
		}
	}
	if wait := limiter.reserve("203.0.113.5"); wait != 30*time.Second {
		t.Fatalf("exhausted wait = %v, want 30s", wait)
	}
	// the refused request above did not consume a token
	now = now.Add(30 * time.Second)
	if wait := limiter.reserve("203.0.113.5"); wait != 0 {
		t.Fatalf("wait after refill = %v, want none", wait)
	}

	now = now.Add(3 * time.Minute)
	limiter.reserve("203.0.113.6")
	if got := limiter.tracked(); got != 1 {
		t.Fatalf("tracked clients = %d, want 1 after the idle one is swept", got)
	}
}

func TestNormalizedClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "203.0.113.9:8080", want: "203.0.113.9"},
		{name: "ipv6 with port", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "mapped ipv4", remoteAddr: "[::ffff:203.0.113.7]:443", want: "203.0.113.7"},
		{name: "bare address from a proxy header", remoteAddr: "203.0.113.10", want: "203.0.113.10"},
		{name: "empty", remoteAddr: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if got := normalizedClientIP(r); got != tt.want {
				t.Fatalf("normalizedClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
			}
		})
	}
}
