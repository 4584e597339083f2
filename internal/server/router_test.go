package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowweave/flowweave-web/internal/config"
	"github.com/flowweave/flowweave-web/internal/content"
	"github.com/flowweave/flowweave-web/internal/identity"
	"github.com/flowweave/flowweave-web/internal/metrics"
	"github.com/flowweave/flowweave-web/internal/signup"
)

type stubAuth struct {
	signUpResult identity.SignUpResult
	signUpErr    error
	signUps      int
	verifyErr    error
}

func (s *stubAuth) SignUp(_ context.Context, _ identity.SignUpRequest) (identity.SignUpResult, error) {
	s.signUps++
	return s.signUpResult, s.signUpErr
}

func (s *stubAuth) SignInWithPassword(_ context.Context, email, _ string) (identity.Session, error) {
	return identity.Session{AccessToken: "tok", User: identity.User{Email: email}}, nil
}

func (s *stubAuth) AuthorizeURL(req identity.AuthorizeRequest) (string, error) {
	q := url.Values{}
	q.Set("provider", req.Provider)
	q.Set("redirect_to", req.RedirectTo)
	q.Set("code_challenge", req.CodeChallenge)
	return "https://auth.example.com/auth/v1/authorize?" + q.Encode(), nil
}

func (s *stubAuth) ExchangeCode(context.Context, string, string) (identity.Session, error) {
	return identity.Session{AccessToken: "tok", User: identity.User{Email: "oauth@example.com"}}, nil
}

func (s *stubAuth) VerifyAccessToken(string) (identity.Claims, error) {
	if s.verifyErr != nil {
		return identity.Claims{}, s.verifyErr
	}
	return identity.Claims{}, identity.ErrVerificationDisabled
}

type testApp struct {
	router     http.Handler
	auth       *stubAuth
	cookies    map[string]*http.Cookie
	csrf       string
	remoteAddr string
}

func newTestApp(t *testing.T, checks ...HealthCheck) *testApp {
	t.Helper()
	return newTestAppWith(t, nil, checks...)
}

// newTestAppWith lets a test adjust the config before the router is built.
func newTestAppWith(t *testing.T, adjust func(*config.Config), checks ...HealthCheck) *testApp {
	t.Helper()

	cfg := config.Config{
		AppName:        "Flowweave",
		AppEnv:         "test",
		AppURL:         "https://flowweave.example.com",
		AppLaunchURL:   "https://app.example.com",
		MetricsEnabled: true,
		Signup: config.SignupConfig{
			CookieName: "flowweave_signup",
			SessionTTL: 30 * time.Minute,
			RateLimit:  100,
			RateWindow: time.Minute,
		},
	}
	if adjust != nil {
		adjust(&cfg)
	}
	auth := &stubAuth{}
	svc := signup.NewService(signup.NewMemoryStore(), auth, signup.Options{
		AppURL:          cfg.AppURL,
		Providers:       []string{"google", "github"},
		ProviderTimeout: time.Second,
	})
	reg := prometheus.NewRegistry()

	app := &testApp{
		router: NewRouter(cfg, Deps{
			Signup:       svc,
			Landing:      content.NewLoader("", 0),
			HealthChecks: checks,
			Metrics:      metrics.NewCollector(reg),
			Gatherer:     reg,
		}),
		auth:    auth,
		cookies: map[string]*http.Cookie{},
	}

	rec := app.do(t, http.MethodGet, "/", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", rec.Code, http.StatusOK)
	}
	c, ok := app.cookies[csrfCookieName]
	if !ok || c.Value == "" {
		t.Fatalf("expected csrf cookie on first page view")
	}
	app.csrf = c.Value
	return app
}

// do sends a request carrying every cookie seen so far. Form posts get the
// csrf token unless the form already names one.
func (a *testApp) do(t *testing.T, method, path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if form != nil {
		if _, ok := form["csrf_token"]; !ok {
			form.Set("csrf_token", a.csrf)
		}
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	if a.remoteAddr != "" {
		req.RemoteAddr = a.remoteAddr
	}
	for _, c := range a.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		a.cookies[c.Name] = c
	}
	return rec
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestHomePageRendersLandingAndClosedModal(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/", nil, false)
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Fatalf("content type = %q, want text/html", got)
	}
	if _, ok := app.cookies["flowweave_signup"]; ok {
		t.Fatalf("plain page view should not set the modal cookie")
	}

	doc := parseHTML(t, rec)
	if got := doc.Find(".hero-emphasis").Text(); got != "permanent" {
		t.Fatalf("hero emphasis = %q, want %q", got, "permanent")
	}
	if got, _ := doc.Find("a.hero-launch").Attr("href"); got != "https://app.example.com" {
		t.Fatalf("launch href = %q", got)
	}
	if doc.Find("#signup-cta").Length() != 1 {
		t.Fatalf("expected the sign-up call to action")
	}
	modal := doc.Find("#signup-modal")
	if modal.Length() != 1 || modal.Children().Length() != 0 {
		t.Fatalf("expected an empty modal placeholder, got %d children", modal.Children().Length())
	}
	if got, _ := doc.Find(`input[name="csrf_token"]`).First().Attr("value"); got != app.csrf {
		t.Fatalf("csrf field = %q, want cookie value %q", got, app.csrf)
	}
	if doc.Find("video").Length() != 0 {
		t.Fatalf("default landing copy should not reference a video asset")
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/", nil, false)
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Fatalf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestModalPostRequiresCSRFToken(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong token", token: "not-the-cookie"},
		{name: "empty token", token: ""},
	}
	for _, tt := range tests {
		form := url.Values{"csrf_token": {tt.token}}
		rec := app.do(t, http.MethodPost, "/signup/open", form, true)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: status = %d, want %d", tt.name, rec.Code, http.StatusForbidden)
		}
	}
}

func TestOpenModalReturnsChooserFragment(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	cookie, ok := app.cookies["flowweave_signup"]
	if !ok || cookie.Value == "" {
		t.Fatalf("expected modal session cookie")
	}
	if !cookie.HttpOnly {
		t.Fatalf("modal session cookie must be HttpOnly")
	}

	doc := parseHTML(t, rec)
	if doc.Find("nav").Length() != 0 {
		t.Fatalf("htmx response should be a fragment")
	}
	modal := doc.Find("#signup-modal")
	if got, _ := modal.Attr("data-screen"); got != "choosing_method" {
		t.Fatalf("data-screen = %q, want choosing_method", got)
	}
	if got := doc.Find("#signup-title").Text(); got != "Create Account" {
		t.Fatalf("title = %q, want Create Account", got)
	}
	if got := doc.Find(".button-provider").Length(); got != 2 {
		t.Fatalf("provider buttons = %d, want 2", got)
	}
}

func TestNonHtmxModalPostRedirectsHome(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/signup/open", url.Values{}, false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "/" {
		t.Fatalf("location = %q, want /", got)
	}

	doc := parseHTML(t, app.do(t, http.MethodGet, "/", nil, false))
	if got, _ := doc.Find("#signup-modal").Attr("data-screen"); got != "choosing_method" {
		t.Fatalf("full page modal screen = %q, want choosing_method", got)
	}
}

func TestEmptyEmailShowsValidationError(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/email", url.Values{"email": {"  "}}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	doc := parseHTML(t, rec)
	if got := doc.Find(".modal-error").Text(); got != "Email is required" {
		t.Fatalf("error = %q, want %q", got, "Email is required")
	}
	if doc.Find("#signup-email").Length() != 1 {
		t.Fatalf("expected the email form to stay on screen")
	}
}

func TestSignUpSubmissionLeavesNoticeOnce(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.auth.signUpResult = identity.SignUpResult{User: identity.User{Email: "ada@example.com"}}

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/email", url.Values{"email": {"ada@example.com"}}, true)
	doc := parseHTML(t, rec)
	if got := doc.Find(".modal-email-value").Text(); got != "ada@example.com" {
		t.Fatalf("email shown = %q", got)
	}

	rec = app.do(t, http.MethodPost, "/signup/submit", url.Values{"password": {"correct-horse"}}, true)
	if got := rec.Header().Get("HX-Redirect"); got != "/" {
		t.Fatalf("HX-Redirect = %q, want /", got)
	}
	if app.auth.signUps != 1 {
		t.Fatalf("sign-up calls = %d, want 1", app.auth.signUps)
	}

	doc = parseHTML(t, app.do(t, http.MethodGet, "/", nil, false))
	if got := doc.Find("#notice").Text(); got != "Check your email for the confirmation link!" {
		t.Fatalf("notice = %q", got)
	}
	if doc.Find("#signup-modal").Children().Length() != 0 {
		t.Fatalf("modal should be closed after a successful sign-up")
	}

	doc = parseHTML(t, app.do(t, http.MethodGet, "/", nil, false))
	if doc.Find("#notice").Length() != 0 {
		t.Fatalf("notice should only be shown once")
	}
}

func TestRejectedSubmissionNeverEchoesPassword(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.auth.signUpErr = &identity.Error{Status: http.StatusUnprocessableEntity, Message: "Password should be at least 6 characters"}

	const password = "pw5!x"
	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	app.do(t, http.MethodPost, "/signup/email", url.Values{"email": {"ada@example.com"}}, true)
	rec := app.do(t, http.MethodPost, "/signup/submit", url.Values{"password": {password}}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), password) {
		t.Fatalf("response body contains the submitted password")
	}

	doc := parseHTML(t, rec)
	if got := doc.Find(".modal-error").Text(); got != "Password should be at least 6 characters" {
		t.Fatalf("error = %q", got)
	}
	if _, ok := doc.Find("#signup-password").Attr("value"); ok {
		t.Fatalf("password input must not carry a value")
	}
	if _, ok := doc.Find("#signup-submit").Attr("disabled"); ok {
		t.Fatalf("submit button should be enabled again after a rejection")
	}
}

func TestSwitchModeToSignIn(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/mode", url.Values{"mode": {"sign_in"}}, true)
	doc := parseHTML(t, rec)
	if got := doc.Find("#signup-title").Text(); got != "Sign In" {
		t.Fatalf("title = %q, want Sign In", got)
	}

	rec = app.do(t, http.MethodPost, "/signup/mode", url.Values{"mode": {"bogus"}}, true)
	doc = parseHTML(t, rec)
	if got := doc.Find("#signup-title").Text(); got != "Sign In" {
		t.Fatalf("unknown mode changed title to %q", got)
	}
}

func TestOAuthRoundTrip(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/oauth/google", url.Values{}, false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Host != "auth.example.com" || location.Query().Get("provider") != "google" {
		t.Fatalf("unexpected provider redirect %q", location)
	}
	callback, err := url.Parse(location.Query().Get("redirect_to"))
	if err != nil {
		t.Fatalf("parse redirect_to: %v", err)
	}
	if callback.Path != "/auth/callback" {
		t.Fatalf("callback path = %q", callback.Path)
	}
	flow := callback.Query().Get("flow")
	if flow == "" {
		t.Fatalf("callback url carries no flow token")
	}

	rec = app.do(t, http.MethodGet, "/auth/callback?flow="+url.QueryEscape(flow)+"&code=abc", nil, false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("callback = %d %q, want 303 /", rec.Code, rec.Header().Get("Location"))
	}

	doc := parseHTML(t, app.do(t, http.MethodGet, "/", nil, false))
	if got := doc.Find("#notice").Text(); got != "Signed in as oauth@example.com." {
		t.Fatalf("notice = %q", got)
	}

	// a replayed callback finds no flow
	app.do(t, http.MethodGet, "/auth/callback?flow="+url.QueryEscape(flow)+"&code=abc", nil, false)
	doc = parseHTML(t, app.do(t, http.MethodGet, "/", nil, false))
	if got := doc.Find(".modal-error").Text(); got != "Your sign-in attempt expired. Please try again." {
		t.Fatalf("replay error = %q", got)
	}
}

func TestOAuthStartHtmxUsesHXRedirect(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/oauth/github", url.Values{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("HX-Redirect"); !strings.HasPrefix(got, "https://auth.example.com/") {
		t.Fatalf("HX-Redirect = %q", got)
	}
}

func TestOAuthUnknownProviderShowsError(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/oauth/myspace", url.Values{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	doc := parseHTML(t, rec)
	if got := doc.Find(".modal-error").Text(); got != "That sign-in option is not available." {
		t.Fatalf("error = %q", got)
	}
}

func TestOAuthStartFromClosedModalDoesNotRedirect(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/signup/oauth/google", url.Values{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("HX-Redirect"); got != "" {
		t.Fatalf("HX-Redirect = %q, want none", got)
	}
	if got := parseHTML(t, rec).Find("#signup-modal").Children().Length(); got != 0 {
		t.Fatalf("modal should stay closed, got %d children", got)
	}
}

func TestOAuthCallbackWithUnverifiableTokenShowsError(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.auth.verifyErr = errors.New("token is unverifiable: signing method RS256 is invalid")

	app.do(t, http.MethodPost, "/signup/open", url.Values{}, true)
	rec := app.do(t, http.MethodPost, "/signup/oauth/google", url.Values{}, false)
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	callback, err := url.Parse(location.Query().Get("redirect_to"))
	if err != nil {
		t.Fatalf("parse redirect_to: %v", err)
	}

	rec = app.do(t, http.MethodGet, "/auth/callback?flow="+url.QueryEscape(callback.Query().Get("flow"))+"&code=abc", nil, false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("callback = %d %q, want 303 /", rec.Code, rec.Header().Get("Location"))
	}

	doc := parseHTML(t, app.do(t, http.MethodGet, "/", nil, false))
	if got := doc.Find(".modal-error").Text(); got != identity.DefaultMessage {
		t.Fatalf("error = %q, want %q", got, identity.DefaultMessage)
	}
	if doc.Find("#notice").Length() != 0 {
		t.Fatalf("a rejected token must not sign the visitor in")
	}
}

func TestOversizedFormIsRejected(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	form := url.Values{"email": {strings.Repeat("a", defaultRequestBodyLimitBytes)}}
	rec := app.do(t, http.MethodPost, "/signup/email", form, true)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkErr   error
		wantStatus int
		wantState  string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantState: "ok"},
		{name: "degraded", checkErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := newTestApp(t, HealthCheck{
				Name:  "identity",
				Check: func(context.Context) error { return tt.checkErr },
			})

			rec := app.do(t, http.MethodGet, "/healthz", nil, false)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantState {
				t.Fatalf("status field = %q, want %q", body.Status, tt.wantState)
			}
			if _, ok := body.Checks["identity"]; !ok {
				t.Fatalf("expected identity check in %v", body.Checks)
			}
		})
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/metrics", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `flowweave_http_requests_total{method="GET",route="/",status="200"}`) {
		t.Fatalf("expected the home page request to be counted")
	}
}

func TestStaticAssetsAreServed(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	for _, path := range []string{"/static/app.css", "/static/logo.svg", "/static/Arrow.svg", "/static/google.svg"} {
		rec := app.do(t, http.MethodGet, path, nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
	if got := app.do(t, http.MethodGet, "/static/staticfs.go", nil, false).Code; got != http.StatusNotFound {
		t.Fatalf("source file status = %d, want %d", got, http.StatusNotFound)
	}
}
