// Package identity talks to the hosted identity provider that owns every
// credential. The wire format follows the GoTrue REST API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "flowweave-web"
)

type Client struct {
	baseURL    string
	apiKey     string
	jwtSecret  []byte
	httpClient *http.Client
}

type Options struct {
	BaseURL   string
	APIKey    string
	JWTSecret string
	Timeout   time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	parsed, err := url.Parse(base)
	if base == "" || err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("identity: base url must be absolute")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("identity: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var secret []byte
	if s := strings.TrimSpace(opts.JWTSecret); s != "" {
		secret = []byte(s)
	}
	return &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
		jwtSecret:  secret,
		httpClient: httpClient,
	}, nil
}

type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty"`
	EmailConfirmedAt   *time.Time `json:"email_confirmed_at,omitempty"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type SignUpRequest struct {
	Email      string
	Password   string
	RedirectTo string
}

type SignUpResult struct {
	User User
	// Session is set when the provider auto-confirms new accounts.
	Session *Session
}

// AwaitingConfirmation reports whether the provider expects the user to
// follow an emailed confirmation link before signing in.
func (r SignUpResult) AwaitingConfirmation() bool {
	return r.Session == nil || strings.TrimSpace(r.Session.AccessToken) == ""
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (SignUpResult, error) {
	q := url.Values{}
	if redirect := strings.TrimSpace(req.RedirectTo); redirect != "" {
		q.Set("redirect_to", redirect)
	}
	body := map[string]string{
		"email":    strings.TrimSpace(req.Email),
		"password": req.Password,
	}

	// Depending on autoconfirm the provider answers with either a bare user
	// or a session wrapping the user.
	var payload struct {
		Session
		ID                 string     `json:"id"`
		Email              string     `json:"email"`
		ConfirmationSentAt *time.Time `json:"confirmation_sent_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", q, body, &payload); err != nil {
		return SignUpResult{}, err
	}

	if strings.TrimSpace(payload.AccessToken) != "" {
		sess := payload.Session
		return SignUpResult{User: sess.User, Session: &sess}, nil
	}
	return SignUpResult{User: User{
		ID:                 payload.ID,
		Email:              payload.Email,
		ConfirmationSentAt: payload.ConfirmationSentAt,
	}}, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	q := url.Values{}
	q.Set("grant_type", "password")
	body := map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

type AuthorizeRequest struct {
	Provider      string
	RedirectTo    string
	CodeChallenge string
	QueryParams   map[string]string
}

// AuthorizeURL builds the browser redirect that starts a PKCE OAuth sign-in.
// No request is sent; the provider validates everything once the browser
// arrives.
func (c *Client) AuthorizeURL(req AuthorizeRequest) (string, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		return "", &Error{Status: http.StatusBadRequest, Code: "validation_failed", Message: "provider is required"}
	}
	q := url.Values{}
	for k, v := range req.QueryParams {
		q.Set(k, v)
	}
	q.Set("provider", provider)
	if redirect := strings.TrimSpace(req.RedirectTo); redirect != "" {
		q.Set("redirect_to", redirect)
	}
	if challenge := strings.TrimSpace(req.CodeChallenge); challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (Session, error) {
	if strings.TrimSpace(authCode) == "" || strings.TrimSpace(codeVerifier) == "" {
		return Session{}, &Error{Status: http.StatusBadRequest, Code: "validation_failed", Message: "auth code and code verifier are required"}
	}
	q := url.Values{}
	q.Set("grant_type", "pkce")
	body := map[string]string{
		"auth_code":     strings.TrimSpace(authCode),
		"code_verifier": strings.TrimSpace(codeVerifier),
	}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/v1/health", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, dst any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("authorization", "Bearer "+c.apiKey)
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", userAgent)
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return transportError(err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errorFromResponse(res.StatusCode, raw)
	}
	if dst == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Status: http.StatusBadGateway, Code: "bad_response", Message: DefaultMessage, cause: err}
	}
	return nil
}
