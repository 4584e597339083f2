// Package signup implements the sign-up modal: a small view-state machine
// whose credential operations are delegated to the identity provider.
package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowweave/flowweave-web/internal/identity"
)

const (
	defaultSessionTTL = 30 * time.Minute
	// submissions outlive the provider timeout by this margin before they
	// count as lost
	staleSubmissionMargin = 5 * time.Second

	noticeConfirmEmail = "Check your email for the confirmation link!"
)

// Authenticator is the slice of the identity provider the modal uses.
type Authenticator interface {
	SignUp(ctx context.Context, req identity.SignUpRequest) (identity.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error)
	AuthorizeURL(req identity.AuthorizeRequest) (string, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (identity.Session, error)
	VerifyAccessToken(token string) (identity.Claims, error)
}

type Options struct {
	// AppURL is the public origin; sign-up confirmations return here and
	// OAuth callbacks land on AppURL + "/auth/callback".
	AppURL          string
	Providers       []string
	SessionTTL      time.Duration
	ProviderTimeout time.Duration
	FlowTTL         time.Duration
	Logger          *zap.Logger
	Recorder        Recorder
}

type Service struct {
	store      Store
	auth       Authenticator
	flows      *flowStore
	appURL     string
	providers  map[string]bool
	ttl        time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	recorder   Recorder
	now        func() time.Time
}

func NewService(store Store, auth Authenticator, opts Options) *Service {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var recorder Recorder = nopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
	}
	providers := make(map[string]bool, len(opts.Providers))
	for _, p := range opts.Providers {
		if p = normalizeProvider(p); p != "" {
			providers[p] = true
		}
	}
	staleAfter := time.Duration(0)
	if opts.ProviderTimeout > 0 {
		staleAfter = opts.ProviderTimeout + staleSubmissionMargin
	}
	return &Service{
		store:      store,
		auth:       auth,
		flows:      newFlowStore(opts.FlowTTL),
		appURL:     strings.TrimRight(strings.TrimSpace(opts.AppURL), "/"),
		providers:  providers,
		ttl:        ttl,
		staleAfter: staleAfter,
		logger:     logger,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Providers lists the enabled OAuth providers in a stable order.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.providers))
	for _, p := range knownProviderOrder {
		if s.providers[p] {
			out = append(out, p)
		}
	}
	for p := range s.providers {
		if !containsString(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// SessionID validates an id taken from a cookie. When raw is not usable a
// new id is minted and fresh is true.
func (s *Service) SessionID(raw string) (id string, fresh bool) {
	if parsed, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
		return parsed.String(), false
	}
	return uuid.NewString(), true
}

// View returns the session for rendering. A pending notice is returned once
// and then cleared.
func (s *Service) View(ctx context.Context, id string) (Session, error) {
	now := s.now()
	sess, err := s.store.Get(ctx, id, now)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(id, now), nil
	}
	if err != nil {
		return NewSession(id, now), fmt.Errorf("load signup session: %w", err)
	}
	if sess.Notice == "" {
		return sess, nil
	}
	view := sess
	if _, err := s.store.Update(ctx, id, now, func(stored *Session) error {
		stored.Notice = ""
		return nil
	}); err != nil {
		return view, fmt.Errorf("clear signup notice: %w", err)
	}
	return view, nil
}

func (s *Service) Open(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		return sess.Open()
	})
}

func (s *Service) Close(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		sess.Close()
		return nil
	})
}

func (s *Service) ContinueWithEmail(ctx context.Context, id, email string) (Session, error) {
	var rejected error
	sess, err := s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		if sess.State == StateClosed {
			return ErrInvalidTransition
		}
		if verr := validateEmail(email); verr != nil {
			rejected = verr
			sess.Email = strings.TrimSpace(email)
			return sess.ShowError(UserMessage(verr))
		}
		return sess.ContinueWithEmail(email)
	})
	if err != nil {
		return sess, err
	}
	return sess, rejected
}

func (s *Service) Back(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		return sess.Back()
	})
}

func (s *Service) SetMode(ctx context.Context, id string, mode Mode) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		return sess.SetMode(mode)
	})
}

// Submit sends the stored email and the given password to the provider. At
// most one provider call is made per submission; a concurrent submit for the
// same session is refused while the first is in flight.
func (s *Service) Submit(ctx context.Context, id, password string) (Session, error) {
	var (
		rejected error
		email    string
		mode     Mode
	)
	sess, err := s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		if sess.State == StateSubmitting {
			if !sess.staleSubmission(now, s.staleAfter) {
				return ErrSubmissionInProgress
			}
			// the earlier submission was lost; let this one replace it
			sess.State = StatePasswordEntry
		}
		if sess.State == StateClosed || sess.State == StateChoosingMethod {
			return ErrInvalidTransition
		}
		if verr := validateCredentials(sess.Email, password); verr != nil {
			rejected = verr
			return sess.ShowError(UserMessage(verr))
		}
		if err := sess.BeginSubmit(now, s.staleAfter); err != nil {
			return err
		}
		email, mode = sess.Email, sess.Mode
		return nil
	})
	if err != nil {
		return sess, err
	}
	if rejected != nil {
		s.recorder.RecordSubmission(sess.Mode, OutcomeInvalid)
		return sess, rejected
	}

	notice, callErr := s.callProvider(ctx, mode, email, password)

	// The request context may already be cancelled; the outcome still has to
	// reach the store.
	sess, err = s.mutate(context.WithoutCancel(ctx), id, func(sess *Session, _ time.Time) error {
		if sess.State != StateSubmitting {
			return nil
		}
		if callErr != nil {
			sess.Fail(UserMessage(callErr))
			return nil
		}
		sess.Finish(notice)
		return nil
	})
	if err != nil {
		return sess, err
	}
	if callErr != nil {
		s.recorder.RecordSubmission(mode, OutcomeRejected)
		return sess, callErr
	}
	s.recorder.RecordSubmission(mode, OutcomeSuccess)
	return sess, nil
}

func (s *Service) callProvider(ctx context.Context, mode Mode, email, password string) (string, error) {
	logger := s.logger.With(zap.String("mode", string(mode)))
	start := s.now()

	switch mode {
	case ModeSignIn:
		sess, err := s.auth.SignInWithPassword(ctx, email, password)
		s.recorder.RecordProviderLatency("sign_in", s.now().Sub(start))
		if err != nil {
			logger.Info("password sign-in rejected", zap.Error(err))
			return "", err
		}
		return signedInNotice(firstNonEmpty(sess.User.Email, email)), nil
	default:
		res, err := s.auth.SignUp(ctx, identity.SignUpRequest{
			Email:      email,
			Password:   password,
			RedirectTo: s.appURL,
		})
		s.recorder.RecordProviderLatency("sign_up", s.now().Sub(start))
		if err != nil {
			logger.Info("sign-up rejected", zap.Error(err))
			return "", err
		}
		if res.AwaitingConfirmation() {
			return noticeConfirmEmail, nil
		}
		return "Your account is ready. " + signedInNotice(firstNonEmpty(res.User.Email, email)), nil
	}
}

// InitiateOAuth returns the provider URL the browser should be sent to. It
// never touches the password path and is refused unless the modal is open
// and idle.
func (s *Service) InitiateOAuth(ctx context.Context, id, provider string) (string, Session, error) {
	if sess, err := s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		return sess.AllowOAuth()
	}); err != nil {
		return "", sess, err
	}

	provider = normalizeProvider(provider)
	if !s.providers[provider] {
		s.recorder.RecordOAuth("unknown", OutcomeInvalid)
		sess, err := s.showError(ctx, id, ErrProviderNotAllowed)
		return "", sess, err
	}

	flow, err := s.flows.create(provider, id, s.now())
	if err != nil {
		return "", Session{}, fmt.Errorf("create oauth flow: %w", err)
	}
	redirect, err := s.auth.AuthorizeURL(identity.AuthorizeRequest{
		Provider:      provider,
		RedirectTo:    s.callbackURL(flow.Token),
		CodeChallenge: codeChallenge(flow.CodeVerifier),
		QueryParams:   providerQueryParams(provider),
	})
	if err != nil {
		s.flows.discard(flow.Token)
		s.recorder.RecordOAuth(provider, OutcomeRejected)
		sess, showErr := s.showError(ctx, id, err)
		if showErr != nil && !errors.Is(showErr, err) {
			return "", sess, showErr
		}
		return "", sess, err
	}
	s.recorder.RecordOAuth(provider, OutcomeStarted)

	sess, err := s.View(ctx, id)
	return redirect, sess, err
}

// CompleteOAuth finishes the PKCE flow identified by flowToken. A non-empty
// providerError is the description the provider attached to the callback.
func (s *Service) CompleteOAuth(ctx context.Context, id, flowToken, code, providerError string) (Session, error) {
	// the token is spent even when the provider reports a failure
	flow, err := s.flows.consume(strings.TrimSpace(flowToken), id, s.now())
	if msg := strings.TrimSpace(providerError); msg != "" {
		s.recorder.RecordOAuth(flow.Provider, OutcomeRejected)
		return s.showError(ctx, id, &identity.Error{Code: "oauth_callback", Message: msg})
	}
	if err != nil {
		s.recorder.RecordOAuth("", OutcomeInvalid)
		return s.showError(ctx, id, err)
	}

	if strings.TrimSpace(code) == "" {
		s.recorder.RecordOAuth(flow.Provider, OutcomeRejected)
		return s.showError(ctx, id, &identity.Error{Code: "oauth_callback", Message: "The sign-in provider did not return an authorization code."})
	}

	start := s.now()
	idSess, err := s.auth.ExchangeCode(ctx, code, flow.CodeVerifier)
	s.recorder.RecordProviderLatency("exchange_code", s.now().Sub(start))
	if err != nil {
		s.recorder.RecordOAuth(flow.Provider, OutcomeRejected)
		s.logger.Info("oauth code exchange rejected", zap.String("provider", flow.Provider), zap.Error(err))
		return s.showError(ctx, id, err)
	}

	email, err := s.verifiedEmail(idSess)
	if err != nil {
		s.recorder.RecordOAuth(flow.Provider, OutcomeRejected)
		s.logger.Warn("oauth access token rejected", zap.String("provider", flow.Provider), zap.Error(err))
		return s.showError(ctx, id, err)
	}

	s.recorder.RecordOAuth(flow.Provider, OutcomeSuccess)
	return s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		sess.Finish(signedInNotice(email))
		return nil
	})
}

func (s *Service) verifiedEmail(sess identity.Session) (string, error) {
	claims, err := s.auth.VerifyAccessToken(sess.AccessToken)
	switch {
	case err == nil:
		return firstNonEmpty(claims.Email, sess.User.Email), nil
	case errors.Is(err, identity.ErrVerificationDisabled):
		return strings.TrimSpace(sess.User.Email), nil
	default:
		return "", fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}
}

// Purge drops expired sessions and returns how many were removed.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge signup sessions: %w", err)
	}
	return n, nil
}

func (s *Service) showError(ctx context.Context, id string, cause error) (Session, error) {
	sess, err := s.mutate(ctx, id, func(sess *Session, _ time.Time) error {
		return sess.ShowError(UserMessage(cause))
	})
	if err != nil {
		return sess, err
	}
	return sess, cause
}

// mutate applies fn to the stored session, initialising it when missing, and
// extends its expiry. On failure the current stored view is returned along
// with the error.
func (s *Service) mutate(ctx context.Context, id string, fn func(*Session, time.Time) error) (Session, error) {
	now := s.now()
	var from State
	sess, err := s.store.Update(ctx, id, now, func(sess *Session) error {
		if !sess.State.Valid() {
			*sess = NewSession(id, now)
		}
		from = sess.State
		if err := fn(sess, now); err != nil {
			return err
		}
		sess.UpdatedAt = now
		sess.ExpiresAt = now.Add(s.ttl)
		return nil
	})
	if err != nil {
		current, getErr := s.store.Get(ctx, id, now)
		if getErr != nil {
			current = NewSession(id, now)
		}
		if !IsUserFacing(err) {
			err = fmt.Errorf("update signup session: %w", err)
		}
		return current, err
	}
	if from != sess.State {
		s.recorder.RecordTransition(from, sess.State)
	}
	return sess, nil
}

func (s *Service) callbackURL(flowToken string) string {
	return s.appURL + "/auth/callback?flow=" + flowToken
}

var knownProviderOrder = []string{"google", "github", "gitlab", "azure", "apple", "discord"}

func providerQueryParams(provider string) map[string]string {
	switch provider {
	case "google":
		return map[string]string{"access_type": "offline", "prompt": "consent"}
	default:
		return nil
	}
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func signedInNotice(email string) string {
	if email = strings.TrimSpace(email); email == "" {
		return "You are signed in."
	}
	return "Signed in as " + email + "."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func containsString(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}
