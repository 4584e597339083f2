package signup

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"
)

const defaultFlowTTL = 10 * time.Minute

// oauthFlow ties a PKCE verifier to the modal session that started it.
type oauthFlow struct {
	Token        string
	Provider     string
	SessionID    string
	CodeVerifier string
	ExpiresAt    time.Time
}

type flowStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[string]oauthFlow
}

func newFlowStore(ttl time.Duration) *flowStore {
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	return &flowStore{ttl: ttl, flows: map[string]oauthFlow{}}
}

func (s *flowStore) create(provider, sessionID string, now time.Time) (oauthFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)

	token, err := randomToken(24)
	if err != nil {
		return oauthFlow{}, err
	}
	verifier, err := randomToken(32)
	if err != nil {
		return oauthFlow{}, err
	}
	flow := oauthFlow{
		Token:        token,
		Provider:     provider,
		SessionID:    sessionID,
		CodeVerifier: verifier,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.flows[token] = flow
	return flow, nil
}

// consume removes the flow whatever the outcome, so a token is usable once.
func (s *flowStore) consume(token, sessionID string, now time.Time) (oauthFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)

	flow, ok := s.flows[token]
	if !ok {
		return oauthFlow{}, ErrFlowNotFound
	}
	delete(s.flows, token)
	if flow.SessionID != sessionID || now.After(flow.ExpiresAt) {
		return oauthFlow{}, ErrFlowNotFound
	}
	return flow, nil
}

func (s *flowStore) discard(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, token)
}

func (s *flowStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

func (s *flowStore) cleanupLocked(now time.Time) {
	for token, flow := range s.flows {
		if now.After(flow.ExpiresAt) {
			delete(s.flows, token)
		}
	}
}

func randomToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
