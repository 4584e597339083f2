package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	dbembed "github.com/flowweave/flowweave-web/db"
	"github.com/flowweave/flowweave-web/internal/signup"
)

func TestSessionStoreUpdateAndGet(t *testing.T) {
	ctx := withTx(t)
	store := NewSessionStore(integrationPool)
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if _, err := store.Get(ctx, id, now); !errors.Is(err, signup.ErrSessionNotFound) {
		t.Fatalf("get missing session error = %v, want ErrSessionNotFound", err)
	}

	saved, err := store.Update(ctx, id, now, func(s *signup.Session) error {
		if s.State != "" {
			t.Fatalf("expected a blank session, got state %q", s.State)
		}
		*s = signup.NewSession(id, now)
		s.State = signup.StatePasswordEntry
		s.Email = "ada@example.com"
		s.ExpiresAt = now.Add(time.Minute)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.ID != id {
		t.Fatalf("saved id = %q, want %q", saved.ID, id)
	}

	got, err := store.Get(ctx, id, now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != signup.StatePasswordEntry || got.Email != "ada@example.com" || got.Mode != signup.ModeSignUp {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expires_at = %s, want %s", got.ExpiresAt, now.Add(time.Minute))
	}
}

func TestSessionStoreUpdateErrorKeepsStoredSession(t *testing.T) {
	ctx := withTx(t)
	store := NewSessionStore(integrationPool)
	id := uuid.NewString()
	now := time.Now().UTC()

	if _, err := store.Update(ctx, id, now, func(s *signup.Session) error {
		*s = signup.NewSession(id, now)
		s.ExpiresAt = now.Add(time.Minute)
		return nil
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	_, err := store.Update(ctx, id, now, func(s *signup.Session) error {
		s.State = signup.StateSubmitting
		return signup.ErrInvalidTransition
	})
	if !errors.Is(err, signup.ErrInvalidTransition) {
		t.Fatalf("update error = %v, want ErrInvalidTransition", err)
	}

	got, err := store.Get(ctx, id, now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != signup.StateClosed {
		t.Fatalf("state = %q, want the stored closed state", got.State)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	ctx := withTx(t)
	store := NewSessionStore(integrationPool)
	now := time.Now().UTC()

	expired, live := uuid.NewString(), uuid.NewString()
	for id, ttl := range map[string]time.Duration{expired: time.Second, live: time.Hour} {
		if _, err := store.Update(ctx, id, now, func(s *signup.Session) error {
			*s = signup.NewSession(id, now)
			s.ExpiresAt = now.Add(ttl)
			return nil
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	later := now.Add(time.Minute)
	if _, err := store.Get(ctx, expired, later); !errors.Is(err, signup.ErrSessionNotFound) {
		t.Fatalf("expired session error = %v, want ErrSessionNotFound", err)
	}

	n, err := store.DeleteExpired(ctx, later)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n < 1 {
		t.Fatalf("deleted = %d, want at least 1", n)
	}
	if _, err := store.Get(ctx, live, later); err != nil {
		t.Fatalf("live session: %v", err)
	}

	if err := store.Delete(ctx, live); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, live, later); !errors.Is(err, signup.ErrSessionNotFound) {
		t.Fatalf("deleted session error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreBacksSignupService(t *testing.T) {
	ctx := withTx(t)
	svc := signup.NewService(NewSessionStore(integrationPool), nil, signup.Options{})
	id := uuid.NewString()

	if _, err := svc.Open(ctx, id); err != nil {
		t.Fatalf("open: %v", err)
	}
	sess, err := svc.ContinueWithEmail(ctx, id, "ada@example.com")
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if sess.State != signup.StatePasswordEntry {
		t.Fatalf("state = %q, want password_entry", sess.State)
	}

	viewed, err := svc.View(ctx, id)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if viewed.Email != "ada@example.com" {
		t.Fatalf("email = %q", viewed.Email)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	if integrationPool == nil {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	applied, err := Migrate(ctx, integrationPool, dbembed.Migrations())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("second migrate applied %v, want nothing", applied)
	}
	pending, err := Pending(ctx, integrationPool, dbembed.Migrations())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %v, want none", pending)
	}
}
