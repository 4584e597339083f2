package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flowweave/flowweave-web/internal/signup"
)

// SessionStore keeps modal sessions in the signup_sessions table so every
// replica behind a load balancer sees the same modal state.
type SessionStore struct {
	db DBTX
}

func NewSessionStore(db DBTX) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `state, mode, email, error, notice, created_at, updated_at, expires_at`

func (s *SessionStore) Get(ctx context.Context, id string, now time.Time) (signup.Session, error) {
	row := handleFrom(ctx, s.db).QueryRow(ctx, `
		select `+sessionColumns+`
		from signup_sessions
		where id = $1 and expires_at > $2
	`, id, now)
	sess, err := scanSession(row, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return signup.Session{}, signup.ErrSessionNotFound
	}
	if err != nil {
		return signup.Session{}, fmt.Errorf("get signup session: %w", err)
	}
	return sess, nil
}

// Update serialises writers of the same id with a transaction-scoped
// advisory lock, which also covers sessions that do not exist yet.
func (s *SessionStore) Update(ctx context.Context, id string, now time.Time, fn func(*signup.Session) error) (signup.Session, error) {
	tx, err := handleFrom(ctx, s.db).Begin(ctx)
	if err != nil {
		return signup.Session{}, fmt.Errorf("begin signup session update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtextextended($1, 0))`, id); err != nil {
		return signup.Session{}, fmt.Errorf("lock signup session: %w", err)
	}

	row := tx.QueryRow(ctx, `
		select `+sessionColumns+`
		from signup_sessions
		where id = $1 and expires_at > $2
	`, id, now)
	sess, err := scanSession(row, id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		sess = signup.Session{ID: id}
	case err != nil:
		return signup.Session{}, fmt.Errorf("load signup session: %w", err)
	}

	if err := fn(&sess); err != nil {
		return signup.Session{}, err
	}
	sess.ID = id

	_, err = tx.Exec(ctx, `
		insert into signup_sessions (id, `+sessionColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		on conflict (id) do update set
			state = excluded.state,
			mode = excluded.mode,
			email = excluded.email,
			error = excluded.error,
			notice = excluded.notice,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, id, string(sess.State), string(sess.Mode), sess.Email, sess.Error, sess.Notice,
		sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt)
	if err != nil {
		return signup.Session{}, fmt.Errorf("save signup session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return signup.Session{}, fmt.Errorf("commit signup session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := handleFrom(ctx, s.db).Exec(ctx, `delete from signup_sessions where id = $1`, id); err != nil {
		return fmt.Errorf("delete signup session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := handleFrom(ctx, s.db).Exec(ctx, `delete from signup_sessions where expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired signup sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping reports whether the database answers; it backs the health endpoint.
func (s *SessionStore) Ping(ctx context.Context) error {
	var one int
	return handleFrom(ctx, s.db).QueryRow(ctx, `select 1`).Scan(&one)
}

func scanSession(row pgx.Row, id string) (signup.Session, error) {
	var (
		sess        signup.Session
		state, mode string
	)
	err := row.Scan(&state, &mode, &sess.Email, &sess.Error, &sess.Notice,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt)
	if err != nil {
		return signup.Session{}, err
	}
	sess.ID = id
	sess.State = signup.State(state)
	sess.Mode = signup.Mode(mode)
	return sess, nil
}

var _ signup.Store = (*SessionStore)(nil)
