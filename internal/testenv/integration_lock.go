package testenv

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockIntegrationDB holds a session-level advisory lock named by name so
// test binaries for different packages do not migrate or write to the shared
// database at the same time. The returned func releases it.
func LockIntegrationDB(ctx context.Context, pool *pgxpool.Pool, name string) (func(), error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock conn: %w", err)
	}
	if _, err := conn.Exec(ctx, `select pg_advisory_lock(hashtextextended($1, 0))`, name); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock %q: %w", name, err)
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `select pg_advisory_unlock(hashtextextended($1, 0))`, name)
		conn.Release()
	}, nil
}
