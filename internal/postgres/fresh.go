package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DropTables removes every table owned by this application, including the
// migration ledger, so the next Migrate starts from scratch.
func DropTables(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin drop tables: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, table := range []string{"signup_sessions", migrationsTable} {
		if _, err := tx.Exec(ctx, `drop table if exists `+table+` cascade`); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit drop tables: %w", err)
	}
	return nil
}
