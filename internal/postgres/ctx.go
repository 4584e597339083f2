package postgres

import "context"

type handleKey struct{}

// WithHandle makes stores called with ctx run against db, typically a
// transaction owned by the caller.
func WithHandle(ctx context.Context, db DBTX) context.Context {
	if db == nil {
		return ctx
	}
	return context.WithValue(ctx, handleKey{}, db)
}

func handleFrom(ctx context.Context, fallback DBTX) DBTX {
	if ctx == nil {
		return fallback
	}
	if db, ok := ctx.Value(handleKey{}).(DBTX); ok && db != nil {
		return db
	}
	return fallback
}
