package db

import (
	"context"
	"fmt"
)

// WithSurfaceLock serializes fn against other holders of the same surface
// key using a transaction-scoped advisory lock. Alias upserts for one
// surface must not interleave.
func (s *PostgresService) WithSurfaceLock(ctx context.Context, surface string, fn func(ctx context.Context) error) error {
	if s == nil || s.pool == nil {
		// No pool (tests run on sqlite): fall through unserialized.
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db: begin lock tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, surface); err != nil {
		return fmt.Errorf("db: acquire surface lock: %w", err)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
