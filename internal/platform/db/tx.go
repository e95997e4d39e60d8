package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/shared"
)

type txMarkerKey struct{}

// Coordinator owns the multi-document atomicity guarantee: every ledger
// mutation and document write of one state transition happens inside a single
// repeatable-read transaction and commits or rolls back as a unit.
type Coordinator struct {
	pool *pgxpool.Pool
}

// NewCoordinator builds a Coordinator over the connection pool.
func NewCoordinator(pool *pgxpool.Pool) *Coordinator {
	return &Coordinator{pool: pool}
}

// RunInTransaction executes fn inside a repeatable-read transaction. The
// callback error is returned unchanged after rollback, except that write
// conflicts reported by the store surface as shared.ErrConflict so callers
// know to retry the whole transition. Nested calls fail fast.
func (c *Coordinator) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if InTransaction(ctx) {
		return shared.ErrNestedTransaction
	}
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ctx = context.WithValue(ctx, txMarkerKey{}, true)
	if err := fn(ctx, tx); err != nil {
		if IsWriteConflict(err) {
			return fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if IsWriteConflict(err) {
			return fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

// InTransaction reports whether ctx already carries an open unit of work.
func InTransaction(ctx context.Context) bool {
	marked, _ := ctx.Value(txMarkerKey{}).(bool)
	return marked
}

// IsWriteConflict reports whether err is an optimistic-concurrency failure:
// a serialization failure (40001) or deadlock detected (40P01).
func IsWriteConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
