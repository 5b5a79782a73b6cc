package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/storage"
)

// UnitOfWork bundles the status flip and the matching history append into a
// single database transaction, ensuring atomicity (both succeed or neither).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// UpdateStatus transitions a recommendation within the transaction.
func (u *UnitOfWork) UpdateStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	return updateStatus(ctx, u.tx, id, status)
}

// AppendHistory stores one execution attempt within the transaction.
func (u *UnitOfWork) AppendHistory(ctx context.Context, entry *domain.OptimizationHistoryEntry) error {
	return appendHistory(ctx, u.tx, entry)
}

// TxRunner executes units of work in a transaction, retrying transient
// contention with bounded backoff.
type TxRunner struct {
	db    *DB
	retry RetryConfig
}

// NewTxRunner creates a transaction runner with the given retry bounds.
func NewTxRunner(db *DB, retry RetryConfig) *TxRunner {
	return &TxRunner{db: db, retry: retry}
}

// InTx runs fn inside a transaction. A transient failure (deadlock,
// serialization conflict) rolls back and retries the whole unit; any other
// error rolls back and propagates immediately.
func (t *TxRunner) InTx(ctx context.Context, fn func(storage.UnitOfWork) error) error {
	return runWithRetry(ctx, t.retry, func(ctx context.Context) error {
		tx, err := t.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(&UnitOfWork{tx: tx}); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}
