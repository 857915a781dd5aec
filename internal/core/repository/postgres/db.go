package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// isRetryableError reports failures that a fresh attempt of the same
// transaction may not hit again.
func isRetryableError(err error) bool {
	switch pqCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

type txRunner struct {
	db          *sqlx.DB
	log         logger.Logger
	maxRetries  int
	lockTimeout time.Duration
}

// executeTx runs fn in one READ COMMITTED transaction and rolls back on any error.
func (r *txRunner) executeTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.log.Error("Error beginning transaction", logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	var isCommitted bool
	defer func() {
		if isCommitted {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Error("Transaction rollback failed", logger.ErrorField("error", rbErr))
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
	}()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("Error committing transaction", logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", err)
	}

	isCommitted = true
	return nil
}

// executeReadTx runs fn in a read-only REPEATABLE READ transaction so every
// statement in fn sees the same snapshot.
func (r *txRunner) executeReadTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("error beginning read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// executeTxWithRetry retries executeTx on lock timeouts, deadlocks and
// serialization failures, then gives up with repository.ErrContention.
func (r *txRunner) executeTxWithRetry(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		err := r.executeTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
		lastErr = err

		r.log.Warn("Retrying transaction",
			logger.StringField("op", op),
			logger.IntField("attempt", attempt),
			logger.ErrorField("error", err))

		if attempt == r.maxRetries {
			break
		}
		sleep := time.Duration(attempt*attempt) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return contentionError(op, r.maxRetries, lastErr)
}

func contentionError(op string, attempts int, last error) error {
	return fmt.Errorf("%w: %s after %d attempts: %v", repository.ErrContention, op, attempts, last)
}
