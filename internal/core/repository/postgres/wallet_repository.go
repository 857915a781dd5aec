package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

const (
	walletColumns      = `id, owner_id, balance, currency, is_active, created_at, updated_at`
	transactionColumns = `id, wallet_id, amount, type, status, description, reference, order_id, metadata, balance_after, created_at`
)

type Options struct {
	MaxRetries  int
	LockTimeout time.Duration
}

type postgresWalletRepo struct {
	txRunner
}

func NewPostgresWalletRepo(db *sqlx.DB, log logger.Logger, opts Options) repository.WalletRepository {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &postgresWalletRepo{
		txRunner: txRunner{
			db:          db,
			log:         log,
			maxRetries:  opts.MaxRetries,
			lockTimeout: opts.LockTimeout,
		},
	}
}

func (r *postgresWalletRepo) GetByOwnerID(ctx context.Context, ownerID string) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1`
	if err := r.db.GetContext(ctx, &wallet, query, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet for owner %s", repository.ErrNotFound, ownerID)
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	const query = `INSERT INTO wallets (` + walletColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		wallet.ID,
		wallet.OwnerID,
		wallet.Balance,
		wallet.Currency,
		wallet.IsActive,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: wallet for owner %s", repository.ErrAlreadyExists, wallet.OwnerID)
		}
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

func (r *postgresWalletRepo) SetActive(ctx context.Context, ownerID string, active bool) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `UPDATE wallets SET is_active = $1, updated_at = NOW() WHERE owner_id = $2 RETURNING ` + walletColumns
	if err := r.db.GetContext(ctx, &wallet, query, active, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet for owner %s", repository.ErrNotFound, ownerID)
		}
		return nil, fmt.Errorf("set wallet active: %w", err)
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) ExecuteTxWithRetry(ctx context.Context, ownerID string, entry models.LedgerEntry) (*repository.LedgerResult, error) {
	var result *repository.LedgerResult
	err := r.executeTxWithRetry(ctx, "apply ledger entry", func(tx *sqlx.Tx) error {
		res, err := r.applyEntry(ctx, tx, ownerID, entry)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresWalletRepo) applyEntry(ctx context.Context, tx *sqlx.Tx, ownerID string, entry models.LedgerEntry) (*repository.LedgerResult, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &wallet, query, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet for owner %s", repository.ErrNotFound, ownerID)
		}
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	if entry.OrderID != "" && entry.Type.Idempotent() {
		existing, err := r.findByOrder(ctx, tx, wallet.ID, entry)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := models.ReplayOf(*existing, entry); err != nil {
				return nil, err
			}
			return &repository.LedgerResult{Wallet: wallet, Transaction: *existing, Replayed: true}, nil
		}
	}

	next, transaction, err := models.ApplyEntry(wallet, entry, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := r.createTransaction(ctx, tx, &transaction); err != nil {
		return nil, err
	}
	if err := r.updateBalance(ctx, tx, &next); err != nil {
		return nil, err
	}

	return &repository.LedgerResult{Wallet: next, Transaction: transaction}, nil
}

func (r *postgresWalletRepo) findByOrder(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, entry models.LedgerEntry) (*models.Transaction, error) {
	var existing models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
		WHERE wallet_id = $1 AND order_id = $2 AND type = $3 AND COALESCE(reference, '') = $4 AND status <> $5`
	err := tx.GetContext(ctx, &existing, query, walletID, entry.OrderID, entry.Type, entry.Reference, models.TransactionFailed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction by order: %w", err)
	}
	return &existing, nil
}

func (r *postgresWalletRepo) createTransaction(ctx context.Context, tx *sqlx.Tx, t *models.Transaction) error {
	const query = `INSERT INTO wallet_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.ExecContext(ctx, query,
		t.ID,
		t.WalletID,
		t.Amount,
		t.Type,
		t.Status,
		t.Description,
		t.Reference,
		t.OrderID,
		t.Metadata,
		t.BalanceAfter,
		t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s", models.ErrDuplicateOrderEntry, deref(t.OrderID))
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *postgresWalletRepo) updateBalance(ctx context.Context, tx *sqlx.Tx, w *models.Wallet) error {
	const query = `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`
	res, err := tx.ExecContext(ctx, query, w.Balance, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("update balance: %d rows affected for wallet %s", n, w.ID)
	}
	return nil
}

func (r *postgresWalletRepo) ReverseTxWithRetry(ctx context.Context, transactionID uuid.UUID) (*repository.LedgerResult, error) {
	var result *repository.LedgerResult
	err := r.executeTxWithRetry(ctx, "reverse transaction", func(tx *sqlx.Tx) error {
		res, err := r.reverse(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresWalletRepo) reverse(ctx context.Context, tx *sqlx.Tx, transactionID uuid.UUID) (*repository.LedgerResult, error) {
	var walletID uuid.UUID
	err := tx.GetContext(ctx, &walletID, `SELECT wallet_id FROM wallet_transactions WHERE id = $1`, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, transactionID)
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}

	// Wallet first, then the row: the same order applyEntry uses.
	var wallet models.Wallet
	if err := tx.GetContext(ctx, &wallet, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID); err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	var original models.Transaction
	if err := tx.GetContext(ctx, &original, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1 FOR UPDATE`, transactionID); err != nil {
		return nil, fmt.Errorf("lock transaction: %w", err)
	}

	next, reversed, err := models.ApplyReversal(wallet, original, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallet_transactions SET status = $1 WHERE id = $2 AND status = $3`,
		reversed.Status, reversed.ID, original.Status)
	if err != nil {
		return nil, fmt.Errorf("update transaction status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, models.ErrInvalidStatusTransition
	}
	if err := r.updateBalance(ctx, tx, &next); err != nil {
		return nil, err
	}

	return &repository.LedgerResult{Wallet: next, Transaction: reversed}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *postgresWalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, int, error) {
	var (
		total        int
		transactions = make([]models.Transaction, 0, limit)
	)
	// One snapshot for the count and the page.
	err := r.executeReadTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1`, walletID); err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
		query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
			WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`
		if err := tx.SelectContext(ctx, &transactions, query, walletID, limit, offset); err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

func (r *postgresWalletRepo) LedgerSum(ctx context.Context, walletID uuid.UUID) (*models.Reconciliation, error) {
	rec := models.Reconciliation{WalletID: walletID}
	const query = `
		SELECT w.balance,
		       COALESCE(SUM(CASE WHEN t.type = 'debit' THEN -t.amount ELSE t.amount END)
		                FILTER (WHERE t.status = 'completed'), 0) AS ledger_sum
		FROM wallets w
		LEFT JOIN wallet_transactions t ON t.wallet_id = w.id
		WHERE w.id = $1
		GROUP BY w.id, w.balance`
	row := r.db.QueryRowxContext(ctx, query, walletID)
	if err := row.Scan(&rec.Balance, &rec.LedgerSum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %s", repository.ErrNotFound, walletID)
		}
		return nil, fmt.Errorf("ledger sum: %w", err)
	}
	rec.Balanced = rec.Balance.Equal(rec.LedgerSum)
	return &rec, nil
}
