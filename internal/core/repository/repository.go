package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")
	// ErrContention is returned once the bounded retries for a locked or
	// conflicting write are used up.
	ErrContention = errors.New("contention: retries exhausted")
)

// LedgerResult is the outcome of applying a ledger entry. Replayed is true
// when an idempotent entry matched an existing transaction and nothing was
// written.
type LedgerResult struct {
	Wallet      models.Wallet
	Transaction models.Transaction
	Replayed    bool
}

type WalletRepository interface {
	GetByOwnerID(ctx context.Context, ownerID string) (*models.Wallet, error)
	// Create fails with ErrAlreadyExists when the owner already has a wallet.
	Create(ctx context.Context, wallet *models.Wallet) error
	SetActive(ctx context.Context, ownerID string, active bool) (*models.Wallet, error)

	// ExecuteTxWithRetry locks the owner's wallet, applies entry with
	// models.ApplyEntry and commits the transaction row and balance together.
	ExecuteTxWithRetry(ctx context.Context, ownerID string, entry models.LedgerEntry) (*LedgerResult, error)
	// ReverseTxWithRetry moves a completed transaction to reversed and
	// undoes its balance effect in the same commit.
	ReverseTxWithRetry(ctx context.Context, transactionID uuid.UUID) (*LedgerResult, error)

	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, int, error)
	LedgerSum(ctx context.Context, walletID uuid.UUID) (*models.Reconciliation, error)
}

type VariantRepository interface {
	// Create stores v together with its initial movement.
	Create(ctx context.Context, v *models.Variant, m *models.StockMovement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	// CompareAndSwap replaces prev with next only if prev.Version is still
	// current, recording m when non-nil. Returns ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, prev, next *models.Variant, m *models.StockMovement) error
	ListMovements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.StockMovement, error)
}
