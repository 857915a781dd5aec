package usecase

import (
	"errors"

	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

// Caller errors.
var (
	ErrInvalidAmount   = models.ErrInvalidAmount
	ErrInvalidQuantity = models.ErrInvalidQuantity
	ErrInvalidPatch    = models.ErrInvalidPatch
	ErrInvalidOwnerID  = errors.New("owner id is required")
)

// Business-rule failures.
var (
	ErrInsufficientBalance     = models.ErrInsufficientBalance
	ErrInsufficientStock       = models.ErrInsufficientStock
	ErrWalletInactive          = models.ErrWalletInactive
	ErrInvalidStatusTransition = models.ErrInvalidStatusTransition
	ErrDuplicateOrderEntry     = models.ErrDuplicateOrderEntry
)

// Not found.
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrVariantNotFound     = errors.New("variant not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ErrContention means bounded internal retries were exhausted; the caller
// may retry the whole higher-level operation.
var ErrContention = repository.ErrContention

// IsRejection reports caller and business-rule failures, as opposed to
// infrastructure faults.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidPatch),
		errors.Is(err, ErrInvalidOwnerID),
		errors.Is(err, models.ErrInvalidTransactionType),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrWalletInactive),
		errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrDuplicateOrderEntry),
		errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrVariantNotFound),
		errors.Is(err, ErrTransactionNotFound):
		return true
	}
	return false
}
