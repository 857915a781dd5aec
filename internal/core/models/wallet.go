package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits stored for amounts.
const MoneyScale = 2

// Wallet is the per-customer stored-value balance. Balance caches the signed
// sum of the wallet's completed transactions.
type Wallet struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Currency  string          `json:"currency" db:"currency"` // ISO 4217, fixed at creation
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

func NewWallet(ownerID, currency string, now time.Time) Wallet {
	return Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LedgerEntry describes one balance-affecting event before it is applied.
type LedgerEntry struct {
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	Reference   string
	OrderID     string
	Metadata    Metadata
}

func (e LedgerEntry) Validate() error {
	if !e.Type.Valid() {
		return ErrInvalidTransactionType
	}
	if !e.Amount.IsPositive() || !e.Amount.Equal(e.Amount.Round(MoneyScale)) {
		return ErrInvalidAmount
	}
	return nil
}

// ApplyEntry computes the wallet state after e and the completed transaction
// that records it. w is not modified.
func ApplyEntry(w Wallet, e LedgerEntry, now time.Time) (Wallet, Transaction, error) {
	if err := e.Validate(); err != nil {
		return w, Transaction{}, err
	}
	if !w.IsActive {
		return w, Transaction{}, ErrWalletInactive
	}

	newBalance := w.Balance.Add(e.Type.signed(e.Amount))
	if newBalance.IsNegative() {
		return w, Transaction{}, ErrInsufficientBalance
	}

	tx, err := NewTransaction(w.ID, e, TransactionCompleted, newBalance, now)
	if err != nil {
		return w, Transaction{}, err
	}

	next := w
	next.Balance = newBalance
	next.UpdatedAt = now
	return next, tx, nil
}

// ApplyReversal moves a completed transaction to reversed and undoes its
// effect on the balance.
func ApplyReversal(w Wallet, t Transaction, now time.Time) (Wallet, Transaction, error) {
	if t.WalletID != w.ID {
		return w, t, ErrWalletMismatch
	}
	if !t.Status.CanTransitionTo(TransactionReversed) {
		return w, t, ErrInvalidStatusTransition
	}

	newBalance := w.Balance.Sub(t.SignedAmount())
	if newBalance.IsNegative() {
		return w, t, ErrInsufficientBalance
	}

	reversed := t
	reversed.Status = TransactionReversed

	next := w
	next.Balance = newBalance
	next.UpdatedAt = now
	return next, reversed, nil
}

// LedgerSum is the balance implied by txs: completed credits, refunds and
// cashback minus completed debits.
func LedgerSum(txs []Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		if t.Status == TransactionCompleted {
			sum = sum.Add(t.SignedAmount())
		}
	}
	return sum
}

// BalanceValidation is the advisory answer of a balance check.
type BalanceValidation struct {
	IsValid        bool            `json:"is_valid"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Shortfall      decimal.Decimal `json:"shortfall"`
}

func ValidateBalance(balance, amount decimal.Decimal) BalanceValidation {
	shortfall := amount.Sub(balance)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}
	return BalanceValidation{
		IsValid:        balance.GreaterThanOrEqual(amount),
		CurrentBalance: balance,
		Shortfall:      shortfall,
	}
}

// Reconciliation compares the cached balance to the ledger sum.
type Reconciliation struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Balanced  bool            `json:"balanced"`
}
