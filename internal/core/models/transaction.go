package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType carries the direction of a transaction; amounts are never signed.
type TransactionType string

const (
	TransactionCredit   TransactionType = "credit"
	TransactionDebit    TransactionType = "debit"
	TransactionRefund   TransactionType = "refund"
	TransactionCashback TransactionType = "cashback"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionCredit, TransactionDebit, TransactionRefund, TransactionCashback:
		return true
	}
	return false
}

// Idempotent reports whether (wallet, order, type, reference) identifies at
// most one live transaction of this type.
func (t TransactionType) Idempotent() bool {
	return t == TransactionDebit || t == TransactionRefund || t == TransactionCashback
}

func (t TransactionType) signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionDebit {
		return amount.Neg()
	}
	return amount
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionReversed  TransactionStatus = "reversed"
)

// CanTransitionTo encodes pending -> completed|failed and completed -> reversed.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return next == TransactionCompleted || next == TransactionFailed
	case TransactionCompleted:
		return next == TransactionReversed
	}
	return false
}

// Metadata is free-form JSON stored alongside a transaction.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported source type %T", src)
	}
	return json.Unmarshal(raw, m)
}

type Transaction struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	WalletID     uuid.UUID         `json:"wallet_id" db:"wallet_id"`
	Amount       decimal.Decimal   `json:"amount" db:"amount"`
	Type         TransactionType   `json:"type" db:"type"`
	Status       TransactionStatus `json:"status" db:"status"`
	Description  string            `json:"description" db:"description"`
	Reference    *string           `json:"reference,omitempty" db:"reference"`
	OrderID      *string           `json:"order_id,omitempty" db:"order_id"`
	Metadata     Metadata          `json:"metadata,omitempty" db:"metadata"`
	BalanceAfter decimal.Decimal   `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// NewTransaction builds a ledger row for e. It is the only constructor and
// rejects non-positive amounts.
func NewTransaction(walletID uuid.UUID, e LedgerEntry, status TransactionStatus, balanceAfter decimal.Decimal, now time.Time) (Transaction, error) {
	if err := e.Validate(); err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:           uuid.New(),
		WalletID:     walletID,
		Amount:       e.Amount,
		Type:         e.Type,
		Status:       status,
		Description:  e.Description,
		Reference:    optionalString(e.Reference),
		OrderID:      optionalString(e.OrderID),
		Metadata:     e.Metadata,
		BalanceAfter: balanceAfter,
		CreatedAt:    now,
	}, nil
}

// MatchesOrderKey reports whether t occupies the idempotency slot of e.
// Failed rows never hold a slot.
func (t Transaction) MatchesOrderKey(e LedgerEntry) bool {
	if e.OrderID == "" || !e.Type.Idempotent() || t.Status == TransactionFailed {
		return false
	}
	return t.Type == e.Type && deref(t.OrderID) == e.OrderID && deref(t.Reference) == e.Reference
}

// ReplayOf accepts existing as the result of repeating e only when it is the
// completed record of the same amount. A different amount or a reversed row
// is a new operation reusing the key and fails with ErrDuplicateOrderEntry.
func ReplayOf(existing Transaction, e LedgerEntry) error {
	if existing.Status == TransactionCompleted && existing.Amount.Equal(e.Amount) {
		return nil
	}
	return fmt.Errorf("%w: %s for order %s is %s with amount %s",
		ErrDuplicateOrderEntry, existing.Type, e.OrderID, existing.Status, existing.Amount.StringFixed(MoneyScale))
}

// SignedAmount is the contribution of t to its wallet's balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	return t.Type.signed(t.Amount)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
