package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(t models.TransactionType, amount int64) models.LedgerEntry {
	return models.LedgerEntry{Type: t, Amount: decimal.NewFromInt(amount), Description: "test"}
}

func TestApplyEntry(t *testing.T) {
	w := models.NewWallet("cust-1", "INR", now)

	w, credit, err := models.ApplyEntry(w, entry(models.TransactionCredit, 500), now)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, models.TransactionCompleted, credit.Status)
	assert.True(t, credit.BalanceAfter.Equal(w.Balance))

	_, _, err = models.ApplyEntry(w, entry(models.TransactionDebit, 501), now)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	w, debit, err := models.ApplyEntry(w, entry(models.TransactionDebit, 500), now)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	assert.True(t, models.LedgerSum([]models.Transaction{credit, debit}).Equal(w.Balance))
}

func TestApplyEntryRejects(t *testing.T) {
	w := models.NewWallet("cust-1", "INR", now)

	_, _, err := models.ApplyEntry(w, entry(models.TransactionCredit, 0), now)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, _, err = models.ApplyEntry(w, entry(models.TransactionCredit, -5), now)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, _, err = models.ApplyEntry(w, models.LedgerEntry{Type: models.TransactionCredit, Amount: decimal.RequireFromString("0.005")}, now)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, _, err = models.ApplyEntry(w, entry("bonus", 5), now)
	assert.ErrorIs(t, err, models.ErrInvalidTransactionType)

	w.IsActive = false
	_, _, err = models.ApplyEntry(w, entry(models.TransactionCredit, 5), now)
	assert.ErrorIs(t, err, models.ErrWalletInactive)
}

func TestApplyReversal(t *testing.T) {
	w := models.NewWallet("cust-1", "INR", now)
	w, credit, err := models.ApplyEntry(w, entry(models.TransactionCredit, 100), now)
	require.NoError(t, err)
	w, debit, err := models.ApplyEntry(w, entry(models.TransactionDebit, 80), now)
	require.NoError(t, err)

	_, _, err = models.ApplyReversal(w, credit, now)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	w, reversed, err := models.ApplyReversal(w, debit, now)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionReversed, reversed.Status)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, models.LedgerSum([]models.Transaction{credit, reversed}).Equal(w.Balance))

	_, _, err = models.ApplyReversal(w, reversed, now)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	other := models.NewWallet("cust-2", "INR", now)
	_, _, err = models.ApplyReversal(other, credit, now)
	assert.ErrorIs(t, err, models.ErrWalletMismatch)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, models.TransactionPending.CanTransitionTo(models.TransactionCompleted))
	assert.True(t, models.TransactionPending.CanTransitionTo(models.TransactionFailed))
	assert.True(t, models.TransactionCompleted.CanTransitionTo(models.TransactionReversed))
	assert.False(t, models.TransactionCompleted.CanTransitionTo(models.TransactionPending))
	assert.False(t, models.TransactionFailed.CanTransitionTo(models.TransactionCompleted))
	assert.False(t, models.TransactionReversed.CanTransitionTo(models.TransactionCompleted))
}

func TestValidateBalance(t *testing.T) {
	v := models.ValidateBalance(decimal.NewFromInt(40), decimal.NewFromInt(60))
	assert.False(t, v.IsValid)
	assert.True(t, v.Shortfall.Equal(decimal.NewFromInt(20)))

	v = models.ValidateBalance(decimal.NewFromInt(60), decimal.NewFromInt(60))
	assert.True(t, v.IsValid)
	assert.True(t, v.Shortfall.IsZero())
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, models.VariantOutOfStock, models.DeriveStatus(0, true))
	assert.Equal(t, models.VariantOutOfStock, models.DeriveStatus(0, false))
	assert.Equal(t, models.VariantActive, models.DeriveStatus(3, true))
	assert.Equal(t, models.VariantInactive, models.DeriveStatus(3, false))
}

func TestStockFunctions(t *testing.T) {
	v, m, err := models.NewVariant(models.NewVariantParams{SKU: "tee-m", Stock: 3, IsActive: true, Price: decimal.NewFromInt(499)}, now)
	require.NoError(t, err)
	assert.Equal(t, models.MovementCreate, m.Reason)
	assert.Equal(t, models.VariantActive, v.Status)

	_, _, err = models.ReduceStock(v, 4, now)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	v, m, err = models.ReduceStock(v, 3, now)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Stock)
	assert.Equal(t, -3, m.Delta)
	assert.Equal(t, models.VariantOutOfStock, v.Status)

	v, m, err = models.AddStock(v, 1, now)
	require.NoError(t, err)
	assert.Equal(t, models.VariantActive, v.Status)
	assert.Equal(t, 1, m.StockAfter)

	v, m, err = models.SetStock(v, 10, now)
	require.NoError(t, err)
	assert.Equal(t, 9, m.Delta)

	_, _, err = models.SetStock(v, -1, now)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	_, _, err = models.AddStock(v, 0, now)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	_, _, err = models.AddStock(v, models.MaxStock, now)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	_, _, err = models.ReduceStock(v, -2, now)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestOptionalDecoding(t *testing.T) {
	var p models.VariantPatch
	require.NoError(t, json.Unmarshal([]byte(`{"is_active": false, "discount_price": null}`), &p))

	assert.True(t, p.SKU.IsAbsent())
	assert.True(t, p.Price.IsAbsent())
	assert.True(t, p.DiscountPrice.IsNull())
	active, ok := p.IsActive.Get()
	assert.True(t, ok)
	assert.False(t, active)
}

func TestApplyPatch(t *testing.T) {
	v, _, err := models.NewVariant(models.NewVariantParams{SKU: "tee-m", Stock: 2, IsActive: true, Price: decimal.NewFromInt(100)}, now)
	require.NoError(t, err)

	v, err = models.ApplyPatch(v, models.VariantPatch{
		IsActive:      models.Some(false),
		DiscountPrice: models.Some(decimal.NewFromInt(80)),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, models.VariantInactive, v.Status)
	assert.True(t, v.DiscountPrice.Valid)

	v, err = models.ApplyPatch(v, models.VariantPatch{DiscountPrice: models.Null[decimal.Decimal]()}, now)
	require.NoError(t, err)
	assert.False(t, v.DiscountPrice.Valid)

	_, err = models.ApplyPatch(v, models.VariantPatch{}, now)
	assert.ErrorIs(t, err, models.ErrInvalidPatch)
	_, err = models.ApplyPatch(v, models.VariantPatch{Price: models.Null[decimal.Decimal]()}, now)
	assert.ErrorIs(t, err, models.ErrInvalidPatch)
	_, err = models.ApplyPatch(v, models.VariantPatch{DiscountPrice: models.Some(decimal.NewFromInt(101))}, now)
	assert.ErrorIs(t, err, models.ErrInvalidPatch)
}

func TestOrderKeyReplay(t *testing.T) {
	w := models.NewWallet("cust-1", "INR", now)
	w, _, err := models.ApplyEntry(w, entry(models.TransactionCredit, 500), now)
	require.NoError(t, err)

	paid := models.LedgerEntry{Type: models.TransactionDebit, Amount: decimal.NewFromInt(300), OrderID: "order-9"}
	w, debit, err := models.ApplyEntry(w, paid, now)
	require.NoError(t, err)
	_, reversed, err := models.ApplyReversal(w, debit, now)
	require.NoError(t, err)

	otherLine := paid
	otherLine.Reference = "line-2"
	refund := paid
	refund.Type = models.TransactionRefund
	noOrder := paid
	noOrder.OrderID = ""
	assert.True(t, debit.MatchesOrderKey(paid))
	assert.False(t, debit.MatchesOrderKey(otherLine))
	assert.False(t, debit.MatchesOrderKey(refund))
	assert.False(t, debit.MatchesOrderKey(noOrder))

	partial := paid
	partial.Amount = decimal.NewFromInt(50)

	tests := []struct {
		name     string
		existing models.Transaction
		entry    models.LedgerEntry
		wantErr  bool
	}{
		{"same amount completed", debit, paid, false},
		{"different amount", debit, partial, true},
		{"reversed row", reversed, paid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ReplayOf(tt.existing, tt.entry)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrDuplicateOrderEntry)
				return
			}
			assert.NoError(t, err)
		})
	}
}
