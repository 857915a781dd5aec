package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxStock is the largest stock count the storage column can hold.
const MaxStock = math.MaxInt32

type VariantStatus string

const (
	VariantActive     VariantStatus = "active"
	VariantInactive   VariantStatus = "inactive"
	VariantOutOfStock VariantStatus = "out_of_stock"
)

// DeriveStatus is recomputed after every stock or activity change.
func DeriveStatus(stock int, isActive bool) VariantStatus {
	switch {
	case stock == 0:
		return VariantOutOfStock
	case isActive:
		return VariantActive
	default:
		return VariantInactive
	}
}

// Variant is the stock-relevant projection of a sellable unit.
type Variant struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	ProductID     uuid.UUID           `json:"product_id" db:"product_id"`
	SKU           string              `json:"sku" db:"sku"`
	Stock         int                 `json:"stock" db:"stock"`
	Status        VariantStatus       `json:"status" db:"status"`
	IsActive      bool                `json:"is_active" db:"is_active"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price" db:"discount_price"`
	Version       int64               `json:"version" db:"version"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time          `json:"-" db:"deleted_at"`
}

type MovementReason string

const (
	MovementCreate MovementReason = "create"
	MovementSet    MovementReason = "set"
	MovementAdd    MovementReason = "add"
	MovementReduce MovementReason = "reduce"
)

// StockMovement is the audit row committed together with a stock change.
type StockMovement struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	VariantID  uuid.UUID      `json:"variant_id" db:"variant_id"`
	Delta      int            `json:"delta" db:"delta"`
	Reason     MovementReason `json:"reason" db:"reason"`
	StockAfter int            `json:"stock_after" db:"stock_after"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

type NewVariantParams struct {
	ProductID uuid.UUID
	SKU       string
	Stock     int
	Price     decimal.Decimal
	IsActive  bool
}

func NewVariant(p NewVariantParams, now time.Time) (Variant, StockMovement, error) {
	if p.Stock < 0 || p.Stock > MaxStock {
		return Variant{}, StockMovement{}, ErrInvalidQuantity
	}
	if p.Price.IsNegative() {
		return Variant{}, StockMovement{}, ErrInvalidPatch
	}
	v := Variant{
		ID:        uuid.New(),
		ProductID: p.ProductID,
		SKU:       p.SKU,
		Stock:     p.Stock,
		Status:    DeriveStatus(p.Stock, p.IsActive),
		IsActive:  p.IsActive,
		Price:     p.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return v, movement(v.ID, p.Stock, MovementCreate, p.Stock, now), nil
}

// SetStock returns v with stock replaced by quantity.
func SetStock(v Variant, quantity int, now time.Time) (Variant, StockMovement, error) {
	if quantity < 0 || quantity > MaxStock {
		return v, StockMovement{}, ErrInvalidQuantity
	}
	return withStock(v, quantity, now), movement(v.ID, quantity-v.Stock, MovementSet, quantity, now), nil
}

func AddStock(v Variant, quantity int, now time.Time) (Variant, StockMovement, error) {
	if quantity <= 0 || quantity > MaxStock-v.Stock {
		return v, StockMovement{}, ErrInvalidQuantity
	}
	stock := v.Stock + quantity
	return withStock(v, stock, now), movement(v.ID, quantity, MovementAdd, stock, now), nil
}

// ReduceStock fails with ErrInsufficientStock, leaving v untouched, when
// fewer than quantity units remain.
func ReduceStock(v Variant, quantity int, now time.Time) (Variant, StockMovement, error) {
	if quantity <= 0 {
		return v, StockMovement{}, ErrInvalidQuantity
	}
	if v.Stock < quantity {
		return v, StockMovement{}, ErrInsufficientStock
	}
	stock := v.Stock - quantity
	return withStock(v, stock, now), movement(v.ID, -quantity, MovementReduce, stock, now), nil
}

func withStock(v Variant, stock int, now time.Time) Variant {
	next := v
	next.Stock = stock
	next.Status = DeriveStatus(stock, v.IsActive)
	next.UpdatedAt = now
	return next
}

func movement(variantID uuid.UUID, delta int, reason MovementReason, stockAfter int, now time.Time) StockMovement {
	return StockMovement{
		ID:         uuid.New(),
		VariantID:  variantID,
		Delta:      delta,
		Reason:     reason,
		StockAfter: stockAfter,
		CreatedAt:  now,
	}
}
