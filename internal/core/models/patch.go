package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Optional is a tri-state patch field: absent (zero value), explicitly null,
// or set to a value. JSON decoding tells a missing key apart from null.
type Optional[T any] struct {
	present bool
	null    bool
	value   T
}

func Some[T any](v T) Optional[T] { return Optional[T]{present: true, value: v} }

func Null[T any]() Optional[T] { return Optional[T]{present: true, null: true} }

func (o Optional[T]) IsAbsent() bool { return !o.present }

func (o Optional[T]) IsNull() bool { return o.present && o.null }

// Get returns the value and whether one was provided.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present && !o.null
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.null = true
		var zero T
		o.value = zero
		return nil
	}
	o.null = false
	return json.Unmarshal(data, &o.value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// VariantPatch updates variant attributes that are not the stock counter.
// DiscountPrice may be nulled; the other fields only accept values.
type VariantPatch struct {
	SKU           Optional[string]          `json:"sku"`
	IsActive      Optional[bool]            `json:"is_active"`
	Price         Optional[decimal.Decimal] `json:"price"`
	DiscountPrice Optional[decimal.Decimal] `json:"discount_price"`
}

func (p VariantPatch) Empty() bool {
	return p.SKU.IsAbsent() && p.IsActive.IsAbsent() && p.Price.IsAbsent() && p.DiscountPrice.IsAbsent()
}

// ApplyPatch returns v with p applied and the status re-derived.
func ApplyPatch(v Variant, p VariantPatch, now time.Time) (Variant, error) {
	if p.Empty() || p.SKU.IsNull() || p.IsActive.IsNull() || p.Price.IsNull() {
		return v, ErrInvalidPatch
	}

	next := v
	if sku, ok := p.SKU.Get(); ok {
		if sku == "" {
			return v, ErrInvalidPatch
		}
		next.SKU = sku
	}
	if active, ok := p.IsActive.Get(); ok {
		next.IsActive = active
	}
	if price, ok := p.Price.Get(); ok {
		if price.IsNegative() {
			return v, ErrInvalidPatch
		}
		next.Price = price
	}
	switch {
	case p.DiscountPrice.IsNull():
		next.DiscountPrice = decimal.NullDecimal{}
	case !p.DiscountPrice.IsAbsent():
		discount, _ := p.DiscountPrice.Get()
		next.DiscountPrice = decimal.NewNullDecimal(discount)
	}
	if next.DiscountPrice.Valid && (next.DiscountPrice.Decimal.IsNegative() || next.DiscountPrice.Decimal.GreaterThan(next.Price)) {
		return v, ErrInvalidPatch
	}

	next.Status = DeriveStatus(next.Stock, next.IsActive)
	next.UpdatedAt = now
	return next, nil
}
