// Package events publishes after-commit notifications for analytics and
// notification consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	WalletEventsChannel = "snapcart.wallet"
	StockEventsChannel  = "snapcart.stock"
)

type WalletEvent struct {
	EventType       string          `json:"event_type"` // wallet.transaction.completed, wallet.transaction.reversed
	OwnerID         string          `json:"owner_id"`
	WalletID        uuid.UUID       `json:"wallet_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	TransactionType string          `json:"transaction_type"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Currency        string          `json:"currency"`
	OrderID         string          `json:"order_id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

type StockEvent struct {
	EventType string    `json:"event_type"` // variant.stock.changed, variant.updated
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	Delta     int       `json:"delta"`
	Stock     int       `json:"stock"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	PublishWalletEvent(ctx context.Context, event *WalletEvent) error
	PublishStockEvent(ctx context.Context, event *StockEvent) error
}

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) PublishWalletEvent(ctx context.Context, event *WalletEvent) error {
	return p.publish(ctx, WalletEventsChannel, event)
}

func (p *RedisPublisher) PublishStockEvent(ctx context.Context, event *StockEvent) error {
	return p.publish(ctx, StockEventsChannel, event)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishWalletEvent(context.Context, *WalletEvent) error { return nil }

func (NopPublisher) PublishStockEvent(context.Context, *StockEvent) error { return nil }
