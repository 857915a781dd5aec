package usecase_test

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahil234/SnapCart-sub000/internal/core/events"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/metrics"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository/memory"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
)

type recordingPublisher struct {
	mu     sync.Mutex
	wallet []events.WalletEvent
	stock  []events.StockEvent
	fail   bool
}

func (p *recordingPublisher) PublishWalletEvent(_ context.Context, e *events.WalletEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("redis unavailable")
	}
	p.wallet = append(p.wallet, *e)
	return nil
}

func (p *recordingPublisher) PublishStockEvent(_ context.Context, e *events.StockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("redis unavailable")
	}
	p.stock = append(p.stock, *e)
	return nil
}

func (p *recordingPublisher) walletEvents() []events.WalletEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.WalletEvent(nil), p.wallet...)
}

func (p *recordingPublisher) stockEvents() []events.StockEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.StockEvent(nil), p.stock...)
}

func newWalletUsecase() (usecase.WalletUsecase, *recordingPublisher, *metrics.Metrics) {
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	uc := usecase.NewWalletUsecase(memory.NewWalletRepo(), pub, m, logger.NewNop(), usecase.WalletConfig{Currency: "INR"})
	return uc, pub, m
}

func newStockUsecase(retries int) (usecase.StockUsecase, *recordingPublisher, *metrics.Metrics) {
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	uc := usecase.NewStockUsecase(memory.NewVariantRepo(), pub, m, logger.NewNop(), usecase.StockConfig{MaxRetries: retries})
	return uc, pub, m
}
