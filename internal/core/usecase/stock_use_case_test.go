package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rahil234/SnapCart-sub000/internal/core/events"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/metrics"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository/memory"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createVariant(t *testing.T, uc usecase.StockUsecase, stock int) *models.Variant {
	t.Helper()
	v, err := uc.CreateVariant(context.Background(), models.NewVariantParams{
		ProductID: uuid.New(),
		SKU:       "TSHIRT-M-BLUE",
		Stock:     stock,
		Price:     decimal.NewFromInt(499),
		IsActive:  true,
	})
	require.NoError(t, err)
	return v
}

func TestConcurrentReduceNoOversell(t *testing.T) {
	for round := 0; round < 20; round++ {
		uc, _, _ := newStockUsecase(10)
		ctx := context.Background()
		v := createVariant(t, uc, 5)

		var wg sync.WaitGroup
		results := make([]bool, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := uc.ReduceStock(ctx, v.ID, 5)
				assert.NoError(t, err)
				results[i] = ok
			}(i)
		}
		wg.Wait()

		assert.ElementsMatch(t, []bool{true, false}, results)

		got, err := uc.GetVariant(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Stock)
		assert.Equal(t, models.VariantOutOfStock, got.Status)
	}
}

func TestManyConcurrentReducers(t *testing.T) {
	const (
		stock     = 20
		reducers  = 30
		perReduce = 1
	)
	uc, _, m := newStockUsecase(reducers + 1)
	ctx := context.Background()
	v := createVariant(t, uc, stock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < reducers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := uc.ReduceStock(ctx, v.ID, perReduce)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	got, err := uc.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	movements, err := uc.ListMovements(ctx, v.ID, 0)
	require.NoError(t, err)
	// One create row plus one row per successful reduce.
	assert.Len(t, movements, stock+1)
	assert.Equal(t, float64(reducers-stock), testutil.ToFloat64(m.StockOps().WithLabelValues("reduce", metrics.ResultRejected)))
}

func TestStockStatusDerivation(t *testing.T) {
	uc, pub, _ := newStockUsecase(3)
	ctx := context.Background()
	v := createVariant(t, uc, 10)
	assert.Equal(t, models.VariantActive, v.Status)

	require.NoError(t, uc.SetStock(ctx, v.ID, 0))
	got, err := uc.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VariantOutOfStock, got.Status)

	require.NoError(t, uc.AddStock(ctx, v.ID, 1))
	got, err = uc.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
	assert.Equal(t, models.VariantActive, got.Status)

	evs := pub.stockEvents()
	require.Len(t, evs, 3)
	assert.Equal(t, "variant.created", evs[0].EventType)
	assert.Equal(t, -10, evs[1].Delta)
	assert.Equal(t, "set", evs[1].Reason)
	assert.Equal(t, 1, evs[2].Delta)
}

func TestReduceStockInsufficient(t *testing.T) {
	uc, pub, _ := newStockUsecase(3)
	ctx := context.Background()
	v := createVariant(t, uc, 3)

	ok, err := uc.ReduceStock(ctx, v.ID, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := uc.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
	assert.Equal(t, v.Version, got.Version)
	assert.Len(t, pub.stockEvents(), 1)

	ok, err = uc.ReduceStock(ctx, v.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStockInvalidQuantity(t *testing.T) {
	uc, _, _ := newStockUsecase(3)
	ctx := context.Background()
	v := createVariant(t, uc, 3)

	assert.ErrorIs(t, uc.SetStock(ctx, v.ID, -1), usecase.ErrInvalidQuantity)
	assert.ErrorIs(t, uc.AddStock(ctx, v.ID, 0), usecase.ErrInvalidQuantity)
	assert.ErrorIs(t, uc.AddStock(ctx, v.ID, models.MaxStock), usecase.ErrInvalidQuantity)

	_, err := uc.ReduceStock(ctx, v.ID, 0)
	assert.ErrorIs(t, err, usecase.ErrInvalidQuantity)

	_, err = uc.CreateVariant(ctx, models.NewVariantParams{ProductID: uuid.New(), SKU: "X", Stock: -1})
	assert.ErrorIs(t, err, usecase.ErrInvalidQuantity)
}

func TestStockVariantNotFound(t *testing.T) {
	uc, _, _ := newStockUsecase(3)
	ctx := context.Background()
	missing := uuid.New()

	_, err := uc.GetVariant(ctx, missing)
	assert.ErrorIs(t, err, usecase.ErrVariantNotFound)
	assert.ErrorIs(t, uc.SetStock(ctx, missing, 1), usecase.ErrVariantNotFound)
	assert.ErrorIs(t, uc.AddStock(ctx, missing, 1), usecase.ErrVariantNotFound)
	_, err = uc.ReduceStock(ctx, missing, 1)
	assert.ErrorIs(t, err, usecase.ErrVariantNotFound)
	_, err = uc.ListMovements(ctx, missing, 10)
	assert.ErrorIs(t, err, usecase.ErrVariantNotFound)
}

func TestUpdateVariant(t *testing.T) {
	uc, pub, _ := newStockUsecase(3)
	ctx := context.Background()
	v := createVariant(t, uc, 4)

	_, err := uc.UpdateVariant(ctx, v.ID, models.VariantPatch{})
	assert.ErrorIs(t, err, usecase.ErrInvalidPatch)

	got, err := uc.UpdateVariant(ctx, v.ID, models.VariantPatch{
		IsActive:      models.Some(false),
		DiscountPrice: models.Some(decimal.NewFromInt(399)),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VariantInactive, got.Status)
	assert.True(t, got.DiscountPrice.Valid)
	assert.Equal(t, 4, got.Stock)

	got, err = uc.UpdateVariant(ctx, v.ID, models.VariantPatch{DiscountPrice: models.Null[decimal.Decimal]()})
	require.NoError(t, err)
	assert.False(t, got.DiscountPrice.Valid)

	_, err = uc.UpdateVariant(ctx, v.ID, models.VariantPatch{Price: models.Null[decimal.Decimal]()})
	assert.ErrorIs(t, err, usecase.ErrInvalidPatch)

	evs := pub.stockEvents()
	assert.Equal(t, "variant.updated", evs[len(evs)-1].EventType)

	movements, err := uc.ListMovements(ctx, v.ID, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 1, "attribute patches do not touch the movement log")
}

// conflictingRepo loses every version race.
type conflictingRepo struct {
	repository.VariantRepository
}

func (conflictingRepo) CompareAndSwap(context.Context, *models.Variant, *models.Variant, *models.StockMovement) error {
	return repository.ErrVersionConflict
}

func TestStockContentionExhaustsRetries(t *testing.T) {
	inner := memory.NewVariantRepo()
	m := metrics.New(prometheus.NewRegistry())
	uc := usecase.NewStockUsecase(conflictingRepo{inner}, events.NopPublisher{}, m, logger.NewNop(), usecase.StockConfig{MaxRetries: 3})

	v := createVariant(t, uc, 5)

	ok, err := uc.ReduceStock(context.Background(), v.ID, 1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, usecase.ErrContention)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.StockConflicts()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StockOps().WithLabelValues("reduce", metrics.ResultError)))

	got, err := uc.GetVariant(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestStockContextCancelledDuringBackoff(t *testing.T) {
	inner := memory.NewVariantRepo()
	uc := usecase.NewStockUsecase(conflictingRepo{inner}, events.NopPublisher{}, metrics.New(prometheus.NewRegistry()), logger.NewNop(), usecase.StockConfig{MaxRetries: 5})
	v := createVariant(t, uc, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := uc.AddStock(ctx, v.ID, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
