package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahil234/SnapCart-sub000/internal/core/events"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/metrics"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository/postgres"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedVariant(t *testing.T, repo repository.VariantRepository, stock int) *models.Variant {
	t.Helper()
	v, m, err := models.NewVariant(models.NewVariantParams{
		ProductID: uuid.New(),
		SKU:       "SHOE-42-BLACK",
		Stock:     stock,
		Price:     decimal.RequireFromString("1999.00"),
		IsActive:  true,
	}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &v, &m))
	return &v
}

func TestVariantCompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostgresVariantRepo(db, logger.NewNop())
	ctx := context.Background()
	v := seedVariant(t, repo, 5)

	current, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Version)

	next, m, err := models.ReduceStock(*current, 2, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.CompareAndSwap(ctx, current, &next, &m))
	assert.Equal(t, int64(2), next.Version)

	// current still carries version 1.
	stale, sm, err := models.ReduceStock(*current, 1, time.Now().UTC())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, current, &stale, &sm), repository.ErrVersionConflict)

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	movements, err := repo.ListMovements(ctx, v.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementReduce, movements[0].Reason)
	assert.Equal(t, -2, movements[0].Delta)
	assert.Equal(t, models.MovementCreate, movements[1].Reason)
}

func TestVariantNotFoundAndSoftDeleted(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostgresVariantRepo(db, logger.NewNop())
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	v := seedVariant(t, repo, 1)
	_, err = db.Exec(`UPDATE product_variants SET deleted_at = NOW() WHERE id = $1`, v.ID)
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, v.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	next, m, err := models.AddStock(*v, 1, time.Now().UTC())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, v, &next, &m), repository.ErrNotFound)
}

func TestVariantCreateDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostgresVariantRepo(db, logger.NewNop())
	v := seedVariant(t, repo, 1)

	dup := *v
	assert.ErrorIs(t, repo.Create(context.Background(), &dup, nil), repository.ErrAlreadyExists)
}

func TestConcurrentReduceAgainstPostgres(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostgresVariantRepo(db, logger.NewNop())
	uc := usecase.NewStockUsecase(repo, events.NopPublisher{}, metrics.New(prometheus.NewRegistry()), logger.NewNop(), usecase.StockConfig{MaxRetries: 50})
	v := seedVariant(t, repo, 10)
	ctx := context.Background()

	const reducers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < reducers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := uc.ReduceStock(ctx, v.ID, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, models.VariantOutOfStock, got.Status)

	var rows int
	require.NoError(t, db.Get(&rows, `SELECT COUNT(*) FROM stock_movements WHERE variant_id = $1 AND reason = 'reduce'`, v.ID))
	assert.Equal(t, 10, rows)
}
