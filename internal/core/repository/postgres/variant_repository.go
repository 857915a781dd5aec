package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

const (
	variantColumns  = `id, product_id, sku, stock, status, is_active, price, discount_price, version, created_at, updated_at, deleted_at`
	movementColumns = `id, variant_id, delta, reason, stock_after, created_at`
)

type postgresVariantRepo struct {
	txRunner
}

// NewPostgresVariantRepo does not retry version conflicts itself; callers
// rerun their read-check-write cycle on repository.ErrVersionConflict.
func NewPostgresVariantRepo(db *sqlx.DB, log logger.Logger) repository.VariantRepository {
	return &postgresVariantRepo{
		txRunner: txRunner{db: db, log: log, maxRetries: 1},
	}
}

func (r *postgresVariantRepo) Create(ctx context.Context, v *models.Variant, m *models.StockMovement) error {
	v.Version = 1
	return r.executeTx(ctx, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO product_variants (` + variantColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		_, err := tx.ExecContext(ctx, query,
			v.ID,
			v.ProductID,
			v.SKU,
			v.Stock,
			v.Status,
			v.IsActive,
			v.Price,
			v.DiscountPrice,
			v.Version,
			v.CreatedAt,
			v.UpdatedAt,
			v.DeletedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: variant %s", repository.ErrAlreadyExists, v.ID)
			}
			return fmt.Errorf("create variant: %w", err)
		}
		if m == nil {
			return nil
		}
		return r.createMovement(ctx, tx, m)
	})
}

func (r *postgresVariantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: variant %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("error getting variant: %w", err)
	}
	return &v, nil
}

func (r *postgresVariantRepo) CompareAndSwap(ctx context.Context, prev, next *models.Variant, m *models.StockMovement) error {
	var newVersion int64
	err := r.executeTx(ctx, func(tx *sqlx.Tx) error {
		const query = `
			UPDATE product_variants
			SET sku = $1, stock = $2, status = $3, is_active = $4, price = $5,
			    discount_price = $6, version = version + 1, updated_at = $7
			WHERE id = $8 AND version = $9 AND deleted_at IS NULL
			RETURNING version`
		err := tx.GetContext(ctx, &newVersion, query,
			next.SKU,
			next.Stock,
			next.Status,
			next.IsActive,
			next.Price,
			next.DiscountPrice,
			next.UpdatedAt,
			prev.ID,
			prev.Version,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.conflictOrMissing(ctx, tx, prev.ID)
			}
			return fmt.Errorf("update variant: %w", err)
		}
		if m == nil {
			return nil
		}
		return r.createMovement(ctx, tx, m)
	})
	if err != nil {
		return err
	}
	next.Version = newVersion
	return nil
}

func (r *postgresVariantRepo) conflictOrMissing(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1 AND deleted_at IS NULL)`
	if err := tx.GetContext(ctx, &exists, query, id); err != nil {
		return fmt.Errorf("check variant: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: variant %s", repository.ErrNotFound, id)
	}
	return repository.ErrVersionConflict
}

func (r *postgresVariantRepo) createMovement(ctx context.Context, tx *sqlx.Tx, m *models.StockMovement) error {
	const query = `INSERT INTO stock_movements (` + movementColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.ExecContext(ctx, query, m.ID, m.VariantID, m.Delta, m.Reason, m.StockAfter, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create stock movement: %w", err)
	}
	return nil
}

func (r *postgresVariantRepo) ListMovements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.StockMovement, error) {
	movements := make([]models.StockMovement, 0, limit)
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE variant_id = $1 ORDER BY seq DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &movements, query, variantID, limit); err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	return movements, nil
}
