package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rahil234/SnapCart-sub000/internal/core/events"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/metrics"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

const maxMovementsPage = 100

type StockUsecase interface {
	CreateVariant(ctx context.Context, params models.NewVariantParams) (*models.Variant, error)
	GetVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, error)
	SetStock(ctx context.Context, variantID uuid.UUID, quantity int) error
	AddStock(ctx context.Context, variantID uuid.UUID, quantity int) error
	// ReduceStock returns false, with nothing written, when fewer than
	// quantity units are left.
	ReduceStock(ctx context.Context, variantID uuid.UUID, quantity int) (bool, error)
	UpdateVariant(ctx context.Context, variantID uuid.UUID, patch models.VariantPatch) (*models.Variant, error)
	ListMovements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.StockMovement, error)
}

type StockConfig struct {
	MaxRetries int
}

type stockUsecase struct {
	repo       repository.VariantRepository
	publisher  events.Publisher
	metrics    *metrics.Metrics
	log        logger.Logger
	maxRetries int
}

func NewStockUsecase(repo repository.VariantRepository, publisher events.Publisher, m *metrics.Metrics, log logger.Logger, cfg StockConfig) StockUsecase {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &stockUsecase{
		repo:       repo,
		publisher:  publisher,
		metrics:    m,
		log:        log,
		maxRetries: cfg.MaxRetries,
	}
}

// stockMutation computes the next variant state from the current one. A nil
// movement means the stock counter did not change.
type stockMutation func(v models.Variant, now time.Time) (models.Variant, *models.StockMovement, error)

func (uc *stockUsecase) CreateVariant(ctx context.Context, params models.NewVariantParams) (v *models.Variant, err error) {
	defer func() { uc.metrics.StockOperation("create", resultOf(err)) }()

	variant, movement, err := models.NewVariant(params, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Create(ctx, &variant, &movement); err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}

	uc.log.Info("Variant created",
		logger.StringField("variant_id", variant.ID.String()),
		logger.IntField("stock", variant.Stock))
	uc.publish(ctx, "variant.created", &variant, &movement)
	return &variant, nil
}

func (uc *stockUsecase) GetVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, error) {
	v, err := uc.repo.GetByID(ctx, variantID)
	if err != nil {
		return nil, mapVariantErr(err, variantID)
	}
	return v, nil
}

func (uc *stockUsecase) SetStock(ctx context.Context, variantID uuid.UUID, quantity int) (err error) {
	defer func() { uc.metrics.StockOperation("set", resultOf(err)) }()

	if quantity < 0 {
		return ErrInvalidQuantity
	}
	_, err = uc.mutate(ctx, "set", variantID, func(v models.Variant, now time.Time) (models.Variant, *models.StockMovement, error) {
		next, m, err := models.SetStock(v, quantity, now)
		return next, &m, err
	})
	return err
}

func (uc *stockUsecase) AddStock(ctx context.Context, variantID uuid.UUID, quantity int) (err error) {
	defer func() { uc.metrics.StockOperation("add", resultOf(err)) }()

	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	_, err = uc.mutate(ctx, "add", variantID, func(v models.Variant, now time.Time) (models.Variant, *models.StockMovement, error) {
		next, m, err := models.AddStock(v, quantity, now)
		return next, &m, err
	})
	return err
}

func (uc *stockUsecase) ReduceStock(ctx context.Context, variantID uuid.UUID, quantity int) (ok bool, err error) {
	defer func() {
		result := resultOf(err)
		if err == nil && !ok {
			result = metrics.ResultRejected
		}
		uc.metrics.StockOperation("reduce", result)
	}()

	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	_, err = uc.mutate(ctx, "reduce", variantID, func(v models.Variant, now time.Time) (models.Variant, *models.StockMovement, error) {
		next, m, err := models.ReduceStock(v, quantity, now)
		return next, &m, err
	})
	if errors.Is(err, ErrInsufficientStock) {
		uc.log.Info("Insufficient stock",
			logger.StringField("variant_id", variantID.String()),
			logger.IntField("requested", quantity))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (uc *stockUsecase) UpdateVariant(ctx context.Context, variantID uuid.UUID, patch models.VariantPatch) (v *models.Variant, err error) {
	defer func() { uc.metrics.StockOperation("patch", resultOf(err)) }()

	if patch.Empty() {
		return nil, ErrInvalidPatch
	}
	return uc.mutate(ctx, "patch", variantID, func(v models.Variant, now time.Time) (models.Variant, *models.StockMovement, error) {
		next, err := models.ApplyPatch(v, patch, now)
		return next, nil, err
	})
}

func (uc *stockUsecase) ListMovements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > maxMovementsPage {
		limit = maxMovementsPage
	}
	if _, err := uc.GetVariant(ctx, variantID); err != nil {
		return nil, err
	}
	movements, err := uc.repo.ListMovements(ctx, variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

// mutate runs the optimistic read-check-write cycle: read the variant and
// its version, compute the next state, swap it in only if the version is
// unchanged. A lost race restarts the cycle against the fresh row.
func (uc *stockUsecase) mutate(ctx context.Context, op string, variantID uuid.UUID, fn stockMutation) (*models.Variant, error) {
	for attempt := 1; attempt <= uc.maxRetries; attempt++ {
		current, err := uc.repo.GetByID(ctx, variantID)
		if err != nil {
			return nil, mapVariantErr(err, variantID)
		}

		next, movement, err := fn(*current, time.Now().UTC())
		if err != nil {
			return nil, err
		}

		err = uc.repo.CompareAndSwap(ctx, current, &next, movement)
		if err == nil {
			uc.log.Info("Stock operation successful",
				logger.StringField("op", op),
				logger.StringField("variant_id", variantID.String()),
				logger.IntField("stock", next.Stock),
				logger.StringField("status", string(next.Status)))
			uc.publish(ctx, eventTypeFor(movement), &next, movement)
			return &next, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, mapVariantErr(err, variantID)
		}

		uc.metrics.StockConflict()
		uc.log.Debug("Stock version conflict, retrying",
			logger.StringField("op", op),
			logger.StringField("variant_id", variantID.String()),
			logger.IntField("attempt", attempt))

		if attempt < uc.maxRetries {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	uc.log.Warn("Stock operation gave up after version conflicts",
		logger.StringField("op", op),
		logger.StringField("variant_id", variantID.String()),
		logger.IntField("attempts", uc.maxRetries))
	return nil, fmt.Errorf("%w: %s variant %s after %d attempts", ErrContention, op, variantID, uc.maxRetries)
}

func backoff(ctx context.Context, attempt int) error {
	sleep := time.Duration(attempt)*time.Millisecond + rand.N(time.Millisecond)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}

func mapVariantErr(err error, variantID uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
	}
	return err
}

func eventTypeFor(m *models.StockMovement) string {
	if m == nil {
		return "variant.updated"
	}
	return "variant.stock.changed"
}

func (uc *stockUsecase) publish(ctx context.Context, eventType string, v *models.Variant, m *models.StockMovement) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := &events.StockEvent{
		EventType: eventType,
		VariantID: v.ID,
		ProductID: v.ProductID,
		Stock:     v.Stock,
		Status:    string(v.Status),
		Timestamp: time.Now().UTC(),
	}
	if m != nil {
		event.Delta = m.Delta
		event.Reason = string(m.Reason)
	}
	if err := uc.publisher.PublishStockEvent(ctx, event); err != nil {
		uc.log.Warn("Failed to publish stock event",
			logger.StringField("event_type", eventType),
			logger.StringField("variant_id", v.ID.String()),
			logger.ErrorField("error", err))
	}
}
