package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

type variantRepo struct {
	mu        sync.RWMutex
	variants  map[uuid.UUID]models.Variant
	movements map[uuid.UUID][]models.StockMovement
}

func NewVariantRepo() repository.VariantRepository {
	return &variantRepo{
		variants:  make(map[uuid.UUID]models.Variant),
		movements: make(map[uuid.UUID][]models.StockMovement),
	}
}

func (r *variantRepo) Create(_ context.Context, v *models.Variant, m *models.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.variants[v.ID]; ok {
		return fmt.Errorf("%w: variant %s", repository.ErrAlreadyExists, v.ID)
	}
	v.Version = 1
	r.variants[v.ID] = *v
	if m != nil {
		r.movements[v.ID] = append(r.movements[v.ID], *m)
	}
	return nil
}

func (r *variantRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[id]
	if !ok || v.DeletedAt != nil {
		return nil, fmt.Errorf("%w: variant %s", repository.ErrNotFound, id)
	}
	return &v, nil
}

func (r *variantRepo) CompareAndSwap(_ context.Context, prev, next *models.Variant, m *models.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.variants[prev.ID]
	if !ok || current.DeletedAt != nil {
		return fmt.Errorf("%w: variant %s", repository.ErrNotFound, prev.ID)
	}
	if current.Version != prev.Version {
		return repository.ErrVersionConflict
	}
	next.Version = prev.Version + 1
	r.variants[prev.ID] = *next
	if m != nil {
		r.movements[prev.ID] = append(r.movements[prev.ID], *m)
	}
	return nil
}

func (r *variantRepo) ListMovements(_ context.Context, variantID uuid.UUID, limit int) ([]models.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.movements[variantID]
	out := make([]models.StockMovement, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
