package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rahil234/SnapCart-sub000/internal/core/identity"
)

// CustomerResolver looks up the customer whose auth subject is the caller identity.
type CustomerResolver struct {
	db *sqlx.DB
}

func NewCustomerResolver(db *sqlx.DB) *CustomerResolver {
	return &CustomerResolver{db: db}
}

func (r *CustomerResolver) ResolveOwnerID(ctx context.Context, callerIdentity string) (string, error) {
	if callerIdentity == "" {
		return "", identity.ErrNotFound
	}
	var ownerID string
	err := r.db.GetContext(ctx, &ownerID, `SELECT id FROM customers WHERE auth_subject = $1`, callerIdentity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", identity.ErrNotFound, callerIdentity)
		}
		return "", fmt.Errorf("resolve owner id: %w", err)
	}
	return ownerID, nil
}
