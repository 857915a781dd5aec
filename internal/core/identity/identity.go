// Package identity maps an authenticated caller to the owner id that keys
// wallets. Authentication itself happens upstream.
package identity

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("caller has no customer record")

type Resolver interface {
	ResolveOwnerID(ctx context.Context, callerIdentity string) (string, error)
}

// Passthrough treats the caller identity as the owner id.
type Passthrough struct{}

func (Passthrough) ResolveOwnerID(_ context.Context, callerIdentity string) (string, error) {
	id := strings.TrimSpace(callerIdentity)
	if id == "" {
		return "", ErrNotFound
	}
	return id, nil
}
