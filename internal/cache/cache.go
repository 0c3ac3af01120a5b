// Package cache stores the per-session checkout workflow state between
// requests, keyed by the opaque session id kept in the session cookie.
package cache

import (
	"context"
	"errors"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
)

type StateCache interface {
	Get(ctx context.Context, sessionID string) (*checkout.State, error)
	Set(ctx context.Context, sessionID string, st *checkout.State) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Load returns the stored state for sessionID, or a fresh idle state when
// none exists (first visit, expired session, cleared cart).
func Load(ctx context.Context, c StateCache, sessionID string) (*checkout.State, error) {
	st, err := c.Get(ctx, sessionID)
	if errors.Is(err, ErrCacheMiss) {
		return checkout.NewState(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
