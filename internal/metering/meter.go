// Package metering decrements per-user credit balances as events dispatch.
package metering

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/storage"
)

// UserStore is the persistence surface the meter charges against.
type UserStore interface {
	Charge(ctx context.Context, id string) (*models.User, error)
}

// Meter charges users one credit per matched rule per event and keeps the
// fast-path cache in step. Concurrent charges for one user are not
// serialized; the store floors the balance at zero, so the hard invariant
// (never negative) holds even when the exact count drifts under races.
type Meter struct {
	users    UserStore
	cache    *storage.RedisCache
	cacheTTL time.Duration
}

// NewMeter creates a new credit meter
func NewMeter(users UserStore, cache *storage.RedisCache, cacheTTL time.Duration) *Meter {
	return &Meter{
		users:    users,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Charge decrements the user's credits by exactly one and returns the
// post-decrement user. A missing user returns storage.ErrUserNotFound after
// invalidating the tenant's fast-path cache entries (stale reference
// cleanup). On success the updated user is written to the tenant's
// fast-path key so later reads in the same dispatch cycle stay cheap.
func (m *Meter) Charge(ctx context.Context, userID, databaseID string) (*models.User, error) {
	logger := logging.FromContext(ctx)

	user, err := m.users.Charge(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			if cacheErr := m.cache.InvalidateTenant(ctx, databaseID); cacheErr != nil {
				logger.WithError(cacheErr).WithField("databaseId", databaseID).
					Warn("Failed to invalidate tenant cache after missing user")
			}
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	payload, err := json.Marshal(user)
	if err == nil {
		// Cache write is best-effort; the store already holds the truth.
		if cacheErr := m.cache.Set(ctx, storage.UserKey(databaseID), payload, m.cacheTTL); cacheErr != nil {
			logger.WithError(cacheErr).WithField("databaseId", databaseID).
				Warn("Failed to write user to fast-path cache")
		}
	}

	return user, nil
}
