package dispatch

import (
	"context"
	"fmt"

	"github.com/webhook-indexer/internal/helius"
	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/types"
)

// ParamsStore is the local mirror of the upstream watch configuration.
type ParamsStore interface {
	Get(ctx context.Context) (*models.WebhookParams, error)
	CommitSuspension(ctx context.Context, userID string, trimmed *models.WebhookParams) error
}

// SubscriptionEditor edits the provider-side watch configuration.
type SubscriptionEditor interface {
	EditWebhook(ctx context.Context, cluster types.Cluster, webhook *helius.WebhookConfig) error
}

// CacheInvalidator clears a tenant's fast-path cache entries.
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, databaseID string) error
}

// Suspender removes an exhausted rule's address from the upstream watch list
// and commits the matching local state. The upstream call goes first: a
// rejection there aborts the whole operation with zero local effect, and the
// next event for the address retries the suspension because the credit guard
// still fires.
type Suspender struct {
	params   ParamsStore
	provider SubscriptionEditor
	cache    CacheInvalidator
}

// NewSuspender creates a new subscription suspender
func NewSuspender(params ParamsStore, provider SubscriptionEditor, cache CacheInvalidator) (*Suspender, error) {
	if params == nil {
		return nil, fmt.Errorf("params store cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("subscription editor cannot be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator cannot be nil")
	}

	return &Suspender{
		params:   params,
		provider: provider,
		cache:    cache,
	}, nil
}

// Suspend removes the rule's target address from the watch list upstream,
// then atomically zeroes the owner's local credits and persists the trimmed
// mirror. userID may be empty when the owning user row has already vanished;
// the watch list is still trimmed. Only the triggering rule's address is
// affected.
func (s *Suspender) Suspend(ctx context.Context, rule *models.Setting, userID string) error {
	logger := logging.FromContext(ctx)

	params, err := s.params.Get(ctx)
	if err != nil {
		return err
	}

	trimmed := params.WithoutAddress(rule.TargetAddr)

	err = s.provider.EditWebhook(ctx, rule.Cluster, &helius.WebhookConfig{
		TransactionTypes: trimmed.TransactionTypes,
		AccountAddresses: trimmed.AccountAddresses,
	})
	if err != nil {
		// No local state changes; the address stays (possibly over-)watched
		// until a later event retries.
		return err
	}

	if err := s.params.CommitSuspension(ctx, userID, trimmed); err != nil {
		return err
	}

	if err := s.cache.InvalidateTenant(ctx, rule.DatabaseID); err != nil {
		logger.WithError(err).WithField("databaseId", rule.DatabaseID).
			Warn("Failed to invalidate tenant cache after suspension")
	}

	logger.WithFields(map[string]interface{}{
		"settingId":  rule.ID,
		"targetAddr": rule.TargetAddr,
		"cluster":    string(rule.Cluster),
	}).Info("Rule suspended and removed from watch list")

	return nil
}
