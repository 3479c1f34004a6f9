package dispatch

import (
	"context"

	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/storage"
	"github.com/webhook-indexer/internal/types"
)

// TransferStore is the tenant-side persistence surface for transfer events.
type TransferStore interface {
	EnsureTable(ctx context.Context) error
	Insert(ctx context.Context, event *models.WebhookEvent) error
}

// Ingestor validates and persists matched events into tenant stores.
type Ingestor struct {
	// newStore builds a store over an acquired tenant client. Replaceable
	// in tests.
	newStore func(client *storage.TenantClient) TransferStore
}

// NewIngestor creates a new transaction ingestor
func NewIngestor() *Ingestor {
	return &Ingestor{
		newStore: func(client *storage.TenantClient) TransferStore {
			return storage.NewTransferRepository(client)
		},
	}
}

// Ingest persists one matched event into the tenant's store. Only transfer
// events are handled; other kinds are accepted and dropped, an extension
// point rather than an error. An invalid payload is logged and returned as a
// data error so the dispatcher records a skip; it never reaches the webhook
// sender. The destination table is created on demand before the first row.
func (i *Ingestor) Ingest(ctx context.Context, client *storage.TenantClient, kind types.EventKind, event *models.WebhookEvent) error {
	logger := logging.FromContext(ctx)

	switch kind {
	case types.EventTransfer:
		if err := event.ValidateTransfer(); err != nil {
			logger.WithError(err).WithField("signature", event.Signature).
				Warn("Dropping transfer event with missing required fields")
			return err
		}

		store := i.newStore(client)

		if err := store.EnsureTable(ctx); err != nil {
			return err
		}

		return store.Insert(ctx, event)
	default:
		logger.WithField("kind", string(kind)).Debug("Dropping unhandled event kind")
		return nil
	}
}
