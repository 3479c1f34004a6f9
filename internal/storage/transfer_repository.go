package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/types"
)

// TransferRepository persists matched transfer events into one tenant's
// database.
type TransferRepository struct {
	client *TenantClient
}

// NewTransferRepository creates a transfer repository over a tenant client
func NewTransferRepository(client *TenantClient) *TransferRepository {
	return &TransferRepository{client: client}
}

// EnsureTable creates the destination table if it does not exist.
// Safe to call on every ingest; CREATE TABLE IF NOT EXISTS is idempotent.
func (r *TransferRepository) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           BIGSERIAL PRIMARY KEY,
			slot         BIGINT NOT NULL,
			signature    TEXT NOT NULL,
			fee_payer    TEXT NOT NULL,
			fee          BIGINT NOT NULL,
			description  TEXT,
			account_data JSONB NOT NULL,
			instructions JSONB NOT NULL,
			received_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, types.TransferTableName)

	if _, err := r.client.Querier().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure transfer table: %w", err)
	}

	return nil
}

// Insert writes one transfer row. The insert is a single statement, so a
// row is either fully written or not at all.
func (r *TransferRepository) Insert(ctx context.Context, event *models.WebhookEvent) error {
	accountData, err := json.Marshal(event.AccountData)
	if err != nil {
		return fmt.Errorf("failed to marshal account data: %w", err)
	}

	instructions, err := json.Marshal(event.Instructions)
	if err != nil {
		return fmt.Errorf("failed to marshal instructions: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (slot, signature, fee_payer, fee, description, account_data, instructions, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, types.TransferTableName)

	_, err = r.client.Querier().Exec(ctx, query,
		event.Slot,
		event.Signature,
		event.FeePayer,
		event.Fee,
		event.Description,
		accountData,
		instructions,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}
