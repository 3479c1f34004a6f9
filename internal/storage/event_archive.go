package storage

import (
	"context"
	"fmt"
	"time"
)

// ArchivedEvent is one raw inbound webhook payload kept for replay and
// debugging. The archive is append-only and independent of per-tenant
// dispatch outcomes.
type ArchivedEvent struct {
	Signature  string
	Slot       int64
	FeePayer   string
	Payload    string
	ReceivedAt time.Time
}

// EventArchive stores raw inbound events in ClickHouse
type EventArchive struct {
	db *ClickHouseDB
}

// NewEventArchive creates a new event archive
func NewEventArchive(db *ClickHouseDB) *EventArchive {
	return &EventArchive{db: db}
}

// EnsureTable creates the archive table if it does not exist
func (a *EventArchive) EnsureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS raw_webhook_events (
			signature   String,
			slot        Int64,
			fee_payer   String,
			payload     String,
			received_at DateTime64(3)
		)
		ENGINE = MergeTree()
		ORDER BY (received_at, signature)
	`

	if err := a.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create archive table: %w", err)
	}
	return nil
}

// Insert archives one raw event
func (a *EventArchive) Insert(ctx context.Context, event *ArchivedEvent) error {
	batch, err := a.db.conn.PrepareBatch(ctx, `
		INSERT INTO raw_webhook_events (signature, slot, fee_payer, payload, received_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	if err := batch.Append(
		event.Signature,
		event.Slot,
		event.FeePayer,
		event.Payload,
		event.ReceivedAt,
	); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}
