package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/webhook-indexer/internal/models"
)

// ErrParamsNotFound is returned when no watch-list mirror row exists.
var ErrParamsNotFound = errors.New("webhook params not found")

// ParamsRepository handles the local mirror of the upstream watch
// configuration.
type ParamsRepository struct {
	db       *PostgresDB
	userRepo *UserRepository
}

// NewParamsRepository creates a new params repository
func NewParamsRepository(db *PostgresDB, userRepo *UserRepository) *ParamsRepository {
	return &ParamsRepository{db: db, userRepo: userRepo}
}

// Get retrieves the watch-list mirror. A single row is expected.
func (r *ParamsRepository) Get(ctx context.Context) (*models.WebhookParams, error) {
	query := `
		SELECT id, transaction_types, account_addresses
		FROM params
		LIMIT 1
	`

	var params models.WebhookParams
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&params.ID,
		&params.TransactionTypes,
		&params.AccountAddresses,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParamsNotFound
		}
		return nil, fmt.Errorf("failed to get webhook params: %w", err)
	}

	return &params, nil
}

// CommitSuspension applies the local half of a suspension in one
// transaction: the user's credits drop to zero and the trimmed watch list is
// persisted. Called only after the upstream provider accepted the removal;
// either both writes land or neither does. An empty userID means the owning
// user row already vanished and only the mirror is updated.
func (r *ParamsRepository) CommitSuspension(ctx context.Context, userID string, trimmed *models.WebhookParams) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin suspension transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if userID != "" {
		if err := r.userRepo.ZeroCredits(ctx, tx, userID); err != nil {
			return err
		}
	}

	result, err := tx.Exec(ctx,
		`UPDATE params SET transaction_types = $2, account_addresses = $3 WHERE id = $1`,
		trimmed.ID,
		trimmed.TransactionTypes,
		trimmed.AccountAddresses,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook params: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrParamsNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit suspension: %w", err)
	}

	return nil
}
