package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/webhook-indexer/internal/models"
)

// ErrDatabaseNotFound is returned when a tenant database config is absent.
var ErrDatabaseNotFound = errors.New("database config not found")

// DatabaseRepository handles tenant database config persistence
type DatabaseRepository struct {
	db *PostgresDB
}

// NewDatabaseRepository creates a new database config repository
func NewDatabaseRepository(db *PostgresDB) *DatabaseRepository {
	return &DatabaseRepository{db: db}
}

// GetByID retrieves one tenant database config
func (r *DatabaseRepository) GetByID(ctx context.Context, id string) (*models.DatabaseConfig, error) {
	query := `
		SELECT id, name, host, port, username, password_enc, cluster, created_at, updated_at
		FROM databases
		WHERE id = $1
	`

	var cfg models.DatabaseConfig
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Host,
		&cfg.Port,
		&cfg.Username,
		&cfg.PasswordEnc,
		&cfg.Cluster,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("failed to get database config: %w", err)
	}

	return &cfg, nil
}

// List retrieves all tenant database configs
func (r *DatabaseRepository) List(ctx context.Context) ([]*models.DatabaseConfig, error) {
	query := `
		SELECT id, name, host, port, username, password_enc, cluster, created_at, updated_at
		FROM databases
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list database configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.DatabaseConfig
	for rows.Next() {
		var cfg models.DatabaseConfig
		if err := rows.Scan(
			&cfg.ID,
			&cfg.Name,
			&cfg.Host,
			&cfg.Port,
			&cfg.Username,
			&cfg.PasswordEnc,
			&cfg.Cluster,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan database config: %w", err)
		}
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// GetIndexSettings retrieves the provisioning state for a tenant database.
// A missing row is reported as uninitialized rather than an error.
func (r *DatabaseRepository) GetIndexSettings(ctx context.Context, databaseID string) (*models.IndexSettings, error) {
	query := `
		SELECT id, database_id, table_initialized
		FROM index_settings
		WHERE database_id = $1
	`

	var settings models.IndexSettings
	err := r.db.Pool().QueryRow(ctx, query, databaseID).Scan(
		&settings.ID,
		&settings.DatabaseID,
		&settings.TableInitialized,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.IndexSettings{DatabaseID: databaseID}, nil
		}
		return nil, fmt.Errorf("failed to get index settings: %w", err)
	}

	return &settings, nil
}

// MarkTableInitialized records that provisioning completed for a tenant.
// Idempotent: racing writers converge on table_initialized = true.
func (r *DatabaseRepository) MarkTableInitialized(ctx context.Context, databaseID string) error {
	query := `
		INSERT INTO index_settings (id, database_id, table_initialized)
		VALUES (gen_random_uuid(), $1, TRUE)
		ON CONFLICT (database_id) DO UPDATE SET table_initialized = TRUE
	`

	if _, err := r.db.Pool().Exec(ctx, query, databaseID); err != nil {
		return fmt.Errorf("failed to mark table initialized: %w", err)
	}

	return nil
}
