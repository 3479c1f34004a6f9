package storage

import (
	"context"
	"fmt"

	"github.com/webhook-indexer/internal/models"
)

// SettingRepository handles monitoring rule persistence
type SettingRepository struct {
	db *PostgresDB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *PostgresDB) *SettingRepository {
	return &SettingRepository{db: db}
}

// List retrieves all monitoring rules
func (r *SettingRepository) List(ctx context.Context) ([]*models.Setting, error) {
	query := `
		SELECT id, user_id, database_id, target_addr, cluster
		FROM settings
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []*models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.ID, &s.UserID, &s.DatabaseID, &s.TargetAddr, &s.Cluster); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, &s)
	}

	return settings, rows.Err()
}

// ListByDatabase retrieves the monitoring rules bound to one tenant database
func (r *SettingRepository) ListByDatabase(ctx context.Context, databaseID string) ([]*models.Setting, error) {
	query := `
		SELECT id, user_id, database_id, target_addr, cluster
		FROM settings
		WHERE database_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings for database: %w", err)
	}
	defer rows.Close()

	var settings []*models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.ID, &s.UserID, &s.DatabaseID, &s.TargetAddr, &s.Cluster); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, &s)
	}

	return settings, rows.Err()
}
