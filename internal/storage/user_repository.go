package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webhook-indexer/internal/models"
)

// ErrUserNotFound is returned when a charged or suspended user row is absent.
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles user data persistence
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool().Exec(ctx, query, user.ID, user.Credits, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, credits, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Credits,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// List retrieves all users
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT id, credits, created_at, updated_at
		FROM users
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Credits, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// Charge decrements the user's credits by exactly one and returns the
// post-decrement row. The decrement is floored at zero in SQL so the balance
// never goes negative even when concurrent charges race. Charges for the
// same user are otherwise uncoordinated; no lock is held across the round
// trip.
func (r *UserRepository) Charge(ctx context.Context, id string) (*models.User, error) {
	query := `
		UPDATE users
		SET credits = GREATEST(credits - 1, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING id, credits, created_at, updated_at
	`

	var user models.User
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Credits,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to charge user: %w", err)
	}

	return &user, nil
}

// ZeroCredits sets the user's balance to zero inside the caller's
// transaction. Part of the suspend commit.
func (r *UserRepository) ZeroCredits(ctx context.Context, tx pgx.Tx, id string) error {
	result, err := tx.Exec(ctx, `UPDATE users SET credits = 0, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to zero credits: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
