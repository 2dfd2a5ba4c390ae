package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// UserRepository defines the interface for user data access.
// Lookups ignore soft-deleted rows.
type UserRepository interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

// userRepository implements UserRepository using PostgreSQL
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `
	id, uuid, full_name, email, password_hash, tenant_id, is_verified, is_active,
	is_tenant_admin, last_login, deleted_at, deleted_by, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.UUID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.TenantID,
		&user.IsVerified,
		&user.IsActive,
		&user.IsTenantAdmin,
		&user.LastLogin,
		&user.DeletedAt,
		&user.DeletedBy,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByUUID retrieves a user by public identifier
func (r *userRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT` + userColumns + `
		FROM users
		WHERE uuid = $1 AND deleted_at IS NULL
	`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail retrieves a user by email (case-insensitive)
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL
	`
	return scanUser(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// UpdateLastLogin stamps the user's last successful login
func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login = $2, updated_at = $2 WHERE uuid = $1 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EmailExists reports whether an active, non-deleted user owns the email
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM users
			WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL AND is_active
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(&exists)
	return exists, err
}
