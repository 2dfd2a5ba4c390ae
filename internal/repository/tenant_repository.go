package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tenant repository errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("an active tenant already exists")
	ErrSlugAlreadyExists   = errors.New("tenant slug already exists")
	ErrTenantFull          = errors.New("tenant has reached its user limit")
)

// TenantRepository defines the interface for tenant data access
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// FindActive returns the oldest active tenant, the one members join
	FindActive(ctx context.Context) (*Tenant, error)
	CountActive(ctx context.Context) (int, error)
}

type tenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository creates a new TenantRepository instance
func NewTenantRepository(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepository{pool: pool}
}

const tenantColumns = `
	id, name, slug, description, owner_user_id, is_active, is_master, max_users,
	current_users_count, suspended_at, suspension_reason, suspension_type, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	t := &Tenant{}
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&t.Description,
		&t.OwnerUserID,
		&t.IsActive,
		&t.IsMaster,
		&t.MaxUsers,
		&t.CurrentUsersCount,
		&t.SuspendedAt,
		&t.SuspensionReason,
		&t.SuspensionType,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a tenant by ID
func (r *tenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.pool.QueryRow(ctx, query, id))
}

// FindActive returns the oldest active tenant
func (r *tenantRepository) FindActive(ctx context.Context) (*Tenant, error) {
	query := `SELECT` + tenantColumns + `
		FROM tenants
		WHERE is_active
		ORDER BY created_at ASC
		LIMIT 1
	`
	return scanTenant(r.pool.QueryRow(ctx, query))
}

// CountActive counts active tenants
func (r *tenantRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants WHERE is_active`).Scan(&count)
	return count, err
}
