package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
)

// RegistrationRepository performs the multi-table writes that turn a
// pending registration into a user. Each method is one transaction.
type RegistrationRepository interface {
	// ActivateMember creates user inside tenantID from an unverified pending
	// record and consumes the record.
	ActivateMember(ctx context.Context, pendingID int64, tenantID uuid.UUID, user *User, at time.Time) error
	// BootstrapTenant creates the master tenant and its admin from a verified
	// pending record. Fails ErrTenantAlreadyExists if any active tenant exists.
	BootstrapTenant(ctx context.Context, pendingID int64, tenant *Tenant, admin *User, at time.Time) error
}

type registrationRepository struct {
	pool *pgxpool.Pool
}

// NewRegistrationRepository creates a new RegistrationRepository instance
func NewRegistrationRepository(pool *pgxpool.Pool) RegistrationRepository {
	return &registrationRepository{pool: pool}
}

// ActivateMember inserts the user, bumps the tenant member count and deletes the pending row
func (r *registrationRepository) ActivateMember(ctx context.Context, pendingID int64, tenantID uuid.UUID, user *User, at time.Time) error {
	defer metrics.TimeQuery("activate_member")()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockPending(ctx, tx, pendingID, false); err != nil {
		return err
	}

	var maxUsers, current int
	err = tx.QueryRow(ctx, `
		SELECT max_users, current_users_count
		FROM tenants
		WHERE id = $1 AND is_active
		FOR UPDATE
	`, tenantID).Scan(&maxUsers, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	if maxUsers > 0 && current >= maxUsers {
		return ErrTenantFull
	}

	user.TenantID = tenantID
	user.IsVerified = true
	user.IsActive = true
	user.IsTenantAdmin = false
	if err := insertUser(ctx, tx, user, at); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tenants SET current_users_count = current_users_count + 1, updated_at = $2 WHERE id = $1
	`, tenantID, at); err != nil {
		return fmt.Errorf("failed to update tenant member count: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_registrations WHERE id = $1`, pendingID); err != nil {
		return fmt.Errorf("failed to consume pending registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BootstrapTenant serializes on an advisory lock, re-checks that no active
// tenant exists, then writes tenant, admin user and owner back-fill in order.
// The partial unique index on tenants(is_master) is the final guard.
func (r *registrationRepository) BootstrapTenant(ctx context.Context, pendingID int64, tenant *Tenant, admin *User, at time.Time) error {
	defer metrics.TimeQuery("bootstrap_tenant")()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, registrationAdvisoryLockKey); err != nil {
		return fmt.Errorf("failed to acquire bootstrap lock: %w", err)
	}

	if err := lockPending(ctx, tx, pendingID, true); err != nil {
		return err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE is_active)`).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check existing tenants: %w", err)
	}
	if exists {
		return ErrTenantAlreadyExists
	}

	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	tenant.IsActive = true
	tenant.IsMaster = true
	tenant.CreatedAt = at
	tenant.UpdatedAt = at
	_, err = tx.Exec(ctx, `
		INSERT INTO tenants (id, name, slug, description, is_active, is_master, max_users, current_users_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, true, $5, 0, $6, $6)
	`, tenant.ID, tenant.Name, strings.ToLower(tenant.Slug), tenant.Description, tenant.MaxUsers, at)
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintTenantsMaster):
			return ErrTenantAlreadyExists
		case isUniqueViolation(err, constraintTenantsSlug):
			return ErrSlugAlreadyExists
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	admin.TenantID = tenant.ID
	admin.IsVerified = true
	admin.IsActive = true
	admin.IsTenantAdmin = true
	if err := insertUser(ctx, tx, admin, at); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tenants SET owner_user_id = $2, current_users_count = 1, updated_at = $3 WHERE id = $1
	`, tenant.ID, admin.UUID, at); err != nil {
		return fmt.Errorf("failed to set tenant owner: %w", err)
	}
	owner := admin.UUID
	tenant.OwnerUserID = &owner
	tenant.CurrentUsersCount = 1

	if _, err := tx.Exec(ctx, `DELETE FROM pending_registrations WHERE id = $1`, pendingID); err != nil {
		return fmt.Errorf("failed to consume pending registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockPending row-locks the pending record and checks its verified flag
func lockPending(ctx context.Context, tx pgx.Tx, id int64, wantVerified bool) error {
	var verified bool
	err := tx.QueryRow(ctx, `SELECT verified FROM pending_registrations WHERE id = $1 FOR UPDATE`, id).Scan(&verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPendingNotFound
		}
		return fmt.Errorf("failed to lock pending registration: %w", err)
	}
	if verified != wantVerified {
		return ErrPendingNotFound
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, user *User, at time.Time) error {
	if user.UUID == uuid.Nil {
		user.UUID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = at
	user.UpdatedAt = at

	err := tx.QueryRow(ctx, `
		INSERT INTO users (uuid, full_name, email, password_hash, tenant_id, is_verified, is_active, is_tenant_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`,
		user.UUID,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.TenantID,
		user.IsVerified,
		user.IsActive,
		user.IsTenantAdmin,
		at,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err, constraintUsersEmail) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
