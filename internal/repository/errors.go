package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint names from migrations/
const (
	constraintUsersEmail        = "idx_users_email_active"
	constraintTenantsSlug       = "tenants_slug_key"
	constraintTenantsMaster     = "idx_tenants_single_master"
	constraintPendingEmail      = "pending_registrations_email_key"
	pgUniqueViolation           = "23505"
	registrationAdvisoryLockKey = 0x756d78 // "umx"
)

// isUniqueViolation reports whether err is a unique violation on constraint
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
