package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pending registration errors
var (
	ErrPendingNotFound      = errors.New("pending registration not found")
	ErrPendingAlreadyExists = errors.New("pending registration already exists for email")
)

// PendingRegistrationRepository defines data access for sign-ups awaiting verification
type PendingRegistrationRepository interface {
	Create(ctx context.Context, p *PendingRegistration) error
	GetByEmail(ctx context.Context, email string) (*PendingRegistration, error)
	Delete(ctx context.Context, id int64) error
	// ReplaceCode swaps the code hash and restarts the expiry window of an unverified record
	ReplaceCode(ctx context.Context, id int64, codeHash string, createdAt, expiresAt time.Time) error
	// MarkVerified flips verified from false to true; ErrPendingNotFound if it was already set
	MarkVerified(ctx context.Context, id int64) error
}

type pendingRegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewPendingRegistrationRepository creates a new PendingRegistrationRepository instance
func NewPendingRegistrationRepository(pool *pgxpool.Pool) PendingRegistrationRepository {
	return &pendingRegistrationRepository{pool: pool}
}

// Create inserts a new pending registration
func (r *pendingRegistrationRepository) Create(ctx context.Context, p *PendingRegistration) error {
	query := `
		INSERT INTO pending_registrations (email, name, password_hash, code_hash, created_at, expires_at, verified)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		strings.ToLower(p.Email),
		p.Name,
		p.PasswordHash,
		p.CodeHash,
		p.CreatedAt,
		p.ExpiresAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err, constraintPendingEmail) {
			return ErrPendingAlreadyExists
		}
		return err
	}
	p.Email = strings.ToLower(p.Email)
	p.Verified = false
	return nil
}

// GetByEmail retrieves the pending registration for an email
func (r *pendingRegistrationRepository) GetByEmail(ctx context.Context, email string) (*PendingRegistration, error) {
	query := `
		SELECT id, email, name, password_hash, code_hash, created_at, expires_at, verified
		FROM pending_registrations
		WHERE email = LOWER($1)
	`
	p := &PendingRegistration{}
	err := r.pool.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&p.PasswordHash,
		&p.CodeHash,
		&p.CreatedAt,
		&p.ExpiresAt,
		&p.Verified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPendingNotFound
		}
		return nil, err
	}
	return p, nil
}

// Delete removes a pending registration
func (r *pendingRegistrationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pending_registrations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPendingNotFound
	}
	return nil
}

// ReplaceCode regenerates the code of an unverified record
func (r *pendingRegistrationRepository) ReplaceCode(ctx context.Context, id int64, codeHash string, createdAt, expiresAt time.Time) error {
	query := `
		UPDATE pending_registrations
		SET code_hash = $2, created_at = $3, expires_at = $4
		WHERE id = $1 AND NOT verified
	`
	result, err := r.pool.Exec(ctx, query, id, codeHash, createdAt, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPendingNotFound
	}
	return nil
}

// MarkVerified sets verified once
func (r *pendingRegistrationRepository) MarkVerified(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE pending_registrations SET verified = true WHERE id = $1 AND NOT verified`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPendingNotFound
	}
	return nil
}
