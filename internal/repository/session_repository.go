package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository defines the write paths and per-user reads of the
// session registry. Rows are never hard-deleted.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// ListActiveByUser returns the user's active sessions, newest first
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]Session, error)
	// Deactivate ends a session. Ending an inactive session is a no-op.
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeactivateAllForUser ends every active session of the user
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

// Create inserts a new active session
func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	query := `
		INSERT INTO users_sessions (id, user_id, ip_address, user_agent, login_at, is_active)
		VALUES ($1, $2, NULLIF($3, '')::inet, $4, $5, true)
	`
	if _, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.LoginAt,
	); err != nil {
		return err
	}
	session.IsActive = true
	return nil
}

const sessionColumns = `
	id, user_id, COALESCE(host(ip_address), '') AS ip_address, user_agent, login_at, logout_at, is_active`

// GetByID retrieves a session by ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT` + sessionColumns + ` FROM users_sessions WHERE id = $1`

	s := &Session{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.IPAddress,
		&s.UserAgent,
		&s.LoginAt,
		&s.LogoutAt,
		&s.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns active sessions newest first
func (r *sessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM users_sessions
		WHERE user_id = $1 AND is_active
		ORDER BY login_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.LoginAt, &s.LogoutAt, &s.IsActive); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Deactivate sets is_active=false and stamps logout_at once
func (r *sessionRepository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE users_sessions
		SET is_active = false, logout_at = COALESCE(logout_at, $2)
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeactivateAllForUser mass-revokes a user's active sessions
func (r *sessionRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE users_sessions
		SET is_active = false, logout_at = $2
		WHERE user_id = $1 AND is_active
	`
	result, err := r.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
