package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
)

// SessionReportRepository serves the admin views over the session table
type SessionReportRepository interface {
	ListActive(ctx context.Context, params ListSessionsParams) (*SessionPage, error)
	// ListSuspicious returns sessions since the given time whose user logged
	// in from more than one distinct IP in that window
	ListSuspicious(ctx context.Context, since time.Time, page, limit int) (*SuspiciousPage, error)
	Stats(ctx context.Context, now time.Time) (*SessionStats, error)
}

type sessionReportRepository struct {
	db *sqlx.DB
}

// NewSessionReportRepository creates a new SessionReportRepository instance
func NewSessionReportRepository(db *sqlx.DB) SessionReportRepository {
	return &sessionReportRepository{db: db}
}

const sessionWithUserColumns = `
	s.id, s.user_id, COALESCE(host(s.ip_address), '') AS ip_address, s.user_agent,
	s.login_at, s.logout_at, s.is_active, u.email, u.full_name`

// ListActive pages through active sessions, optionally for a single user
func (r *sessionReportRepository) ListActive(ctx context.Context, params ListSessionsParams) (*SessionPage, error) {
	defer metrics.TimeQuery("list_active_sessions")()

	where := `WHERE s.is_active`
	args := []interface{}{}
	if params.UserID != nil {
		where += ` AND s.user_id = $1`
		args = append(args, *params.UserID)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM users_sessions s ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM users_sessions s
		JOIN users u ON u.uuid = s.user_id
		%s
		ORDER BY s.login_at DESC
		LIMIT $%d OFFSET $%d
	`, sessionWithUserColumns, where, n+1, n+2)
	args = append(args, params.Limit, params.Offset())

	sessions := []SessionWithUser{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return &SessionPage{
		Sessions: sessions,
		Total:    total,
		Page:     params.Page,
		Limit:    params.Limit,
	}, nil
}

// ListSuspicious self-joins sessions per user inside the window
func (r *sessionReportRepository) ListSuspicious(ctx context.Context, since time.Time, page, limit int) (*SuspiciousPage, error) {
	defer metrics.TimeQuery("list_suspicious_sessions")()

	flagged := `
		SELECT user_id, COUNT(DISTINCT ip_address) AS distinct_ips
		FROM users_sessions
		WHERE login_at >= $1
		GROUP BY user_id
		HAVING COUNT(DISTINCT ip_address) > 1`

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM users_sessions s
		JOIN (` + flagged + `) f ON f.user_id = s.user_id
		WHERE s.login_at >= $1
	`
	if err := r.db.GetContext(ctx, &total, countQuery, since); err != nil {
		return nil, fmt.Errorf("failed to count suspicious sessions: %w", err)
	}

	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}
	query := `
		SELECT ` + sessionWithUserColumns + `, f.distinct_ips
		FROM users_sessions s
		JOIN users u ON u.uuid = s.user_id
		JOIN (` + flagged + `) f ON f.user_id = s.user_id
		WHERE s.login_at >= $1
		ORDER BY s.user_id, s.login_at DESC
		LIMIT $2 OFFSET $3
	`
	sessions := []SuspiciousSession{}
	if err := r.db.SelectContext(ctx, &sessions, query, since, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list suspicious sessions: %w", err)
	}

	return &SuspiciousPage{
		Sessions: sessions,
		Total:    total,
		Page:     page,
		Limit:    limit,
		Since:    since,
	}, nil
}

// Stats aggregates counts plus the five most common user agents and IPs among active sessions
func (r *sessionReportRepository) Stats(ctx context.Context, now time.Time) (*SessionStats, error) {
	defer metrics.TimeQuery("session_stats")()

	stats := &SessionStats{}
	query := `
		SELECT
			COUNT(*) AS total_sessions,
			COUNT(*) FILTER (WHERE is_active) AS active_sessions,
			COUNT(*) FILTER (WHERE login_at >= $1) AS sessions_last_24h,
			COUNT(DISTINCT user_id) FILTER (WHERE is_active) AS unique_active_users
		FROM users_sessions
	`
	if err := r.db.GetContext(ctx, stats, query, now.Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	stats.TopUserAgents = []CountEntry{}
	if err := r.db.SelectContext(ctx, &stats.TopUserAgents, `
		SELECT COALESCE(user_agent, '') AS value, COUNT(*) AS count
		FROM users_sessions
		WHERE is_active
		GROUP BY user_agent
		ORDER BY count DESC
		LIMIT 5
	`); err != nil {
		return nil, fmt.Errorf("failed to rank user agents: %w", err)
	}

	stats.TopIPs = []CountEntry{}
	if err := r.db.SelectContext(ctx, &stats.TopIPs, `
		SELECT COALESCE(host(ip_address), '') AS value, COUNT(*) AS count
		FROM users_sessions
		WHERE is_active
		GROUP BY ip_address
		ORDER BY count DESC
		LIMIT 5
	`); err != nil {
		return nil, fmt.Errorf("failed to rank ips: %w", err)
	}

	return stats, nil
}
