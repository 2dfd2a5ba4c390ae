package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
	"github.com/welldanyogia/umx-auth/backend/internal/repository"
)

// Paging and window bounds for admin session listings
const (
	DefaultPageLimit        = 20
	MaxPageLimit            = 100
	DefaultSuspiciousWindow = 24
	MaxSuspiciousWindow     = 168
	MaxBulkRevoke           = 100
)

// RevokeOutcome is the per-session result of a bulk revoke
type RevokeOutcome struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BulkRevokeResult summarises RevokeMultiple
type BulkRevokeResult struct {
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Total      int             `json:"total"`
	Results    []RevokeOutcome `json:"results"`
}

// SessionService serves administrative session operations
type SessionService struct {
	sessions repository.SessionRepository
	reports  repository.SessionReportRepository
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService instance
func NewSessionService(sessions repository.SessionRepository, reports repository.SessionReportRepository, clk clock.Clock, logger *slog.Logger) *SessionService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{sessions: sessions, reports: reports, clock: clk, logger: logger}
}

// clampPage normalises page and limit values from query strings
func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// ListActive pages through every active session
func (s *SessionService) ListActive(ctx context.Context, page, limit int) (*repository.SessionPage, error) {
	page, limit = clampPage(page, limit)
	result, err := s.reports.ListActive(ctx, repository.ListSessionsParams{Page: page, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return result, nil
}

// ListForUser pages through one user's active sessions
func (s *SessionService) ListForUser(ctx context.Context, userID string, page, limit int) (*repository.SessionPage, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	page, limit = clampPage(page, limit)
	result, err := s.reports.ListActive(ctx, repository.ListSessionsParams{Page: page, Limit: limit, UserID: &id})
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	return result, nil
}

// Revoke force-ends one session
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	if err := s.sessions.Deactivate(ctx, id, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	metrics.SessionsRevokedTotal.WithLabelValues("admin").Inc()
	s.logger.Info("Session revoked by admin", slog.String("session_id", sessionID))
	return nil
}

// RevokeAllForUser force-ends every active session of a user
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}
	n, err := s.sessions.DeactivateAllForUser(ctx, id, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	metrics.SessionsRevokedTotal.WithLabelValues("admin").Add(float64(n))
	s.logger.Info("User sessions revoked by admin",
		slog.String("user_id", userID),
		slog.Int64("count", n),
	)
	return n, nil
}

// RevokeMultiple revokes each session independently; one failure does not
// stop the rest
func (s *SessionService) RevokeMultiple(ctx context.Context, sessionIDs []string) *BulkRevokeResult {
	result := &BulkRevokeResult{Total: len(sessionIDs), Results: make([]RevokeOutcome, 0, len(sessionIDs))}
	for _, id := range sessionIDs {
		outcome := RevokeOutcome{SessionID: id, Success: true}
		if err := s.Revoke(ctx, id); err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
			if !errors.Is(err, ErrSessionNotFound) {
				outcome.Error = "internal error"
				s.logger.Error("Bulk revoke failed", slog.String("session_id", id), slog.String("error", err.Error()))
			}
			result.Failed++
		} else {
			result.Successful++
		}
		result.Results = append(result.Results, outcome)
	}
	return result
}

// Suspicious lists sessions from the last hours whose user logged in from
// more than one IP in that window
func (s *SessionService) Suspicious(ctx context.Context, hours, page, limit int) (*repository.SuspiciousPage, error) {
	if hours < 1 {
		hours = DefaultSuspiciousWindow
	}
	if hours > MaxSuspiciousWindow {
		hours = MaxSuspiciousWindow
	}
	page, limit = clampPage(page, limit)
	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	result, err := s.reports.ListSuspicious(ctx, since, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious sessions: %w", err)
	}
	return result, nil
}

// Stats aggregates the session table
func (s *SessionService) Stats(ctx context.Context) (*repository.SessionStats, error) {
	stats, err := s.reports.Stats(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to compute session stats: %w", err)
	}
	return stats, nil
}
