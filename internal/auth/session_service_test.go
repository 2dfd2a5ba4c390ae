package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
	"github.com/welldanyogia/umx-auth/backend/internal/repository"
)

// stubReports records the arguments of report queries
type stubReports struct {
	mu         sync.Mutex
	lastParams repository.ListSessionsParams
	lastSince  time.Time
	err        error
}

func (s *stubReports) ListActive(ctx context.Context, params repository.ListSessionsParams) (*repository.SessionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	return &repository.SessionPage{Sessions: []repository.SessionWithUser{}, Page: params.Page, Limit: params.Limit}, nil
}

func (s *stubReports) ListSuspicious(ctx context.Context, since time.Time, page, limit int) (*repository.SuspiciousPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSince = since
	if s.err != nil {
		return nil, s.err
	}
	return &repository.SuspiciousPage{Sessions: []repository.SuspiciousSession{}, Page: page, Limit: limit, Since: since}, nil
}

func (s *stubReports) Stats(ctx context.Context, now time.Time) (*repository.SessionStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &repository.SessionStats{TopUserAgents: []repository.CountEntry{}, TopIPs: []repository.CountEntry{}}, nil
}

func newTestSessionService() (*SessionService, *memDB, *stubReports) {
	db := newMemDB()
	reports := &stubReports{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSessionService(memSessions{db}, reports, clock.NewMock(serviceEpoch), logger), db, reports
}

func TestSessionService_ListClampsPaging(t *testing.T) {
	svc, _, reports := newTestSessionService()

	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, DefaultPageLimit},
		{-3, 5, 1, 5},
		{2, 500, 2, MaxPageLimit},
		{4, 100, 4, 100},
	}
	for _, tt := range tests {
		page, err := svc.ListActive(context.Background(), tt.page, tt.limit)
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}
		if page.Page != tt.wantPage || page.Limit != tt.wantLimit {
			t.Errorf("ListActive(%d, %d): got page=%d limit=%d", tt.page, tt.limit, page.Page, page.Limit)
		}
		if reports.lastParams.UserID != nil {
			t.Error("ListActive should not filter by user")
		}
	}

	uid := uuid.New()
	if _, err := svc.ListForUser(context.Background(), uid.String(), 1, 10); err != nil {
		t.Fatal(err)
	}
	if reports.lastParams.UserID == nil || *reports.lastParams.UserID != uid {
		t.Error("ListForUser should pass the user filter")
	}
	if _, err := svc.ListForUser(context.Background(), "bogus", 1, 10); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound for a malformed id, got %v", err)
	}
}

func TestSessionService_SuspiciousWindow(t *testing.T) {
	svc, _, reports := newTestSessionService()

	tests := []struct {
		hours int
		want  time.Duration
	}{
		{0, 24 * time.Hour},
		{6, 6 * time.Hour},
		{1000, 168 * time.Hour},
	}
	for _, tt := range tests {
		if _, err := svc.Suspicious(context.Background(), tt.hours, 1, 20); err != nil {
			t.Fatal(err)
		}
		if got := serviceEpoch.Sub(reports.lastSince); got != tt.want {
			t.Errorf("hours=%d: expected window %v, got %v", tt.hours, tt.want, got)
		}
	}
}

func TestSessionService_RevokeMultiple(t *testing.T) {
	svc, db, _ := newTestSessionService()
	ctx := context.Background()

	active := repository.Session{ID: uuid.New(), UserID: uuid.New(), LoginAt: serviceEpoch}
	if err := (memSessions{db}).Create(ctx, &active); err != nil {
		t.Fatal(err)
	}

	result := svc.RevokeMultiple(ctx, []string{active.ID.String(), uuid.NewString(), "nope"})
	if result.Total != 3 || result.Successful != 1 || result.Failed != 2 {
		t.Fatalf("unexpected summary: %+v", result)
	}
	if !result.Results[0].Success || result.Results[1].Success {
		t.Errorf("unexpected per-session results: %+v", result.Results)
	}

	got, _ := memSessions{db}.GetByID(ctx, active.ID)
	if got.IsActive || got.LogoutAt == nil || !got.LogoutAt.Equal(serviceEpoch) {
		t.Errorf("session should be inactive with logout stamped: %+v", got)
	}
}

func TestSessionService_RevokeAllForUser(t *testing.T) {
	svc, db, _ := newTestSessionService()
	ctx := context.Background()
	user := uuid.New()
	for i := 0; i < 3; i++ {
		_ = (memSessions{db}).Create(ctx, &repository.Session{UserID: user, LoginAt: serviceEpoch})
	}

	n, err := svc.RevokeAllForUser(ctx, user.String())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 revoked, got %d, %v", n, err)
	}
	n, err = svc.RevokeAllForUser(ctx, user.String())
	if err != nil || n != 0 {
		t.Errorf("second revoke-all should be a no-op, got %d, %v", n, err)
	}
}

func TestSessionService_WrapsReportErrors(t *testing.T) {
	svc, _, reports := newTestSessionService()
	reports.err = errors.New("db down")

	if _, err := svc.Stats(context.Background()); err == nil || !errors.Is(err, reports.err) {
		t.Errorf("expected wrapped report error, got %v", err)
	}
}
