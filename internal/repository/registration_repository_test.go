//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "host=localhost port=5432 user=postgres password=postgres dbname=umx_auth_test sslmode=disable"
	}
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}
	t.Cleanup(pool.Close)
	resetTables(t, pool)
	return pool
}

func resetTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE users_sessions, pending_registrations RESTART IDENTITY;
		UPDATE tenants SET owner_user_id = NULL;
		DELETE FROM users;
		DELETE FROM tenants;
	`)
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

func createVerifiedPending(t *testing.T, repo PendingRegistrationRepository, email string, now time.Time) *PendingRegistration {
	t.Helper()
	p := &PendingRegistration{
		Email:        email,
		Name:         "Test",
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuuX8mKq9tYQw3k8zE7b1m8cY0Zq2n6e0W",
		CodeHash:     fmt.Sprintf("%064d", 0),
		CreatedAt:    now,
		ExpiresAt:    now.Add(15 * time.Minute),
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("failed to create pending registration: %v", err)
	}
	if err := repo.MarkVerified(context.Background(), p.ID); err != nil {
		t.Fatalf("failed to mark verified: %v", err)
	}
	return p
}

// Concurrent bootstraps against an empty database yield exactly one master tenant
func TestBootstrapTenant_ConcurrentCompletionsCreateOneTenant(t *testing.T) {
	pool := newTestPool(t)
	pendingRepo := NewPendingRegistrationRepository(pool)
	regRepo := NewRegistrationRepository(pool)
	tenantRepo := NewTenantRepository(pool)
	now := time.Now().UTC()

	const n = 8
	pendings := make([]*PendingRegistration, n)
	for i := 0; i < n; i++ {
		pendings[i] = createVerifiedPending(t, pendingRepo, fmt.Sprintf("user%d@example.com", i), now)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tenant := &Tenant{ID: uuid.New(), Name: "Acme", Slug: fmt.Sprintf("acme-%d", i), MaxUsers: 10}
			admin := &User{FullName: "Admin", Email: pendings[i].Email, PasswordHash: pendings[i].PasswordHash}
			err := regRepo.BootstrapTenant(context.Background(), pendings[i].ID, tenant, admin, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTenantAlreadyExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, successes, conflicts)
	}
	count, err := tenantRepo.CountActive(context.Background())
	if err != nil {
		t.Fatalf("failed to count tenants: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one tenant, got %d", count)
	}
}

func TestActivateMember_ConsumesPendingAndJoinsTenant(t *testing.T) {
	pool := newTestPool(t)
	pendingRepo := NewPendingRegistrationRepository(pool)
	regRepo := NewRegistrationRepository(pool)
	userRepo := NewUserRepository(pool)
	now := time.Now().UTC()
	ctx := context.Background()

	owner := createVerifiedPending(t, pendingRepo, "owner@example.com", now)
	tenant := &Tenant{ID: uuid.New(), Name: "Acme", Slug: "acme", MaxUsers: 2}
	if err := regRepo.BootstrapTenant(ctx, owner.ID, tenant, &User{FullName: "Owner", Email: owner.Email, PasswordHash: owner.PasswordHash}, now); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	member := &PendingRegistration{Email: "member@example.com", Name: "Member", PasswordHash: "x", CodeHash: fmt.Sprintf("%064d", 1), CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := pendingRepo.Create(ctx, member); err != nil {
		t.Fatalf("failed to create pending: %v", err)
	}
	user := &User{FullName: member.Name, Email: member.Email, PasswordHash: member.PasswordHash}
	if err := regRepo.ActivateMember(ctx, member.ID, tenant.ID, user, now); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	if _, err := pendingRepo.GetByEmail(ctx, member.Email); !errors.Is(err, ErrPendingNotFound) {
		t.Errorf("expected pending record to be consumed, got %v", err)
	}
	stored, err := userRepo.GetByEmail(ctx, member.Email)
	if err != nil {
		t.Fatalf("member not stored: %v", err)
	}
	if stored.IsTenantAdmin || stored.TenantID != tenant.ID {
		t.Errorf("unexpected member row: %+v", stored)
	}

	// Second activation of the same record must fail
	if err := regRepo.ActivateMember(ctx, member.ID, tenant.ID, &User{Email: "again@example.com"}, now); !errors.Is(err, ErrPendingNotFound) {
		t.Errorf("expected ErrPendingNotFound on reuse, got %v", err)
	}
}
