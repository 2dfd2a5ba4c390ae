package repository

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Property: a pending registration is expired exactly from its expiry instant onwards
func TestPendingRegistration_IsExpired(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		ttl := time.Duration(rapid.IntRange(1, 3600).Draw(t, "ttlSeconds")) * time.Second
		offset := time.Duration(rapid.IntRange(-7200, 7200).Draw(t, "offsetSeconds")) * time.Second

		p := &PendingRegistration{CreatedAt: base, ExpiresAt: base.Add(ttl)}
		now := base.Add(offset)

		want := offset >= ttl
		if got := p.IsExpired(now); got != want {
			t.Fatalf("IsExpired(now=+%v, ttl=%v) = %v, want %v", offset, ttl, got, want)
		}
	})
}

func TestTenant_HasCapacityAndSuspension(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		tenant        Tenant
		wantCapacity  bool
		wantSuspended bool
	}{
		{"room left", Tenant{IsActive: true, MaxUsers: 10, CurrentUsersCount: 9}, true, false},
		{"full", Tenant{IsActive: true, MaxUsers: 10, CurrentUsersCount: 10}, false, false},
		{"inactive", Tenant{IsActive: false, MaxUsers: 10}, true, true},
		{"suspended", Tenant{IsActive: true, MaxUsers: 10, SuspendedAt: &now}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tenant.HasCapacity(); got != tt.wantCapacity {
				t.Errorf("HasCapacity() = %v, want %v", got, tt.wantCapacity)
			}
			if got := tt.tenant.IsSuspended(); got != tt.wantSuspended {
				t.Errorf("IsSuspended() = %v, want %v", got, tt.wantSuspended)
			}
		})
	}
}

func TestListSessionsParams_Offset(t *testing.T) {
	if got := (ListSessionsParams{Page: 3, Limit: 20}).Offset(); got != 40 {
		t.Errorf("expected offset 40, got %d", got)
	}
	if got := (ListSessionsParams{Page: 0, Limit: 20}).Offset(); got != 0 {
		t.Errorf("expected offset 0 for page 0, got %d", got)
	}
}
