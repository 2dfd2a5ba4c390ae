package repository

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organisation that owns users
type Tenant struct {
	ID                uuid.UUID  `db:"id"`
	Name              string     `db:"name"`
	Slug              string     `db:"slug"`
	Description       *string    `db:"description"`
	OwnerUserID       *uuid.UUID `db:"owner_user_id"`
	IsActive          bool       `db:"is_active"`
	IsMaster          bool       `db:"is_master"`
	MaxUsers          int        `db:"max_users"`
	CurrentUsersCount int        `db:"current_users_count"`
	SuspendedAt       *time.Time `db:"suspended_at"`
	SuspensionReason  *string    `db:"suspension_reason"`
	SuspensionType    *string    `db:"suspension_type"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// IsSuspended reports whether the tenant is blocked from signing users in
func (t *Tenant) IsSuspended() bool {
	return !t.IsActive || t.SuspendedAt != nil
}

// HasCapacity reports whether another member can join
func (t *Tenant) HasCapacity() bool {
	return t.MaxUsers <= 0 || t.CurrentUsersCount < t.MaxUsers
}

// User represents a user account in the database.
// ID is internal; UUID is the public identifier carried in tokens.
type User struct {
	ID            int64      `db:"id"`
	UUID          uuid.UUID  `db:"uuid"`
	FullName      string     `db:"full_name"`
	Email         string     `db:"email"`
	PasswordHash  string     `db:"password_hash"`
	TenantID      uuid.UUID  `db:"tenant_id"`
	IsVerified    bool       `db:"is_verified"`
	IsActive      bool       `db:"is_active"`
	IsTenantAdmin bool       `db:"is_tenant_admin"`
	LastLogin     *time.Time `db:"last_login"`
	DeletedAt     *time.Time `db:"deleted_at"`
	DeletedBy     *int64     `db:"deleted_by"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// PendingRegistration holds a sign-up awaiting email verification.
// Only the SHA-256 of the verification code is stored.
type PendingRegistration struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	CodeHash     string    `db:"code_hash"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	Verified     bool      `db:"verified"`
}

// IsExpired reports whether the code can no longer be redeemed at now
func (p *PendingRegistration) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Session represents one login event. IsActive=false is terminal.
type Session struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	LoginAt   time.Time  `db:"login_at" json:"login_at"`
	LogoutAt  *time.Time `db:"logout_at" json:"logout_at,omitempty"`
	IsActive  bool       `db:"is_active" json:"is_active"`
}

// SessionWithUser is a session joined with its owner for admin listings
type SessionWithUser struct {
	Session
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
}

// SuspiciousSession is a session belonging to a user seen from several IPs
type SuspiciousSession struct {
	SessionWithUser
	DistinctIPs int `db:"distinct_ips" json:"distinct_ips"`
}

// ListSessionsParams holds parameters for listing active sessions
type ListSessionsParams struct {
	Page   int
	Limit  int
	UserID *uuid.UUID
}

// Offset returns the row offset for the page
func (p ListSessionsParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// SessionPage is one page of sessions
type SessionPage struct {
	Sessions []SessionWithUser `json:"sessions"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// SuspiciousPage is one page of suspicious sessions
type SuspiciousPage struct {
	Sessions []SuspiciousSession `json:"sessions"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	Limit    int                 `json:"limit"`
	Since    time.Time           `json:"since"`
}

// CountEntry is a value with its occurrence count
type CountEntry struct {
	Value string `db:"value" json:"value"`
	Count int    `db:"count" json:"count"`
}

// SessionStats aggregates the session table
type SessionStats struct {
	TotalSessions     int          `db:"total_sessions" json:"total_sessions"`
	ActiveSessions    int          `db:"active_sessions" json:"active_sessions"`
	SessionsLast24h   int          `db:"sessions_last_24h" json:"sessions_last_24h"`
	UniqueActiveUsers int          `db:"unique_active_users" json:"unique_active_users"`
	TopUserAgents     []CountEntry `json:"top_user_agents"`
	TopIPs            []CountEntry `json:"top_ips"`
}
