package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the user's public uuid
	UserIDKey ContextKey = "user_id"
	// EmailKey is the context key for user email
	EmailKey ContextKey = "email"
	// TenantIDKey is the context key for the user's tenant id
	TenantIDKey ContextKey = "tenant_id"
	// IsTenantAdminKey is the context key for the tenant admin flag
	IsTenantAdminKey ContextKey = "is_tenant_admin"
	// SessionIDKey is the context key for the session the access token belongs to
	SessionIDKey ContextKey = "session_id"
)

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// ExtractTenantID extracts the tenant ID from the request context
func ExtractTenantID(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(string)
	return tenantID, ok
}

// ExtractSessionID extracts the session ID from the request context
func ExtractSessionID(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(string)
	return sessionID, ok && sessionID != ""
}

// IsTenantAdmin reports whether the authenticated user administers their tenant
func IsTenantAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(IsTenantAdminKey).(bool)
	return admin
}
