package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/welldanyogia/umx-auth/backend/internal/auth"
	appctx "github.com/welldanyogia/umx-auth/backend/internal/context"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the access token from the Authorization header, or
// from the access_token cookie for browser clients
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenString string

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, auth.MsgTokenInvalid)
				return
			}
			tokenString = strings.TrimSpace(parts[1])
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, auth.MsgTokenInvalid)
				return
			}
		} else if c, err := r.Cookie(auth.AccessTokenCookie); err == nil && c.Value != "" {
			tokenString = c.Value
		} else {
			writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenMissing, auth.MsgTokenMissing)
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, auth.MsgTokenInvalid)
			return
		}

		ctx := context.WithValue(r.Context(), appctx.UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, appctx.EmailKey, claims.Email)
		ctx = context.WithValue(ctx, appctx.TenantIDKey, claims.TenantID)
		ctx = context.WithValue(ctx, appctx.IsTenantAdminKey, claims.IsTenantAdmin)
		ctx = context.WithValue(ctx, appctx.SessionIDKey, claims.SessionID)
		recordIdentity(ctx, claims.UserID(), claims.SessionID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenantAdmin rejects callers whose token lacks the tenant admin flag.
// It must run after Authenticate.
func (m *AuthMiddleware) RequireTenantAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := appctx.ExtractUserID(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenMissing, auth.MsgTokenMissing)
			return
		}
		if !appctx.IsTenantAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, auth.CodeForbidden, auth.MsgForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	return appctx.ExtractUserID(ctx)
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	return appctx.ExtractEmail(ctx)
}
