package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/welldanyogia/umx-auth/backend/internal/auth"
	appctx "github.com/welldanyogia/umx-auth/backend/internal/context"
)

// Test configuration for property tests
func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "test-access-secret-key-32-chars!",
		RefreshSecret:      "test-refresh-secret-key-32-char!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "test-issuer",
	})
}

// Helper to create a test handler that records if it was called
func testHandler() (http.Handler, *bool) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		userID, ok := ExtractUserID(r.Context())
		if !ok || userID == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(userID))
	})
	return handler, &called
}

func decodeError(t interface{ Fatalf(string, ...any) }, rec *httptest.ResponseRecorder) ErrorResponse {
	var response ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

// Property: Missing Credentials Return 401
// *For any* request without an Authorization header or access cookie,
// the middleware returns 401 AUTH_TOKEN_MISSING and never calls the handler.
func TestPropertyMissingCredentialsReturn401(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := "/" + rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "path")
		method := rapid.SampledFrom([]string{"GET", "POST", "PUT", "DELETE"}).Draw(t, "method")

		middleware := NewAuthMiddleware(newTestTokenService())
		handler, called := testHandler()

		req := httptest.NewRequest(method, path, nil)
		rec := httptest.NewRecorder()
		middleware.Authenticate(handler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if *called {
			t.Error("handler should not be called when credentials are missing")
		}
		if response := decodeError(t, rec); response.Error.Code != auth.CodeAuthTokenMissing || response.Success {
			t.Errorf("expected AUTH_TOKEN_MISSING, got %+v", response.Error)
		}
	})
}

// Property: Invalid Token Returns 401
// *For any* malformed, mis-prefixed, refresh or foreign-signed token the
// middleware returns 401 AUTH_TOKEN_INVALID.
func TestPropertyInvalidTokenReturns401(t *testing.T) {
	tokenService := newTestTokenService()
	wrongService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "wrong-secret-key-that-is-32char!",
		RefreshSecret:      "wrong-refresh-secret-32-chars!!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "test-issuer",
	})

	rapid.Check(t, func(t *rapid.T) {
		middleware := NewAuthMiddleware(tokenService)
		handler, called := testHandler()
		sub := auth.TokenSubject{
			UserID:    rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(t, "userID"),
			SessionID: "s-1",
		}

		var authHeader string
		switch kind := rapid.IntRange(0, 5).Draw(t, "kind"); kind {
		case 0:
			authHeader = "Bearer " + rapid.StringMatching(`[a-zA-Z0-9]{20,50}`).Draw(t, "randomToken")
		case 1:
			authHeader = rapid.StringMatching(`[a-zA-Z0-9]{20,50}`).Draw(t, "tokenWithoutBearer")
		case 2:
			authHeader = "Bearer "
		case 3:
			authHeader = "Basic " + rapid.StringMatching(`[a-zA-Z0-9]{20,50}`).Draw(t, "basicToken")
		case 4:
			pair, _ := wrongService.GenerateTokenPair(sub)
			authHeader = "Bearer " + pair.AccessToken
		case 5:
			pair, _ := tokenService.GenerateTokenPair(sub)
			authHeader = "Bearer " + pair.RefreshToken
		}

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		middleware.Authenticate(handler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if *called {
			t.Error("handler should not be called for an invalid token")
		}
		if response := decodeError(t, rec); response.Error.Code != auth.CodeAuthTokenInvalid {
			t.Errorf("expected AUTH_TOKEN_INVALID, got %s", response.Error.Code)
		}
	})
}

func TestAuthenticate_InjectsClaimsFromHeaderOrCookie(t *testing.T) {
	tokenService := newTestTokenService()
	middleware := NewAuthMiddleware(tokenService)
	sub := auth.TokenSubject{
		UserID:        "0b6a3d4e-5f1c-4b7a-9f3e-2a1b0c9d8e7f",
		Email:         "ana@acme.com",
		TenantID:      "7f0e1d2c-3b4a-4958-8a7b-6c5d4e3f2a1b",
		IsTenantAdmin: true,
		SessionID:     "c3d2e1f0-a9b8-4c7d-8e6f-5a4b3c2d1e0f",
	}
	pair, err := tokenService.GenerateTokenPair(sub)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+pair.AccessToken) }},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+pair.AccessToken) }},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: pair.AccessToken})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.TokenSubject
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := r.Context()
				got.UserID, _ = appctx.ExtractUserID(ctx)
				got.Email, _ = appctx.ExtractEmail(ctx)
				got.TenantID, _ = appctx.ExtractTenantID(ctx)
				got.SessionID, _ = appctx.ExtractSessionID(ctx)
				got.IsTenantAdmin = appctx.IsTenantAdmin(ctx)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/protected", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			middleware.Authenticate(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if got != sub {
				t.Errorf("context mismatch: expected %+v, got %+v", sub, got)
			}
		})
	}
}

func TestRequireTenantAdmin(t *testing.T) {
	tokenService := newTestTokenService()
	middleware := NewAuthMiddleware(tokenService)

	tests := []struct {
		name       string
		admin      bool
		wantStatus int
	}{
		{"admin passes", true, http.StatusOK},
		{"member forbidden", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := tokenService.GenerateTokenPair(auth.TokenSubject{UserID: "u-1", SessionID: "s-1", IsTenantAdmin: tt.admin})
			if err != nil {
				t.Fatal(err)
			}
			handler, _ := testHandler()
			chain := middleware.Authenticate(middleware.RequireTenantAdmin(handler))

			req := httptest.NewRequest("GET", "/auth/admin/sessions", nil)
			req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
			rec := httptest.NewRecorder()
			chain.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}

	t.Run("unauthenticated", func(t *testing.T) {
		handler, called := testHandler()
		rec := httptest.NewRecorder()
		middleware.RequireTenantAdmin(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusUnauthorized || *called {
			t.Errorf("expected 401 without calling the handler, got %d", rec.Code)
		}
	})
}
