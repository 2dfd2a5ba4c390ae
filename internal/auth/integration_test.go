//go:build integration

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/umx-auth/backend/internal/auth"
	authmw "github.com/welldanyogia/umx-auth/backend/internal/middleware"
	"github.com/welldanyogia/umx-auth/backend/internal/repository"
	"github.com/welldanyogia/umx-auth/backend/internal/sanitizer"
	"github.com/welldanyogia/umx-auth/backend/internal/security"
)

var (
	testDB     *pgxpool.Pool
	testSQLX   *sqlx.DB
	testRouter *chi.Mux
	mailer     = &captureMailer{codes: map[string]string{}}
)

// captureMailer keeps the last code sent to each address
type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *captureMailer) codeFor(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

// TestMain sets up the test database and router
func TestMain(m *testing.M) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "host=localhost port=5432 user=postgres password=postgres dbname=umx_auth_test sslmode=disable"
	}

	ctx := context.Background()

	var err error
	testDB, err = pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Printf("Failed to connect to test database: %v\n", err)
		os.Exit(1)
	}
	if err := testDB.Ping(ctx); err != nil {
		fmt.Printf("Failed to ping test database: %v\n", err)
		os.Exit(1)
	}
	testSQLX, err = sqlx.Connect("pgx", dbURL)
	if err != nil {
		fmt.Printf("Failed to open sqlx connection: %v\n", err)
		os.Exit(1)
	}

	setupTestRouter()
	code := m.Run()

	testSQLX.Close()
	testDB.Close()
	os.Exit(code)
}

func setupTestRouter() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessionRepo := repository.NewSessionRepository(testDB)
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "test-access-secret-key-32-chars!",
		RefreshSecret:      "test-refresh-secret-key-32-chars",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "test-issuer",
	})

	allowlist, _ := security.NewAllowlist(nil)
	store := security.NewMemoryStore(nil)
	ipBlock := security.NewIPBlockGuard(store, allowlist, security.DefaultIPBlockConfig(), nil, logger)
	bruteForce := security.NewBruteForceGuard(store, allowlist, security.DefaultBruteForceConfig(), nil, security.SleepContext, logger)

	authService := auth.NewAuthService(auth.Dependencies{
		Users:         repository.NewUserRepository(testDB),
		Tenants:       repository.NewTenantRepository(testDB),
		Pending:       repository.NewPendingRegistrationRepository(testDB),
		Registrations: repository.NewRegistrationRepository(testDB),
		Sessions:      sessionRepo,
		Tokens:        tokenService,
		Passwords:     auth.NewPasswordValidator(4),
		Mailer:        mailer,
		Failures:      ipBlock,
		Sanitizer:     sanitizer.NewTextSanitizer(),
		Logger:        logger,
	}, auth.AuthServiceConfig{OpenSignup: true})

	sessionService := auth.NewSessionService(sessionRepo, repository.NewSessionReportRepository(testSQLX), nil, logger)
	authMiddleware := authmw.NewAuthMiddleware(tokenService)

	testRouter = chi.NewRouter()
	testRouter.Route("/api/v1", func(r chi.Router) {
		auth.RegisterRoutes(r,
			auth.NewAuthHandler(authService, auth.CookieOptions{}, logger),
			auth.NewAdminHandler(sessionService, security.NewAdmin(ipBlock, bruteForce, logger), logger),
			authMiddleware.Authenticate,
			authMiddleware.RequireTenantAdmin,
		)
	})
}

// cleanupTestData removes test data from the database
func cleanupTestData(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `
		TRUNCATE users_sessions, pending_registrations RESTART IDENTITY;
		UPDATE tenants SET owner_user_id = NULL;
		DELETE FROM users;
		DELETE FROM tenants;
	`)
	if err != nil {
		t.Fatalf("failed to cleanup tables: %v", err)
	}
}

// APIResponse represents the standard API response
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type request struct {
	method  string
	path    string
	body    interface{}
	bearer  string
	cookies []*http.Cookie
}

func makeRequest(t *testing.T, in request) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reqBody []byte
	if in.body != nil {
		var err error
		if reqBody, err = json.Marshal(in.body); err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(in.method, "/api/v1"+in.path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if in.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+in.bearer)
	}
	for _, c := range in.cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	testRouter.ServeHTTP(rr, req)

	var resp APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return rr, resp
}

func decodeData(t *testing.T, resp APIResponse, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
}

func registerAndVerify(t *testing.T, name, email string) map[string]interface{} {
	t.Helper()
	rr, _ := makeRequest(t, request{method: "POST", path: "/auth/register", body: map[string]string{
		"name": name, "email": email, "password": "Str0ng!Pass",
	}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, rr.Code, rr.Body.String())
	}

	rr, resp := makeRequest(t, request{method: "POST", path: "/auth/verify", body: map[string]string{
		"email": email, "code": mailer.codeFor(strings.ToLower(email)),
	}})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify %s: expected 200, got %d", email, rr.Code)
	}
	var result map[string]interface{}
	decodeData(t, resp, &result)
	if result["success"] != true {
		t.Fatalf("verify %s failed: %v", email, result)
	}
	return result
}

func TestIntegration_BootstrapMemberLoginRefreshLogout(t *testing.T) {
	cleanupTestData(t)
	defer cleanupTestData(t)

	owner := fmt.Sprintf("owner_%d@acme.com", time.Now().UnixNano())
	member := fmt.Sprintf("member_%d@acme.com", time.Now().UnixNano())

	var ownerCookies []*http.Cookie
	t.Run("first user bootstraps the tenant", func(t *testing.T) {
		verified := registerAndVerify(t, "Ana Owner", owner)
		if verified["requires_completion"] != true {
			t.Fatalf("first verified user should need completion: %v", verified)
		}

		rr, resp := makeRequest(t, request{method: "POST", path: "/auth/complete-registration", body: map[string]interface{}{
			"email": owner, "tenant_name": "Acme", "tenant_slug": "acme",
		}})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var data struct {
			User   auth.UserResponse   `json:"user"`
			Tenant auth.TenantResponse `json:"tenant"`
		}
		decodeData(t, resp, &data)
		if !data.User.IsTenantAdmin || !data.Tenant.IsMaster || data.Tenant.CurrentUsersCount != 1 {
			t.Errorf("unexpected bootstrap result: %+v", data)
		}
		ownerCookies = rr.Result().Cookies()
	})

	t.Run("second bootstrap is refused", func(t *testing.T) {
		registerAndVerify(t, "Bea Rival", "rival@other.com")
		rr, resp := makeRequest(t, request{method: "POST", path: "/auth/complete-registration", body: map[string]interface{}{
			"email": "rival@other.com", "tenant_name": "Other", "tenant_slug": "other",
		}})
		if rr.Code != http.StatusConflict || resp.Error.Code != auth.CodeTenantAlreadyExists {
			t.Errorf("expected 409 TENANT_ALREADY_EXISTS, got %d %+v", rr.Code, resp.Error)
		}
	})

	var memberTokens auth.MobileTokenResponse
	t.Run("member joins and logs in on mobile", func(t *testing.T) {
		verified := registerAndVerify(t, "Caio Member", member)
		if verified["requires_completion"] == true {
			t.Fatal("member should join the existing tenant")
		}

		rr, resp := makeRequest(t, request{method: "POST", path: "/auth/mobile/login", body: map[string]string{
			"email": member, "password": "Str0ng!Pass",
		}})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		decodeData(t, resp, &memberTokens)
		if memberTokens.AccessToken == "" || memberTokens.SessionID == "" {
			t.Fatalf("missing tokens: %+v", memberTokens)
		}
	})

	t.Run("refresh rotates within the session", func(t *testing.T) {
		body := map[string]string{"refresh_token": memberTokens.RefreshToken, "session_id": memberTokens.SessionID}
		rr, resp := makeRequest(t, request{method: "POST", path: "/auth/mobile/refresh", body: body})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var rotated auth.MobileTokenResponse
		decodeData(t, resp, &rotated)
		if rotated.RefreshToken == memberTokens.RefreshToken {
			t.Error("refresh token should rotate")
		}
		if rotated.SessionID != memberTokens.SessionID {
			t.Errorf("refresh must keep the session, got %s", rotated.SessionID)
		}

		rr, _ = makeRequest(t, request{method: "POST", path: "/auth/mobile/refresh", body: map[string]string{
			"refresh_token": rotated.RefreshToken, "session_id": "00000000-0000-0000-0000-000000000000",
		}})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("refresh with a foreign session id should fail, got %d", rr.Code)
		}
		memberTokens = rotated
	})

	t.Run("admin sees and revokes the member session", func(t *testing.T) {
		rr, resp := makeRequest(t, request{method: "GET", path: "/auth/admin/sessions", cookies: ownerCookies})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var page repository.SessionPage
		decodeData(t, resp, &page)
		if page.Total < 2 {
			t.Errorf("expected owner and member sessions, got %d", page.Total)
		}

		rr, _ = makeRequest(t, request{method: "DELETE", path: "/auth/admin/sessions/" + memberTokens.SessionID, cookies: ownerCookies})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		rr, resp = makeRequest(t, request{method: "POST", path: "/auth/mobile/refresh", body: map[string]string{
			"refresh_token": memberTokens.RefreshToken, "session_id": memberTokens.SessionID,
		}})
		if rr.Code != http.StatusUnauthorized || resp.Error.Code != auth.CodeSessionRevoked {
			t.Errorf("refresh after revoke should be SESSION_REVOKED, got %d %+v", rr.Code, resp.Error)
		}
	})

	t.Run("member cannot reach admin routes", func(t *testing.T) {
		rr, resp := makeRequest(t, request{method: "POST", path: "/auth/mobile/login", body: map[string]string{
			"email": member, "password": "Str0ng!Pass",
		}})
		if rr.Code != http.StatusOK {
			t.Fatalf("login: %d", rr.Code)
		}
		var tokens auth.MobileTokenResponse
		decodeData(t, resp, &tokens)

		rr, _ = makeRequest(t, request{method: "GET", path: "/auth/admin/sessions/stats", bearer: tokens.AccessToken})
		if rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("web logout clears the session", func(t *testing.T) {
		rr, _ := makeRequest(t, request{method: "POST", path: "/auth/logout", cookies: ownerCookies})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		rr, _ = makeRequest(t, request{method: "POST", path: "/auth/refresh", cookies: ownerCookies})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("refresh after logout should fail, got %d", rr.Code)
		}
	})
}

func TestIntegration_LoginFailuresAreIndistinguishable(t *testing.T) {
	cleanupTestData(t)
	defer cleanupTestData(t)

	owner := "solo@acme.com"
	registerAndVerify(t, "Solo Owner", owner)
	rr, _ := makeRequest(t, request{method: "POST", path: "/auth/complete-registration", body: map[string]interface{}{
		"email": owner, "tenant_name": "Acme", "tenant_slug": "acme-solo",
	}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("bootstrap: %d", rr.Code)
	}

	tests := []struct {
		name  string
		email string
	}{
		{"wrong password", owner},
		{"unknown email", "ghost@acme.com"},
	}
	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := makeRequest(t, request{method: "POST", path: "/auth/login", body: map[string]string{
				"email": tt.email, "password": "Wr0ng!Password",
			}})
			if rr.Code != http.StatusUnauthorized || resp.Error.Code != auth.CodeInvalidCredentials {
				t.Fatalf("expected 401 INVALID_CREDENTIALS, got %d %+v", rr.Code, resp.Error)
			}
			bodies = append(bodies, resp.Error.Message)
		})
	}
	if len(bodies) == 2 && bodies[0] != bodies[1] {
		t.Errorf("failure messages differ: %q vs %q", bodies[0], bodies[1])
	}
}
