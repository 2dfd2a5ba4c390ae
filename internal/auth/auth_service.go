package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
	"github.com/welldanyogia/umx-auth/backend/internal/email"
	"github.com/welldanyogia/umx-auth/backend/internal/logger"
	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
	"github.com/welldanyogia/umx-auth/backend/internal/repository"
)

const (
	defaultCodeLength = 8
	defaultCodeTTL    = 15 * time.Minute
	// DefaultMaxUsers is the member cap of a tenant created without one
	DefaultMaxUsers = 10
)

// FailureRecorder receives authentication failures per client IP
type FailureRecorder interface {
	RecordFailure(ctx context.Context, ip, reason string) error
	ClearFailures(ctx context.Context, ip string) error
}

// TextSanitizer strips markup from display names
type TextSanitizer interface {
	Clean(input string) string
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

// VerifyRequest represents the code verification payload
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,alphanum,min=4,max=32"`
}

// ResendRequest represents the code resend payload
type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CompleteRegistrationRequest represents the master tenant bootstrap payload
type CompleteRegistrationRequest struct {
	Email      string `json:"email" validate:"required,email"`
	TenantName string `json:"tenant_name" validate:"required,min=2,max=100"`
	TenantSlug string `json:"tenant_slug" validate:"required,min=3,max=50,slug"`
	MaxUsers   int    `json:"max_users" validate:"omitempty,gte=1,lte=10000"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ClientMeta describes the caller of a session-creating operation
type ClientMeta struct {
	IP        string
	UserAgent string
}

// RegisterResult is returned by Register and ResendCode
type RegisterResult struct {
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	EmailSent bool      `json:"email_sent"`
}

// VerifyResult is the structured outcome of VerifyCode.
// Invalid and expired codes are results, not errors.
type VerifyResult struct {
	Success            bool   `json:"success"`
	Code               string `json:"code,omitempty"`
	Message            string `json:"message"`
	RequiresCompletion bool   `json:"requires_completion"`
	Email              string `json:"email"`
}

// UserResponse represents the user data in responses
type UserResponse struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	TenantID      string     `json:"tenant_id"`
	IsTenantAdmin bool       `json:"is_tenant_admin"`
	IsVerified    bool       `json:"is_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

// TenantResponse represents the tenant data in responses
type TenantResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	MaxUsers          int    `json:"max_users"`
	CurrentUsersCount int    `json:"current_users_count"`
	IsMaster          bool   `json:"is_master"`
}

// AuthResult is returned by operations that open a session
type AuthResult struct {
	User      UserResponse
	Tenant    *TenantResponse
	Tokens    *TokenPair
	SessionID string
}

// AuthServiceConfig holds registration policy
type AuthServiceConfig struct {
	CodeLength int
	CodeTTL    time.Duration
	// OpenSignup lets verified emails join the existing tenant without an invitation
	OpenSignup bool
}

// Dependencies are the collaborators of AuthService
type Dependencies struct {
	Users         repository.UserRepository
	Tenants       repository.TenantRepository
	Pending       repository.PendingRegistrationRepository
	Registrations repository.RegistrationRepository
	Sessions      repository.SessionRepository
	Tokens        *TokenService
	Passwords     *PasswordValidator
	Mailer        email.Sender
	Failures      FailureRecorder
	Sanitizer     TextSanitizer
	Clock         clock.Clock
	Logger        *slog.Logger
}

// AuthService coordinates registration, verification, tenant bootstrap,
// login, refresh and logout
type AuthService struct {
	users         repository.UserRepository
	tenants       repository.TenantRepository
	pending       repository.PendingRegistrationRepository
	registrations repository.RegistrationRepository
	sessions      repository.SessionRepository
	tokenService  *TokenService
	passwords     *PasswordValidator
	mailer        email.Sender
	failures      FailureRecorder
	sanitizer     TextSanitizer
	clock         clock.Clock
	logger        *slog.Logger
	cfg           AuthServiceConfig
}

// NewAuthService creates a new AuthService instance
func NewAuthService(deps Dependencies, cfg AuthServiceConfig) *AuthService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaultCodeLength
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &AuthService{
		users:         deps.Users,
		tenants:       deps.Tenants,
		pending:       deps.Pending,
		registrations: deps.Registrations,
		sessions:      deps.Sessions,
		tokenService:  deps.Tokens,
		passwords:     deps.Passwords,
		mailer:        deps.Mailer,
		failures:      deps.Failures,
		sanitizer:     deps.Sanitizer,
		clock:         deps.Clock,
		logger:        deps.Logger,
		cfg:           cfg,
	}
}

// Register stores a pending registration and emails its verification code
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, []ValidationError, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = s.clean(req.Name)

	validationErrors := validateStruct(req)
	var weak bool
	for _, pe := range s.passwords.ValidatePassword(req.Password) {
		weak = true
		validationErrors = append(validationErrors, ValidationError{Field: pe.Field, Message: pe.Message})
	}
	if len(validationErrors) > 0 {
		if weak {
			return nil, validationErrors, ErrWeakPassword
		}
		return nil, validationErrors, ErrValidation
	}

	exists, err := s.users.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		s.event("register", "duplicate_email")
		return nil, nil, ErrDuplicateEmail
	}

	now := s.clock.Now()
	if err := s.discardStalePending(ctx, req.Email, now); err != nil {
		return nil, nil, err
	}

	passwordHash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	code, err := GenerateVerificationCode(s.cfg.CodeLength)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	p := &repository.PendingRegistration{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: passwordHash,
		CodeHash:     HashVerificationCode(code),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.CodeTTL),
	}
	if err := s.pending.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrPendingAlreadyExists) {
			return nil, nil, ErrPendingCodeStillValid
		}
		return nil, nil, fmt.Errorf("failed to store pending registration: %w", err)
	}

	sent := s.deliverCode(ctx, p.Email, code)
	s.event("register", "pending")

	msg := MsgRegistrationStarted
	if !sent {
		msg = MsgRegistrationNotSent
	}
	return &RegisterResult{Message: msg, Email: p.Email, ExpiresAt: p.ExpiresAt, EmailSent: sent}, nil, nil
}

// discardStalePending clears a previous pending record that may be replaced
func (s *AuthService) discardStalePending(ctx context.Context, email string, now time.Time) error {
	existing, err := s.pending.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrPendingNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load pending registration: %w", err)
	}

	if existing.Verified {
		count, err := s.tenants.CountActive(ctx)
		if err != nil {
			return fmt.Errorf("failed to count tenants: %w", err)
		}
		// A verified record only waits for bootstrap while no tenant exists
		if count == 0 {
			return ErrAwaitingCompletion
		}
	} else if !existing.IsExpired(now) {
		s.event("register", "pending_code_still_valid")
		return ErrPendingCodeStillValid
	}

	if err := s.pending.Delete(ctx, existing.ID); err != nil && !errors.Is(err, repository.ErrPendingNotFound) {
		return fmt.Errorf("failed to discard stale pending registration: %w", err)
	}
	return nil
}

// ResendCode issues a new code for an unverified pending record and restarts its expiry
func (s *AuthService) ResendCode(ctx context.Context, req ResendRequest) (*RegisterResult, error) {
	req.Email = normalizeEmail(req.Email)

	p, err := s.pending.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrPendingNotFound) {
		return nil, ErrNoPendingRegistration
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending registration: %w", err)
	}
	if p.Verified {
		return nil, ErrNoPendingRegistration
	}

	code, err := GenerateVerificationCode(s.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.CodeTTL)
	if err := s.pending.ReplaceCode(ctx, p.ID, HashVerificationCode(code), now, expiresAt); err != nil {
		if errors.Is(err, repository.ErrPendingNotFound) {
			return nil, ErrNoPendingRegistration
		}
		return nil, fmt.Errorf("failed to replace verification code: %w", err)
	}

	sent := s.deliverCode(ctx, p.Email, code)
	s.event("resend", "ok")

	msg := MsgCodeResent
	if !sent {
		msg = MsgRegistrationNotSent
	}
	return &RegisterResult{Message: msg, Email: p.Email, ExpiresAt: expiresAt, EmailSent: sent}, nil
}

// deliverCode sends the code and reports failures to the operator. The
// pending record stays redeemable either way.
func (s *AuthService) deliverCode(ctx context.Context, to, code string) bool {
	err := s.mailer.SendVerificationCode(ctx, to, code)
	if err == nil {
		metrics.VerificationEmailsTotal.WithLabelValues("sent").Inc()
		return true
	}

	metrics.VerificationEmailsTotal.WithLabelValues("failed").Inc()
	attrs := []any{slog.String("recipient", to), slog.String("error", err.Error())}
	var de *email.DeliveryError
	if errors.As(err, &de) {
		attrs = append(attrs, slog.Int("attempts", de.Attempts))
	}
	logger.WithCorrelationID(ctx, s.logger).Error("Verification code delivery failed", attrs...)
	return false
}

// VerifyCode redeems a code. With no tenant yet the record is marked verified
// and the caller must complete registration; otherwise the user joins the
// active tenant and the record is consumed in the same transaction.
func (s *AuthService) VerifyCode(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	req.Email = normalizeEmail(req.Email)
	invalid := &VerifyResult{Code: CodeInvalidCode, Message: MsgInvalidCode, Email: req.Email}

	p, err := s.pending.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrPendingNotFound) {
		s.event("verify", "invalid_code")
		return invalid, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending registration: %w", err)
	}
	if p.Verified || !verificationCodeMatches(p.CodeHash, req.Code) {
		s.event("verify", "invalid_code")
		return invalid, nil
	}
	now := s.clock.Now()
	if p.IsExpired(now) {
		s.event("verify", "expired_code")
		return &VerifyResult{Code: CodeExpiredCode, Message: MsgExpiredCode, Email: req.Email}, nil
	}

	tenant, err := s.tenants.FindActive(ctx)
	if errors.Is(err, repository.ErrTenantNotFound) {
		if err := s.pending.MarkVerified(ctx, p.ID); err != nil {
			if errors.Is(err, repository.ErrPendingNotFound) {
				s.event("verify", "invalid_code")
				return invalid, nil
			}
			return nil, fmt.Errorf("failed to mark registration verified: %w", err)
		}
		s.event("verify", "requires_completion")
		return &VerifyResult{
			Success:            true,
			Message:            MsgVerifiedComplete,
			RequiresCompletion: true,
			Email:              req.Email,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active tenant: %w", err)
	}

	if !s.cfg.OpenSignup {
		s.event("verify", "signup_closed")
		return &VerifyResult{Code: CodeSignupClosed, Message: MsgSignupClosed, Email: req.Email}, nil
	}
	full := &VerifyResult{Code: CodeTenantFull, Message: MsgTenantFull, Email: req.Email}
	if !tenant.HasCapacity() {
		s.event("verify", "tenant_full")
		return full, nil
	}

	user := &repository.User{
		FullName:     p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
	}
	err = s.registrations.ActivateMember(ctx, p.ID, tenant.ID, user, now)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrPendingNotFound):
		s.event("verify", "invalid_code")
		return invalid, nil
	case errors.Is(err, repository.ErrTenantFull):
		s.event("verify", "tenant_full")
		return full, nil
	case errors.Is(err, repository.ErrEmailAlreadyExists):
		return nil, ErrDuplicateEmail
	default:
		return nil, fmt.Errorf("failed to activate member: %w", err)
	}

	if _, err := s.users.GetByEmail(ctx, user.Email); errors.Is(err, repository.ErrUserNotFound) {
		return nil, s.invariantViolation(ctx, "member_without_user", slog.String("email", user.Email))
	}

	s.event("verify", "member_created")
	s.logger.Info("Member joined tenant",
		slog.String("user_id", user.UUID.String()),
		slog.String("tenant_id", tenant.ID.String()),
	)
	return &VerifyResult{Success: true, Message: MsgVerifiedMember, Email: req.Email}, nil
}

// CompleteRegistration bootstraps the master tenant with the verified user as
// its admin and opens a first session
func (s *AuthService) CompleteRegistration(ctx context.Context, req CompleteRegistrationRequest, meta ClientMeta) (*AuthResult, []ValidationError, error) {
	req.Email = normalizeEmail(req.Email)
	req.TenantName = s.clean(req.TenantName)
	if verrs := validateStruct(req); len(verrs) > 0 {
		return nil, verrs, ErrValidation
	}
	if req.MaxUsers == 0 {
		req.MaxUsers = DefaultMaxUsers
	}

	p, err := s.pending.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrPendingNotFound) {
		return nil, nil, ErrNotVerified
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pending registration: %w", err)
	}
	if !p.Verified {
		return nil, nil, ErrNotVerified
	}

	count, err := s.tenants.CountActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count tenants: %w", err)
	}
	if count > 0 {
		s.event("complete_registration", "tenant_exists")
		return nil, nil, ErrTenantAlreadyExists
	}

	now := s.clock.Now()
	tenant := &repository.Tenant{
		ID:       uuid.New(),
		Name:     req.TenantName,
		Slug:     req.TenantSlug,
		MaxUsers: req.MaxUsers,
	}
	admin := &repository.User{
		FullName:     p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
	}

	err = s.registrations.BootstrapTenant(ctx, p.ID, tenant, admin, now)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrTenantAlreadyExists):
		s.event("complete_registration", "tenant_exists")
		return nil, nil, ErrTenantAlreadyExists
	case errors.Is(err, repository.ErrSlugAlreadyExists):
		return nil, nil, ErrSlugTaken
	case errors.Is(err, repository.ErrPendingNotFound):
		return nil, nil, ErrNotVerified
	case errors.Is(err, repository.ErrEmailAlreadyExists):
		return nil, nil, ErrDuplicateEmail
	default:
		return nil, nil, fmt.Errorf("failed to bootstrap tenant: %w", err)
	}

	s.logger.Info("Master tenant created",
		slog.String("tenant_id", tenant.ID.String()),
		slog.String("tenant_slug", tenant.Slug),
		slog.String("admin_id", admin.UUID.String()),
	)

	result, err := s.openSession(ctx, admin, meta)
	if err != nil {
		return nil, nil, err
	}
	result.Tenant = toTenantResponse(tenant)
	s.event("complete_registration", "ok")
	return result, nil, nil
}

// Login verifies credentials and opens a new session
func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta ClientMeta) (*AuthResult, error) {
	email := normalizeEmail(req.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		s.passwords.BurnCompare(req.Password)
		return nil, s.loginFailed(ctx, meta, "unknown email")
	}
	if err := s.passwords.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return nil, s.loginFailed(ctx, meta, "wrong password")
	}
	if !user.IsActive {
		return nil, s.loginFailed(ctx, meta, "inactive user")
	}
	if !user.IsVerified {
		s.event("login", "not_verified")
		return nil, ErrNotVerified
	}

	tenant, err := s.tenants.GetByID(ctx, user.TenantID)
	if errors.Is(err, repository.ErrTenantNotFound) {
		return nil, s.invariantViolation(ctx, "user_without_tenant", slog.String("user_id", user.UUID.String()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant.IsSuspended() {
		s.event("login", "tenant_suspended")
		return nil, ErrTenantSuspended
	}

	if s.failures != nil {
		if err := s.failures.ClearFailures(ctx, meta.IP); err != nil {
			s.logger.Warn("Failed to clear IP failures", slog.String("ip", meta.IP), slog.String("error", err.Error()))
		}
	}

	result, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.event("login", "ok")
	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, meta ClientMeta, reason string) error {
	s.event("login", "invalid_credentials")
	if s.failures != nil {
		if err := s.failures.RecordFailure(ctx, meta.IP, reason); err != nil {
			s.logger.Error("Failed to record authentication failure", slog.String("ip", meta.IP), slog.String("error", err.Error()))
		}
	}
	logger.WithCorrelationID(ctx, s.logger).Info("Login failed",
		slog.String("ip", meta.IP),
		slog.String("reason", reason),
	)
	return ErrInvalidCredentials
}

// openSession records a session, stamps last login and signs a token pair
func (s *AuthService) openSession(ctx context.Context, user *repository.User, meta ClientMeta) (*AuthResult, error) {
	now := s.clock.Now()
	session := &repository.Session{
		ID:        uuid.New(),
		UserID:    user.UUID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		LoginAt:   now,
		IsActive:  true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.UUID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	pair, err := s.tokenService.GenerateTokenPair(subjectFor(user, session.ID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to sign tokens: %w", err)
	}

	return &AuthResult{
		User:      toUserResponse(user),
		Tokens:    pair,
		SessionID: session.ID.String(),
	}, nil
}

// Refresh rotates a token pair while the referenced session is active.
// A supplied sessionID must match the one the token was issued for.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, sessionID string) (*TokenPair, error) {
	claims, err := s.tokenService.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.event("refresh", "invalid_token")
		return nil, ErrInvalidToken
	}
	if sessionID != "" && sessionID != claims.SessionID {
		s.event("refresh", "invalid_token")
		return nil, ErrInvalidToken
	}
	sid, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.sessions.GetByID(ctx, sid)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrInvalidToken
	}
	if !session.IsActive {
		s.event("refresh", "session_revoked")
		return nil, ErrSessionRevoked
	}

	user, err := s.users.GetByUUID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrSessionRevoked
	}

	pair, err := s.tokenService.GenerateTokenPair(subjectFor(user, session.ID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to sign tokens: %w", err)
	}
	s.event("refresh", "ok")
	return pair, nil
}

// Logout ends one session. Ending an already inactive session succeeds.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	if err := s.sessions.Deactivate(ctx, id, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	s.event("logout", "ok")
	return nil
}

// LogoutAll ends every active session of the user
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}
	n, err := s.sessions.DeactivateAllForUser(ctx, id, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	metrics.SessionsRevokedTotal.WithLabelValues("logout_all").Add(float64(n))
	s.event("logout_all", "ok")
	return n, nil
}

// ListUserSessions returns the user's active sessions, newest first
func (s *AuthService) ListUserSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	sessions, err := s.sessions.ListActiveByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeOwnSession ends a session owned by userID. Sessions of other users
// are reported as not found.
func (s *AuthService) RevokeOwnSession(ctx context.Context, userID, sessionID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ErrSessionNotFound
	}
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	session, err := s.sessions.GetByID(ctx, sid)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session.UserID != uid {
		return ErrSessionNotFound
	}
	return s.Logout(ctx, sessionID)
}

// GetProfile returns the public profile of a user
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*UserResponse, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user, err := s.users.GetByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *AuthService) invariantViolation(ctx context.Context, kind string, attrs ...any) error {
	metrics.InvariantViolationsTotal.WithLabelValues(kind).Inc()
	attrs = append(attrs, slog.String("kind", kind), slog.Bool("alert", true))
	logger.WithCorrelationID(ctx, s.logger).Error("Invariant violation detected", attrs...)
	return fmt.Errorf("%w: %s", ErrInvariantViolation, kind)
}

func (s *AuthService) event(operation, result string) {
	metrics.AuthEventsTotal.WithLabelValues(operation, result).Inc()
}

func (s *AuthService) clean(v string) string {
	if s.sanitizer == nil {
		return v
	}
	return s.sanitizer.Clean(v)
}

func subjectFor(user *repository.User, sessionID string) TokenSubject {
	return TokenSubject{
		UserID:        user.UUID.String(),
		Email:         user.Email,
		TenantID:      user.TenantID.String(),
		IsTenantAdmin: user.IsTenantAdmin,
		SessionID:     sessionID,
	}
}

func toUserResponse(user *repository.User) UserResponse {
	return UserResponse{
		ID:            user.UUID.String(),
		FullName:      user.FullName,
		Email:         user.Email,
		TenantID:      user.TenantID.String(),
		IsTenantAdmin: user.IsTenantAdmin,
		IsVerified:    user.IsVerified,
		CreatedAt:     user.CreatedAt,
		LastLogin:     user.LastLogin,
	}
}

func toTenantResponse(t *repository.Tenant) *TenantResponse {
	return &TenantResponse{
		ID:                t.ID.String(),
		Name:              t.Name,
		Slug:              t.Slug,
		MaxUsers:          t.MaxUsers,
		CurrentUsersCount: t.CurrentUsersCount,
		IsMaster:          t.IsMaster,
	}
}
