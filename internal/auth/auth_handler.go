package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	appctx "github.com/welldanyogia/umx-auth/backend/internal/context"
)

// Cookie names used by the web channel
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	SessionIDCookie    = "session_id"
)

// CookieOptions controls the attributes of web channel cookies
type CookieOptions struct {
	Secure bool
	Domain string
}

// RefreshRequest is the optional refresh body; cookies fill empty fields
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService *AuthService
	cookies     CookieOptions
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService *AuthService, cookies CookieOptions, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// Register handles user registration
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	response, validationErrors, err := h.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, CodeWeakPassword, MsgWeakPassword, validationDetails(validationErrors))
		case errors.Is(err, ErrValidation):
			writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(validationErrors))
		default:
			writeServiceError(w, h.logger, err)
		}
		return
	}

	writeSuccess(w, http.StatusCreated, response)
}

// Verify redeems a verification code
// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verrs := validateStruct(req); len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(verrs))
		return
	}

	result, err := h.authService.VerifyCode(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// Resend issues a new verification code
// POST /auth/resend
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verrs := validateStruct(req); len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(verrs))
		return
	}

	result, err := h.authService.ResendCode(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// CompleteRegistration creates the master tenant and signs its admin in
// POST /auth/complete-registration
func (h *AuthHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req CompleteRegistrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, verrs, err := h.authService.CompleteRegistration(r.Context(), req, clientMeta(r))
	if err != nil {
		if errors.Is(err, ErrValidation) {
			writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(verrs))
			return
		}
		if errors.Is(err, ErrNotVerified) {
			writeError(w, http.StatusForbidden, CodeNotVerified, MsgTokenNotVerified, nil)
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"message":    MsgRegistrationCompleted,
		"user":       result.User,
		"tenant":     result.Tenant,
		"session_id": result.SessionID,
		"expires_in": result.Tokens.ExpiresIn,
	})
}

// Login handles user authentication for browsers
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verrs := validateStruct(req); len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(verrs))
		return
	}

	result, err := h.authService.Login(r.Context(), req, clientMeta(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message":    MsgLoginSucceeded,
		"user":       result.User,
		"session_id": result.SessionID,
		"expires_in": result.Tokens.ExpiresIn,
	})
}

// Refresh rotates the cookie token pair
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgInvalidRequest, nil)
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken = cookieValue(r, RefreshTokenCookie)
	}
	if req.SessionID == "" {
		req.SessionID = cookieValue(r, SessionIDCookie)
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, MsgInvalidRefreshToken, nil)
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken, req.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionRevoked) || errors.Is(err, ErrInvalidToken) {
			h.clearSessionCookies(w)
		}
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookies(w, tokens)
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"session_id": tokens.SessionID,
		"expires_in": tokens.ExpiresIn,
	})
}

// Logout ends the caller's current session
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := appctx.ExtractSessionID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, MsgTokenInvalid, nil)
		return
	}

	if err := h.authService.Logout(r.Context(), sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		writeServiceError(w, h.logger, err)
		return
	}

	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]string{
		"message": MsgLoggedOut,
	})
}

// LogoutAll ends every session of the caller
// POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, MsgTokenInvalid, nil)
		return
	}

	n, err := h.authService.LogoutAll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": MsgSessionsRevoked,
		"revoked": n,
	})
}

// GetMe handles getting current user profile
// GET /auth/me
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, MsgTokenInvalid, nil)
		return
	}

	profile, err := h.authService.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"user": profile,
	})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, tokens *TokenPair) {
	refreshMaxAge := int(tokens.RefreshExpiresIn)
	h.setCookie(w, AccessTokenCookie, tokens.AccessToken, int(tokens.ExpiresIn))
	h.setCookie(w, RefreshTokenCookie, tokens.RefreshToken, refreshMaxAge)
	h.setCookie(w, SessionIDCookie, tokens.SessionID, refreshMaxAge)
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, SessionIDCookie} {
		h.setCookie(w, name, "", -1)
	}
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge > 0 {
		c.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
