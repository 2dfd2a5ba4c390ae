package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	appctx "github.com/welldanyogia/umx-auth/backend/internal/context"
)

// MobileTokenResponse carries tokens in the body for native clients
type MobileTokenResponse struct {
	AccessToken      string        `json:"access_token"`
	RefreshToken     string        `json:"refresh_token"`
	TokenType        string        `json:"token_type"`
	ExpiresIn        int64         `json:"expires_in"`
	RefreshExpiresIn int64         `json:"refresh_expires_in"`
	SessionID        string        `json:"session_id"`
	User             *UserResponse `json:"user,omitempty"`
}

// MobileLogoutRequest optionally names the session to end
type MobileLogoutRequest struct {
	SessionID string `json:"session_id"`
}

func mobileTokens(tokens *TokenPair, user *UserResponse) MobileTokenResponse {
	return MobileTokenResponse{
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        tokens.ExpiresIn,
		RefreshExpiresIn: tokens.RefreshExpiresIn,
		SessionID:        tokens.SessionID,
		User:             user,
	}
}

// MobileLogin authenticates a native client
// POST /auth/mobile/login
func (h *AuthHandler) MobileLogin(w http.ResponseWriter, r *http.Request) {
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
	writeSuccess(w, http.StatusOK, mobileTokens(result.Tokens, &result.User))
}

// MobileRefresh rotates a body-carried token pair
// POST /auth/mobile/refresh
func (h *AuthHandler) MobileRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, map[string][]string{
			"refresh_token": {"Campo obrigatório."},
		})
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken, req.SessionID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, mobileTokens(tokens, nil))
}

// MobileLogout ends the named session, or the token's own session
// POST /auth/mobile/logout
func (h *AuthHandler) MobileLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, MsgTokenInvalid, nil)
		return
	}

	var req MobileLogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgInvalidRequest, nil)
		return
	}
	if req.SessionID == "" {
		req.SessionID, _ = appctx.ExtractSessionID(r.Context())
	}

	if err := h.authService.RevokeOwnSession(r.Context(), userID, req.SessionID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"message": MsgLoggedOut,
	})
}

// MobileSessions lists the caller's active sessions
// GET /auth/mobile/sessions
func (h *AuthHandler) MobileSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, MsgTokenInvalid, nil)
		return
	}

	sessions, err := h.authService.ListUserSessions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	current, _ := appctx.ExtractSessionID(r.Context())
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"sessions":        sessions,
		"current_session": current,
		"total":           len(sessions),
	})
}

// MobileRevokeSession ends one of the caller's sessions
// DELETE /auth/mobile/sessions/{sessionID}
func (h *AuthHandler) MobileRevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, MsgTokenInvalid, nil)
		return
	}

	if err := h.authService.RevokeOwnSession(r.Context(), userID, chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"message": MsgLoggedOut,
	})
}
