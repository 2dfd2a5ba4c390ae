package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/umx-auth/backend/internal/security"
)

// SecurityAdmin inspects and releases abuse defense blocks
type SecurityAdmin interface {
	Stats(ctx context.Context) (*security.Stats, error)
	Unblock(ctx context.Context, ip, route string) (*security.UnblockResult, error)
}

// RevokeMultipleRequest lists sessions to revoke in one call
type RevokeMultipleRequest struct {
	SessionIDs []string `json:"session_ids" validate:"required,min=1,max=100,dive,uuid"`
}

// UnblockRequest names the IP, and optionally the route, to release
type UnblockRequest struct {
	IP    string `json:"ip" validate:"required,ip"`
	Route string `json:"route" validate:"omitempty,max=200"`
}

// AdminHandler serves tenant admin session and security endpoints
type AdminHandler struct {
	sessions *SessionService
	security SecurityAdmin
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(sessions *SessionService, securityAdmin SecurityAdmin, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{sessions: sessions, security: securityAdmin, logger: logger}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ListSessions pages through active sessions, optionally for one user
// GET /auth/admin/sessions
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", DefaultPageLimit)

	var (
		result interface{}
		err    error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		result, err = h.sessions.ListForUser(r.Context(), userID, page, limit)
	} else {
		result, err = h.sessions.ListActive(r.Context(), page, limit)
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// ListUserSessions pages through one user's active sessions
// GET /auth/admin/sessions/user/{userID}
func (h *AdminHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.ListForUser(r.Context(), chi.URLParam(r, "userID"), queryInt(r, "page", 1), queryInt(r, "limit", DefaultPageLimit))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// RevokeAllForUser ends every session of a user
// DELETE /auth/admin/sessions/user/{userID}/revoke-all
func (h *AdminHandler) RevokeAllForUser(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.RevokeAllForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": MsgSessionsRevoked,
		"revoked": n,
	})
}

// RevokeSession ends one session
// DELETE /auth/admin/sessions/{sessionID}
func (h *AdminHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Revoke(r.Context(), sessionID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"message":    MsgSessionsRevoked,
		"session_id": sessionID,
	})
}

// RevokeMultiple ends up to MaxBulkRevoke sessions
// POST /auth/admin/sessions/revoke-multiple
func (h *AdminHandler) RevokeMultiple(w http.ResponseWriter, r *http.Request) {
	var req RevokeMultipleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verrs := validateStruct(req); len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(verrs))
		return
	}
	writeSuccess(w, http.StatusOK, h.sessions.RevokeMultiple(r.Context(), req.SessionIDs))
}

// Suspicious lists sessions of users seen from several IPs
// GET /auth/admin/sessions/suspicious
func (h *AdminHandler) Suspicious(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Suspicious(r.Context(),
		queryInt(r, "hours", DefaultSuspiciousWindow),
		queryInt(r, "page", 1),
		queryInt(r, "limit", DefaultPageLimit),
	)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// SessionStats aggregates the session table
// GET /auth/admin/sessions/stats
func (h *AdminHandler) SessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

// SecurityStats reports abuse defense counters
// GET /auth/admin/security/stats
func (h *AdminHandler) SecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.security.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

// Unblock releases an IP from the IP blocker and brute force tracker
// POST /auth/admin/security/unblock
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	var req UnblockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verrs := validateStruct(req); len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, validationDetails(verrs))
		return
	}

	result, err := h.security.Unblock(r.Context(), req.IP, req.Route)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": MsgSecurityBlocksReleased,
		"result":  result,
	})
}
