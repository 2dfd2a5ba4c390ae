package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/welldanyogia/umx-auth/backend/internal/security"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// writeSuccess writes a successful JSON response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// decodeJSON reads the request body into dst, writing a 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgInvalidRequest, nil)
		return false
	}
	return true
}

// writeServiceError maps orchestrator errors onto the response envelope
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, nil)
	case errors.Is(err, ErrDuplicateEmail):
		writeError(w, http.StatusConflict, CodeEmailExists, MsgEmailExists, nil)
	case errors.Is(err, ErrPendingCodeStillValid):
		writeError(w, http.StatusConflict, CodePendingCodeStillValid, MsgPendingCodeStillValid, nil)
	case errors.Is(err, ErrAwaitingCompletion):
		writeError(w, http.StatusConflict, CodeAwaitingCompletion, MsgAwaitingCompletion, nil)
	case errors.Is(err, ErrNoPendingRegistration):
		writeError(w, http.StatusNotFound, CodeNoPendingRegistration, MsgNoPendingRegistration, nil)
	case errors.Is(err, ErrNotVerified):
		writeError(w, http.StatusForbidden, CodeNotVerified, MsgNotVerified, nil)
	case errors.Is(err, ErrTenantAlreadyExists):
		writeError(w, http.StatusConflict, CodeTenantAlreadyExists, MsgTenantAlreadyExists, nil)
	case errors.Is(err, ErrSlugTaken):
		writeError(w, http.StatusConflict, CodeSlugExists, MsgSlugExists, nil)
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, MsgInvalidCredentials, nil)
	case errors.Is(err, ErrTenantSuspended):
		writeError(w, http.StatusForbidden, CodeTenantSuspended, MsgTenantSuspended, nil)
	case errors.Is(err, ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, MsgInvalidRefreshToken, nil)
	case errors.Is(err, ErrSessionRevoked):
		writeError(w, http.StatusUnauthorized, CodeSessionRevoked, MsgSessionRevoked, nil)
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, CodeSessionNotFound, MsgSessionNotFound, nil)
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, CodeUserNotFound, MsgUserNotFound, nil)
	case errors.Is(err, security.ErrInvalidIP):
		writeError(w, http.StatusBadRequest, CodeValidationError, MsgValidationFailed, map[string][]string{"ip": {"IP inválido."}})
	default:
		logger.Error("Request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, CodeInternalError, MsgInternalError, nil)
	}
}

// clientMeta reads the caller address set by the router (RealIP when trusted)
func clientMeta(r *http.Request) ClientMeta {
	var ip string
	if addr := security.ParseClientIP(r.RemoteAddr); addr.IsValid() {
		ip = addr.String()
	}
	return ClientMeta{IP: ip, UserAgent: r.UserAgent()}
}
