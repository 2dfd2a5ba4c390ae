// Package middleware provides HTTP middleware for the auth API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/welldanyogia/umx-auth/backend/internal/logger"
)

// LoggingMiddleware writes one structured log line per request
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware instance
func NewLoggingMiddleware(log *slog.Logger) *LoggingMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &LoggingMiddleware{
		logger: log,
	}
}

// Handler returns an HTTP middleware that logs requests with their correlation ID.
// Request bodies are never logged.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Set by middleware.RequestID
		requestID := middleware.GetReqID(r.Context())

		ctx := logger.SetCorrelationID(r.Context(), requestID)
		r = r.WithContext(ctx)

		// identity is filled in by Authenticate further down the chain
		identity := &requestIdentity{}
		r = r.WithContext(withIdentity(r.Context(), identity))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			slog.String("correlation_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
		}
		if identity.userID != "" {
			attrs = append(attrs, slog.String("user_id", identity.userID))
		}
		if identity.sessionID != "" {
			attrs = append(attrs, slog.String("session_id", identity.sessionID))
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			attrs = append(attrs, slog.String("x_forwarded_for", xff))
		}

		switch {
		case ww.Status() >= 500:
			m.logger.Error("HTTP request completed with server error", attrs...)
		case ww.Status() >= 400:
			m.logger.Warn("HTTP request completed with client error", attrs...)
		default:
			m.logger.Info("HTTP request completed", attrs...)
		}
	})
}

// StructuredLogger returns a chi-compatible logger that uses slog
func StructuredLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return NewLoggingMiddleware(log).Handler
}

type identityKey struct{}

// requestIdentity is filled in downstream and read after the handler returns.
type requestIdentity struct {
	userID    string
	sessionID string
}

func withIdentity(ctx context.Context, id *requestIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// recordIdentity stores the authenticated caller for the request log line
func recordIdentity(ctx context.Context, userID, sessionID string) {
	if id, ok := ctx.Value(identityKey{}).(*requestIdentity); ok {
		id.userID = userID
		id.sessionID = sessionID
	}
}
