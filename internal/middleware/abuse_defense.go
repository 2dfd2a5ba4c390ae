package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/welldanyogia/umx-auth/backend/internal/auth"
	"github.com/welldanyogia/umx-auth/backend/internal/logger"
	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
	"github.com/welldanyogia/umx-auth/backend/internal/security"
)

// DefaultMaxBodyScanBytes bounds how much of a request body the guards inspect
const DefaultMaxBodyScanBytes = 64 * 1024

// Evaluator runs the abuse defense guards for one request
type Evaluator interface {
	Evaluate(ctx context.Context, req *security.Request) security.Outcome
}

// AbuseDefense puts the security pipeline in front of every handler
type AbuseDefense struct {
	pipeline    Evaluator
	maxBodyScan int64
	logger      *slog.Logger
}

// NewAbuseDefense creates the middleware; maxBodyScan <= 0 uses the default
func NewAbuseDefense(pipeline Evaluator, maxBodyScan int64, log *slog.Logger) *AbuseDefense {
	if maxBodyScan <= 0 {
		maxBodyScan = DefaultMaxBodyScanBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &AbuseDefense{pipeline: pipeline, maxBodyScan: maxBodyScan, logger: log}
}

// Handler evaluates the request and either rejects it or forwards it with
// the guards' response headers applied
func (m *AbuseDefense) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &security.Request{
			Addr:      security.ParseClientIP(r.RemoteAddr),
			Method:    r.Method,
			Path:      r.URL.Path,
			RawPath:   r.URL.EscapedPath(),
			RawQuery:  r.URL.RawQuery,
			UserAgent: r.UserAgent(),
		}
		if err := m.bufferBody(r, req); err != nil {
			writeError(w, http.StatusBadRequest, auth.CodeValidationError, auth.MsgInvalidRequest)
			return
		}

		outcome := m.pipeline.Evaluate(r.Context(), req)
		for k, v := range outcome.Headers {
			w.Header().Set(k, v)
		}

		log := logger.WithCorrelationID(r.Context(), m.logger)
		for _, f := range outcome.Flags {
			metrics.SecurityFlagsTotal.WithLabelValues(f.Guard, string(f.Severity)).Inc()
			log.Log(r.Context(), severityLevel(f.Severity), "Security event flagged",
				slog.String("guard", f.Guard),
				slog.String("reason", f.Reason),
				slog.String("severity", string(f.Severity)),
				slog.String("ip", req.IP()),
				slog.String("path", req.Path),
				slog.String("user_agent", req.UserAgent),
			)
		}

		if outcome.Allowed() {
			next.ServeHTTP(w, r)
			return
		}

		d := outcome.Rejection
		metrics.SecurityRejectionsTotal.WithLabelValues(d.Guard, d.Code).Inc()
		log.Log(r.Context(), severityLevel(d.Severity), "Request rejected by abuse defense",
			slog.String("guard", d.Guard),
			slog.String("code", d.Code),
			slog.String("reason", d.Reason),
			slog.String("severity", string(d.Severity)),
			slog.String("ip", req.IP()),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)

		if d.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d)))
		}
		status := d.Status
		if status == 0 {
			status = http.StatusForbidden
		}
		writeError(w, status, d.Code, d.Message)
	})
}

// bufferBody reads up to maxBodyScan bytes of a JSON or text body for the
// signature scan and restores r.Body so the handler sees the full stream
func (m *AbuseDefense) bufferBody(r *http.Request, req *security.Request) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	ct := r.Header.Get("Content-Type")
	media, _, err := mime.ParseMediaType(ct)
	if err != nil || !(media == "application/json" || strings.HasPrefix(media, "text/") || media == "application/x-www-form-urlencoded") {
		return nil
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, m.maxBodyScan))
	if err != nil {
		return err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	req.ContentType = media
	req.Body = head
	return nil
}

func retryAfterSeconds(d *security.Decision) int {
	secs := int((d.RetryAfter.Milliseconds() + 999) / 1000)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func severityLevel(s security.Severity) slog.Level {
	switch s {
	case security.SeverityCritical, security.SeverityHigh:
		return slog.LevelError
	case security.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
