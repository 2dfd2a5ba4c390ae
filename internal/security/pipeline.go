package security

import (
	"context"
	"net/netip"
	"time"
)

// Severity grades a security event for logging and alerting
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Verdict is a guard's outcome for one request
type Verdict int

const (
	// Allow lets the request continue
	Allow Verdict = iota
	// Flag lets the request continue but records a security event
	Flag
	// Reject terminates the request
	Reject
)

// Rejection codes
const (
	CodeForbiddenRoute    = "FORBIDDEN_ROUTE"
	CodeSuspiciousRequest = "SUSPICIOUS_REQUEST"
	CodeIPBlocked         = "IP_BLOCKED"
	CodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeRequestCancelled  = "REQUEST_CANCELLED"
)

// Request is the subset of an HTTP request the guards inspect
type Request struct {
	Addr      netip.Addr
	Method    string
	Path      string
	RawPath   string
	RawQuery  string
	UserAgent string
	// ContentType and Body are only set when the body was buffered for scanning
	ContentType string
	Body        []byte
}

// IP returns the textual client address, or "unknown"
func (r *Request) IP() string {
	return ipKey(r.Addr)
}

// Decision is a guard's answer for one request
type Decision struct {
	Verdict    Verdict
	Guard      string
	Status     int
	Code       string
	Message    string
	Reason     string
	Severity   Severity
	RetryAfter time.Duration
	Headers    map[string]string
}

// Guard inspects a request and decides whether it may proceed
type Guard interface {
	Name() string
	Check(ctx context.Context, req *Request) Decision
}

// Outcome is the pipeline's combined result
type Outcome struct {
	// Rejection is the first terminal decision, nil when the request may proceed
	Rejection *Decision
	// Flags are non-terminal security events raised along the way
	Flags []Decision
	// Headers are response headers contributed by the guards (rate limit quotas)
	Headers map[string]string
}

// Allowed reports whether the request may reach the handler
func (o Outcome) Allowed() bool {
	return o.Rejection == nil
}

// Pipeline evaluates guards in order and stops at the first rejection
type Pipeline struct {
	guards []Guard
}

// NewPipeline builds a pipeline; order is evaluation order
func NewPipeline(guards ...Guard) *Pipeline {
	return &Pipeline{guards: guards}
}

// Evaluate runs the guards against req
func (p *Pipeline) Evaluate(ctx context.Context, req *Request) Outcome {
	out := Outcome{Headers: map[string]string{}}
	for _, g := range p.guards {
		d := g.Check(ctx, req)
		if d.Guard == "" {
			d.Guard = g.Name()
		}
		for k, v := range d.Headers {
			out.Headers[k] = v
		}
		switch d.Verdict {
		case Reject:
			out.Rejection = &d
			return out
		case Flag:
			out.Flags = append(out.Flags, d)
		}
	}
	return out
}

func allow() Decision {
	return Decision{Verdict: Allow}
}

// retryAfterSeconds rounds a wait up to whole seconds, minimum one
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
