package security

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// DefaultDeniedPrefixes are administrative, debug and CMS probe paths that
// the public surface never serves
var DefaultDeniedPrefixes = []string{
	"/_debug", "/debug", "/admin", "/swagger", "/api-docs", "/docs",
	"/health", "/metrics", "/status", "/info", "/actuator", "/management",
	"/.env", "/config", "/phpinfo", "/wp-admin", "/wp-login", "/phpmyadmin",
	"/adminer", "/database", "/db", "/backup", "/logs", "/log", "/tmp",
	"/temp", "/cache", "/uploads", "/files", "/assets/config",
	"/api/debug", "/api/admin", "/v1/debug", "/v1/admin", "/v1/config",
	"/v1/system", "/v1/internal",
}

type signature struct {
	name     string
	pattern  *regexp.Regexp
	severity Severity
}

var pathSignatures = []signature{
	{"path traversal", regexp.MustCompile(`\.\.`), SeverityHigh},
	{"hidden file", regexp.MustCompile(`/\.[^/]`), SeverityHigh},
	{"sensitive file", regexp.MustCompile(`\.(env|git|svn|htaccess|htpasswd|sql|bak|backup|old|orig|swp|log|ini|conf|cfg|key|pem|crt|p12|pfx)$`), SeverityHigh},
	{"system directory", regexp.MustCompile(`^/(etc|proc|sys|var|usr|bin|sbin|boot|root|windows|winnt)(/|$)`), SeverityHigh},
	{"cms probe", regexp.MustCompile(`(wp-admin|wp-login|wp-content|wp-includes|xmlrpc\.php|phpmyadmin|adminer|joomla|drupal)`), SeverityHigh},
	{"server script", regexp.MustCompile(`\.(php[0-9]?|asp|aspx|jsp|cgi|pl)$`), SeverityHigh},
}

var payloadSignatures = []signature{
	{"sql injection", regexp.MustCompile(`(?i)\bunion\b[\s\S]*\bselect\b`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)\bselect\b[\s\S]+\bfrom\b[\s\S]+\bwhere\b`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)\binsert\s+into\b`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)\bdelete\s+from\b`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)'\s*or\s+'?\w*'?\s*=\s*'?\w*`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`'\s*(--|#|/\*)`), SeverityCritical},
	{"sql injection", regexp.MustCompile(`(?i)\bexec(\s|\()+(xp_|sp_)`), SeverityCritical},
	{"xss", regexp.MustCompile(`(?i)<\s*script\b`), SeverityHigh},
	{"xss", regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`), SeverityHigh},
	{"xss", regexp.MustCompile(`(?i)javascript\s*:`), SeverityHigh},
	{"xss", regexp.MustCompile(`(?i)<[^>]*\bon[a-z]+\s*=`), SeverityHigh},
	{"path traversal", regexp.MustCompile(`\.\.[/\\]`), SeverityHigh},
	{"path traversal", regexp.MustCompile(`(?i)/etc/passwd|/proc/self/environ|[/\\]windows[/\\]system32`), SeverityHigh},
}

var scannerAgents = regexp.MustCompile(`(?i)(sqlmap|nikto|nmap|burp|owasp|zap|w3af|acunetix|nessus|openvas|masscan|gobuster|dirbuster|dirb)`)

// Body fields that carry credentials are excluded from signature scans
var unscannedFields = map[string]bool{
	"password":         true,
	"confirm_password": true,
	"current_password": true,
	"new_password":     true,
	"refresh_token":    true,
	"access_token":     true,
	"token":            true,
	"code":             true,
}

// RouteGuardConfig configures the deny list
type RouteGuardConfig struct {
	DeniedPrefixes []string
	// ExemptPrefixes bypass the deny list only; path signatures still apply
	ExemptPrefixes []string
}

// RouteGuard rejects probes of non-public paths and known attack signatures
type RouteGuard struct {
	denied []string
	exempt []string
}

// NewRouteGuard creates a RouteGuard; empty DeniedPrefixes uses the defaults
func NewRouteGuard(cfg RouteGuardConfig) *RouteGuard {
	denied := cfg.DeniedPrefixes
	if len(denied) == 0 {
		denied = DefaultDeniedPrefixes
	}
	g := &RouteGuard{}
	for _, p := range denied {
		g.denied = append(g.denied, strings.ToLower(strings.TrimRight(p, "/")))
	}
	for _, p := range cfg.ExemptPrefixes {
		g.exempt = append(g.exempt, strings.ToLower(strings.TrimRight(p, "/")))
	}
	return g
}

// Name implements Guard
func (g *RouteGuard) Name() string { return "route_guard" }

// Check implements Guard
func (g *RouteGuard) Check(ctx context.Context, req *Request) Decision {
	path := strings.ToLower(req.Path)
	raw := strings.ToLower(req.RawPath)

	if !g.isExempt(path) {
		for _, p := range g.denied {
			if matchesPrefix(path, p) {
				return forbidden(CodeForbiddenRoute, "denied path "+p, SeverityMedium)
			}
		}
	}
	for _, sig := range pathSignatures {
		if sig.pattern.MatchString(path) || (raw != "" && sig.pattern.MatchString(raw)) {
			return forbidden(CodeSuspiciousRequest, sig.name+" in path", sig.severity)
		}
	}

	if req.RawQuery != "" {
		if values, err := url.ParseQuery(req.RawQuery); err == nil {
			for key, vs := range values {
				if unscannedFields[strings.ToLower(key)] {
					continue
				}
				for _, v := range vs {
					if sig, ok := matchPayload(v); ok {
						return forbidden(CodeSuspiciousRequest, sig.name+" in query", sig.severity)
					}
				}
			}
		} else if sig, ok := matchPayload(req.RawQuery); ok {
			return forbidden(CodeSuspiciousRequest, sig.name+" in query", sig.severity)
		}
	}

	if len(req.Body) > 0 {
		if sig, ok := scanBody(req.ContentType, req.Body); ok {
			return forbidden(CodeSuspiciousRequest, sig.name+" in body", sig.severity)
		}
	}

	if ua := req.UserAgent; ua != "" && scannerAgents.MatchString(ua) {
		return Decision{Verdict: Flag, Reason: "scanner user agent", Severity: SeverityMedium}
	}

	return allow()
}

func (g *RouteGuard) isExempt(path string) bool {
	for _, p := range g.exempt {
		if matchesPrefix(path, p) {
			return true
		}
	}
	return false
}

// matchesPrefix matches p at a segment boundary, so /log does not cover /login
func matchesPrefix(path, p string) bool {
	if !strings.HasPrefix(path, p) {
		return false
	}
	if len(path) == len(p) {
		return true
	}
	switch path[len(p)] {
	case '/', '.':
		return true
	}
	return false
}

func matchPayload(s string) (signature, bool) {
	for _, sig := range payloadSignatures {
		if sig.pattern.MatchString(s) {
			return sig, true
		}
	}
	return signature{}, false
}

func scanBody(contentType string, body []byte) (signature, bool) {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err == nil {
			return scanJSON(doc)
		}
	}
	if strings.Contains(strings.ToLower(contentType), "x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			for key, vs := range values {
				if unscannedFields[strings.ToLower(key)] {
					continue
				}
				for _, v := range vs {
					if sig, ok := matchPayload(v); ok {
						return sig, true
					}
				}
			}
			return signature{}, false
		}
	}
	return matchPayload(string(body))
}

func scanJSON(v interface{}) (signature, bool) {
	switch t := v.(type) {
	case string:
		return matchPayload(t)
	case []interface{}:
		for _, item := range t {
			if sig, ok := scanJSON(item); ok {
				return sig, true
			}
		}
	case map[string]interface{}:
		for key, item := range t {
			if unscannedFields[strings.ToLower(key)] {
				continue
			}
			if sig, ok := scanJSON(item); ok {
				return sig, true
			}
		}
	}
	return signature{}, false
}

func forbidden(code, reason string, severity Severity) Decision {
	return Decision{
		Verdict:  Reject,
		Status:   http.StatusForbidden,
		Code:     code,
		Message:  "Acesso negado.",
		Reason:   reason,
		Severity: severity,
	}
}
