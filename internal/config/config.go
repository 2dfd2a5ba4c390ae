package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Email drivers
const (
	EmailDriverSMTP    = "smtp"
	EmailDriverConsole = "console"
)

// Abuse store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Cookie   CookieConfig
	Email    EmailConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string
	Port               string
	TrustProxy         bool
	CORSAllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the optional Redis connection used for shared abuse counters
type RedisConfig struct {
	URL string
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	AccessSecret       string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthConfig holds registration and credential settings
type AuthConfig struct {
	BcryptCost int
	CodeLength int
	CodeTTL    time.Duration
	OpenSignup bool
}

// CookieConfig controls web channel token cookies
type CookieConfig struct {
	Secure bool
	Domain string
}

// EmailConfig holds verification code delivery settings
type EmailConfig struct {
	Driver     string
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	UseTLS     bool
	MaxRetries int
}

// SecurityConfig holds abuse defense settings
type SecurityConfig struct {
	IPAllowlist      []string
	DenyExemptPaths  []string
	Store            string
	MaxBodyScanBytes int64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env: getEnv("APP_ENV", EnvProduction),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getEnv("SERVER_PORT", "8080"),
			TrustProxy:         getBoolEnv("SERVER_TRUST_PROXY", false),
			CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "umx_auth"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		JWT: JWTConfig{
			AccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getDurationEnv("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			Issuer:             getEnv("JWT_ISSUER", "umx-auth"),
		},
		Auth: AuthConfig{
			BcryptCost: getIntEnv("AUTH_BCRYPT_COST", 12),
			CodeLength: getIntEnv("AUTH_CODE_LENGTH", 8),
			CodeTTL:    getDurationEnv("AUTH_CODE_TTL", 15*time.Minute),
			OpenSignup: getBoolEnv("AUTH_OPEN_SIGNUP", true),
		},
		Cookie: CookieConfig{
			Secure: getBoolEnv("COOKIE_SECURE", true),
			Domain: getEnv("COOKIE_DOMAIN", ""),
		},
		Email: EmailConfig{
			Driver:     getEnv("EMAIL_DRIVER", EmailDriverSMTP),
			Host:       getEnv("SMTP_HOST", "localhost"),
			Port:       getIntEnv("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", "no-reply@umx.local"),
			UseTLS:     getBoolEnv("SMTP_USE_TLS", false),
			MaxRetries: getIntEnv("SMTP_MAX_RETRIES", 3),
		},
		Security: SecurityConfig{
			IPAllowlist:      getListEnv("SECURITY_IP_ALLOWLIST", nil),
			DenyExemptPaths:  getListEnv("SECURITY_DENY_EXEMPT_PATHS", []string{"/health", "/metrics"}),
			Store:            getEnv("SECURITY_STORE", StoreMemory),
			MaxBodyScanBytes: int64(getIntEnv("SECURITY_MAX_BODY_SCAN_BYTES", 64*1024)),
		},
	}
}

// Validate checks settings that would make the service unsafe to start
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be at least 32 bytes"))
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be at least 32 bytes"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST must be between 10 and 31, got %d", c.Auth.BcryptCost))
	}
	if c.Auth.CodeLength < 6 || c.Auth.CodeLength > 16 {
		errs = append(errs, fmt.Errorf("AUTH_CODE_LENGTH must be between 6 and 16, got %d", c.Auth.CodeLength))
	}

	switch c.Email.Driver {
	case EmailDriverSMTP:
	case EmailDriverConsole:
		if !c.IsDevelopment() {
			errs = append(errs, errors.New("EMAIL_DRIVER=console is only allowed when APP_ENV=development"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_DRIVER %q", c.Email.Driver))
	}

	switch c.Security.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("SECURITY_STORE=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SECURITY_STORE %q", c.Security.Store))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs in a local development setup
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Bare integers are read as minutes, anything else as a Go duration string.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping blank items
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
