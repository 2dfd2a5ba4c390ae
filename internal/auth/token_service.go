package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
)

// ErrInvalidToken is returned for every verification failure. The cause is
// never exposed to the caller.
var ErrInvalidToken = errors.New("invalid token")

// TokenType represents the type of JWT token
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
)

// Claims represents the JWT claims structure.
// The rotation id lives in the registered jti claim.
type Claims struct {
	Email         string    `json:"email,omitempty"`
	TenantID      string    `json:"tenant_id,omitempty"`
	IsTenantAdmin bool      `json:"is_tenant_admin,omitempty"`
	SessionID     string    `json:"session_id"`
	Type          TokenType `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the user uuid from the Subject claim
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenSubject is the identity a token pair is issued for
type TokenSubject struct {
	UserID        string
	Email         string
	TenantID      string
	IsTenantAdmin bool
	SessionID     string
}

// TokenService handles JWT token generation and validation
type TokenService struct {
	accessSecret       string
	refreshSecret      string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	issuer             string
	clock              clock.Clock
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	AccessSecret       string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Clock              clock.Clock
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &TokenService{
		accessSecret:       cfg.AccessSecret,
		refreshSecret:      cfg.RefreshSecret,
		accessTokenExpiry:  cfg.AccessTokenExpiry,
		refreshTokenExpiry: cfg.RefreshTokenExpiry,
		issuer:             cfg.Issuer,
		clock:              clk,
	}
}

// TokenPair represents a pair of access and refresh tokens sharing one jti
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	JTI              string
	SessionID        string
	ExpiresIn        int64 // Access token expiry in seconds
	RefreshExpiresIn int64
}

// GenerateTokenPair mints a fresh rotation id and signs both tokens with it
func (s *TokenService) GenerateTokenPair(sub TokenSubject) (*TokenPair, error) {
	now := s.clock.Now()
	jti := uuid.New().String()

	access := Claims{
		Email:            sub.Email,
		TenantID:         sub.TenantID,
		IsTenantAdmin:    sub.IsTenantAdmin,
		SessionID:        sub.SessionID,
		Type:             AccessTokenType,
		RegisteredClaims: s.registered(sub.UserID, jti, now, s.accessTokenExpiry),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(s.accessSecret))
	if err != nil {
		return nil, err
	}

	refresh := Claims{
		SessionID:        sub.SessionID,
		Type:             RefreshTokenType,
		RegisteredClaims: s.registered(sub.UserID, jti, now, s.refreshTokenExpiry),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(s.refreshSecret))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		JTI:              jti,
		SessionID:        sub.SessionID,
		ExpiresIn:        int64(s.accessTokenExpiry.Seconds()),
		RefreshExpiresIn: int64(s.refreshTokenExpiry.Seconds()),
	}, nil
}

func (s *TokenService) registered(subject, jti string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}
}

// ValidateAccessToken validates an access token and returns the claims
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, s.accessSecret, AccessTokenType)
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (s *TokenService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, s.refreshSecret, RefreshTokenType)
}

// validateToken checks signature, expiry, issuer and type; all failures collapse to ErrInvalidToken
func (s *TokenService) validateToken(tokenString, secret string, expectedType TokenType) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expectedType || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetAccessTokenExpiry returns the access token expiry duration
func (s *TokenService) GetAccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

// GetRefreshTokenExpiry returns the refresh token expiry duration
func (s *TokenService) GetRefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}
