package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pgregory.net/rapid"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
)

var tokenEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	testAccessSecret  = "test-access-secret-key-32-chars!"
	testRefreshSecret = "test-refresh-secret-key-32-char!"
)

func newTestTokenService(clk clock.Clock) *TokenService {
	return NewTokenService(TokenServiceConfig{
		AccessSecret:       testAccessSecret,
		RefreshSecret:      testRefreshSecret,
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "test-issuer",
		Clock:              clk,
	})
}

func drawSubject(t *rapid.T) TokenSubject {
	uuidPattern := `[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`
	return TokenSubject{
		UserID:        rapid.StringMatching(uuidPattern).Draw(t, "userID"),
		Email:         rapid.StringMatching(`[a-z]{5,10}@[a-z]{5,10}\.[a-z]{2,3}`).Draw(t, "email"),
		TenantID:      rapid.StringMatching(uuidPattern).Draw(t, "tenantID"),
		IsTenantAdmin: rapid.Bool().Draw(t, "admin"),
		SessionID:     rapid.StringMatching(uuidPattern).Draw(t, "sessionID"),
	}
}

// Property: Token Expiration
// *For any* generated pair, access exp is iat+15m and refresh exp is iat+7d,
// measured on the service clock.
func TestPropertyTokenExpiration(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clk := clock.NewMock(tokenEpoch)
		svc := newTestTokenService(clk)

		pair, err := svc.GenerateTokenPair(drawSubject(t))
		if err != nil {
			t.Fatalf("failed to generate token pair: %v", err)
		}

		access, err := svc.ValidateAccessToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("failed to validate access token: %v", err)
		}
		if got := access.ExpiresAt.Time; !got.Equal(tokenEpoch.Add(15 * time.Minute)) {
			t.Errorf("access expiry: expected %v, got %v", tokenEpoch.Add(15*time.Minute), got)
		}

		refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
		if err != nil {
			t.Fatalf("failed to validate refresh token: %v", err)
		}
		if got := refresh.ExpiresAt.Time; !got.Equal(tokenEpoch.Add(7 * 24 * time.Hour)) {
			t.Errorf("refresh expiry: expected %v, got %v", tokenEpoch.Add(7*24*time.Hour), got)
		}
		if pair.ExpiresIn != 900 || pair.RefreshExpiresIn != 604800 {
			t.Errorf("unexpected expires_in values: %d/%d", pair.ExpiresIn, pair.RefreshExpiresIn)
		}
	})
}

// Property: JWT Structure
// *For any* generated pair, both tokens are HS256, share one jti and carry
// the subject and session; only the access token carries identity claims.
func TestPropertyJWTStructure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sub := drawSubject(t)
		svc := newTestTokenService(clock.NewMock(tokenEpoch))

		pair, err := svc.GenerateTokenPair(sub)
		if err != nil {
			t.Fatalf("failed to generate token pair: %v", err)
		}

		parser := jwt.NewParser()
		accessTok, _, err := parser.ParseUnverified(pair.AccessToken, &Claims{})
		if err != nil {
			t.Fatalf("failed to parse access token: %v", err)
		}
		refreshTok, _, err := parser.ParseUnverified(pair.RefreshToken, &Claims{})
		if err != nil {
			t.Fatalf("failed to parse refresh token: %v", err)
		}

		if accessTok.Method.Alg() != "HS256" || refreshTok.Method.Alg() != "HS256" {
			t.Errorf("expected HS256, got %s/%s", accessTok.Method.Alg(), refreshTok.Method.Alg())
		}

		ac := accessTok.Claims.(*Claims)
		rc := refreshTok.Claims.(*Claims)

		if ac.ID == "" || ac.ID != rc.ID || ac.ID != pair.JTI {
			t.Errorf("jti mismatch: access=%q refresh=%q pair=%q", ac.ID, rc.ID, pair.JTI)
		}
		if ac.UserID() != sub.UserID || rc.Subject != sub.UserID {
			t.Errorf("subject mismatch")
		}
		if ac.SessionID != sub.SessionID || rc.SessionID != sub.SessionID {
			t.Errorf("session mismatch")
		}
		if ac.Email != sub.Email || ac.TenantID != sub.TenantID || ac.IsTenantAdmin != sub.IsTenantAdmin {
			t.Errorf("access identity claims mismatch: %+v", ac)
		}
		if rc.Email != "" || rc.TenantID != "" {
			t.Errorf("refresh token should not carry identity claims: %+v", rc)
		}
		if ac.Type != AccessTokenType || rc.Type != RefreshTokenType {
			t.Errorf("type claims: %s/%s", ac.Type, rc.Type)
		}
		if len(strings.Split(pair.AccessToken, ".")) != 3 {
			t.Error("access token should have 3 parts")
		}
	})
}

func TestValidate_RejectsWithSingleError(t *testing.T) {
	clk := clock.NewMock(tokenEpoch)
	svc := newTestTokenService(clk)
	pair, err := svc.GenerateTokenPair(TokenSubject{UserID: "u-1", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	other := NewTokenService(TokenServiceConfig{
		AccessSecret:       "another-access-secret-of-32-bytes",
		RefreshSecret:      testRefreshSecret,
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "test-issuer",
		Clock:              clk,
	})
	wrongIssuer := NewTokenService(TokenServiceConfig{
		AccessSecret:       testAccessSecret,
		RefreshSecret:      testRefreshSecret,
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "someone-else",
		Clock:              clk,
	})

	tests := []struct {
		name  string
		check func() error
	}{
		{"garbage", func() error { _, err := svc.ValidateAccessToken("not.a.jwt"); return err }},
		{"refresh as access", func() error { _, err := svc.ValidateAccessToken(pair.RefreshToken); return err }},
		{"access as refresh", func() error { _, err := svc.ValidateRefreshToken(pair.AccessToken); return err }},
		{"wrong secret", func() error { _, err := other.ValidateAccessToken(pair.AccessToken); return err }},
		{"wrong issuer", func() error { _, err := wrongIssuer.ValidateAccessToken(pair.AccessToken); return err }},
		{"alg none", func() error {
			tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
				Type:             AccessTokenType,
				RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(tokenEpoch.Add(time.Hour))},
			})
			s, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
			_, err := svc.ValidateAccessToken(s)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestValidate_ExpiryFollowsClock(t *testing.T) {
	clk := clock.NewMock(tokenEpoch)
	svc := newTestTokenService(clk)
	pair, err := svc.GenerateTokenPair(TokenSubject{UserID: "u-1", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	clk.Advance(14 * time.Minute)
	if _, err := svc.ValidateAccessToken(pair.AccessToken); err != nil {
		t.Fatalf("access token should still be valid: %v", err)
	}

	clk.Advance(2 * time.Minute)
	if _, err := svc.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired access token to be rejected, got %v", err)
	}
	if _, err := svc.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Errorf("refresh token should outlive the access token: %v", err)
	}
}

func TestGenerateTokenPair_FreshJTIPerPair(t *testing.T) {
	svc := newTestTokenService(clock.NewMock(tokenEpoch))
	sub := TokenSubject{UserID: "u-1", SessionID: "s-1"}

	first, err := svc.GenerateTokenPair(sub)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.GenerateTokenPair(sub)
	if err != nil {
		t.Fatal(err)
	}
	if first.JTI == second.JTI {
		t.Error("each pair should get its own jti")
	}
}
