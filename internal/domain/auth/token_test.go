package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestInspectJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})

	info, err := Inspect(raw)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if info.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %q", info.Subject)
	}
	if !info.ExpiresAt.Equal(exp) {
		t.Errorf("expected expiry %v, got %v", exp, info.ExpiresAt)
	}
	if info.Expired(time.Now()) {
		t.Error("token should not be expired")
	}
	if !info.Expired(exp.Add(time.Minute)) {
		t.Error("token should be expired after exp")
	}
}

func TestInspectOpaqueToken(t *testing.T) {
	info, err := Inspect("not-a-jwt-token")
	if err != nil {
		t.Fatalf("opaque token should not fail: %v", err)
	}
	if info.Raw != "not-a-jwt-token" {
		t.Errorf("raw token lost: %q", info.Raw)
	}
	if !info.ExpiresAt.IsZero() {
		t.Error("opaque token should have no expiry")
	}
	if info.Expired(time.Now()) {
		t.Error("opaque token never expires")
	}
}

func TestInspectEmptyToken(t *testing.T) {
	if _, err := Inspect(""); err != ErrTokenEmpty {
		t.Fatalf("expected ErrTokenEmpty, got %v", err)
	}
}

func TestExpiresSoon(t *testing.T) {
	now := time.Now()
	info := TokenInfo{ExpiresAt: now.Add(30 * time.Minute)}

	if !info.ExpiresSoon(now, time.Hour) {
		t.Error("expected token to expire within the hour")
	}
	if info.ExpiresSoon(now, 10*time.Minute) {
		t.Error("token should not expire within ten minutes")
	}
}
