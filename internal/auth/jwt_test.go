package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/nettrac/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, "t3", model.RoleApprover)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Username != "t3" {
		t.Errorf("expected username 't3', got %q", claims.Username)
	}
	if claims.Role != string(model.RoleApprover) {
		t.Errorf("expected role 'approver', got %q", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestTokensHaveUniqueJTI(t *testing.T) {
	a, _ := GenerateToken("s", 1, "t2", model.RoleSubmitter)
	b, _ := GenerateToken("s", 1, "t2", model.RoleSubmitter)

	ca, _ := ValidateToken("s", a)
	cb, _ := ValidateToken("s", b)
	if ca.ID == cb.ID {
		t.Errorf("expected distinct JTIs, both %q", ca.ID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, "t3", model.RoleApprover)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	token, _ := GenerateToken("s", 1, "t2", model.RoleSubmitter)
	claims, err := ValidateToken("s", token)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Until(claims.ExpiresAt.Time) - TokenExpiry; d < -5*time.Second || d > 5*time.Second {
		t.Errorf("expiry off by %v", d)
	}
	if claims.Issuer != Issuer {
		t.Errorf("expected issuer %q, got %q", Issuer, claims.Issuer)
	}
}

// sign builds a token from arbitrary claims for the rejection cases.
func sign(t *testing.T, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestValidateTokenRejects(t *testing.T) {
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	cases := map[string]string{
		"expired": sign(t, jwt.SigningMethodHS256, Claims{Username: "t2", RegisteredClaims: jwt.RegisteredClaims{
			ID: "a", Issuer: Issuer, ExpiresAt: past,
		}}),
		"no expiry": sign(t, jwt.SigningMethodHS256, Claims{Username: "t2", RegisteredClaims: jwt.RegisteredClaims{
			ID: "a", Issuer: Issuer,
		}}),
		"foreign issuer": sign(t, jwt.SigningMethodHS256, Claims{Username: "t2", RegisteredClaims: jwt.RegisteredClaims{
			ID: "a", Issuer: "other", ExpiresAt: future,
		}}),
		"no jti": sign(t, jwt.SigningMethodHS256, Claims{Username: "t2", RegisteredClaims: jwt.RegisteredClaims{
			Issuer: Issuer, ExpiresAt: future,
		}}),
		"hs512": sign(t, jwt.SigningMethodHS512, Claims{Username: "t2", RegisteredClaims: jwt.RegisteredClaims{
			ID: "a", Issuer: Issuer, ExpiresAt: future,
		}}),
	}
	for name, token := range cases {
		if _, err := ValidateToken("s", token); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
