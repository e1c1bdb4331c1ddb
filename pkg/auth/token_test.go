package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "storefront",
		ExpirationMinutes: 30,
	}
}

func mustTokens(t *testing.T, cfg config.JWTConfig) *Tokens {
	t.Helper()
	tokens, err := NewTokens(cfg)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens
}

func TestMintAndParse(t *testing.T) {
	tokens := mustTokens(t, testJWTConfig())
	now := time.Now().UTC()
	customerID := uuid.New()

	token, err := tokens.Mint(now, AccessTokenPayload{
		CustomerID: &customerID,
		Email:      " shopper@example.com ",
		Role:       enums.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.CustomerID == nil || *claims.CustomerID != customerID {
		t.Fatalf("customer id not preserved")
	}
	if claims.Email != "shopper@example.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
	if claims.Role != enums.RoleCustomer || claims.Issuer != "storefront" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestNewTokensRequiresSecretAndIssuer(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Secret = ""
	if _, err := NewTokens(cfg); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	cfg = testJWTConfig()
	cfg.Issuer = ""
	if _, err := NewTokens(cfg); err == nil {
		t.Fatal("expected missing issuer to fail")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := mustTokens(t, cfg).Mint(time.Now(), AccessTokenPayload{Email: "a@example.com", Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	cfg.Issuer = "someone-else"
	if _, err := mustTokens(t, cfg).Parse(token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	tokens := mustTokens(t, testJWTConfig())
	token, err := tokens.Mint(time.Now().Add(-2*time.Hour), AccessTokenPayload{Email: "a@example.com", Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := tokens.Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseHonoursLeeway(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	cfg.Leeway = 2 * time.Minute
	tokens := mustTokens(t, cfg)

	token, err := tokens.Mint(time.Now().Add(-90*time.Second), AccessTokenPayload{Email: "a@example.com", Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := tokens.Parse(token); err != nil {
		t.Fatalf("expected token inside leeway to parse, got %v", err)
	}
}

func TestParseChecksAudience(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Audience = "storefront-api"
	token, err := mustTokens(t, cfg).Mint(time.Now(), AccessTokenPayload{Email: "a@example.com", Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	cfg.Audience = "back-office"
	if _, err := mustTokens(t, cfg).Parse(token); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestParseRejectsTokenWithoutExpiry(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		Email:            "a@example.com",
		Role:             enums.RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mustTokens(t, cfg).Parse(signed); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestParseRejectsMissingEmail(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		Role: enums.RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = mustTokens(t, cfg).Parse(signed)
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected missing email error, got %v", err)
	}
}

func TestParseRejectsOtherSigningMethod(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		Email: "a@example.com",
		Role:  enums.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mustTokens(t, cfg).Parse(signed); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestMintValidatesInput(t *testing.T) {
	tokens := mustTokens(t, testJWTConfig())
	if _, err := tokens.Mint(time.Now(), AccessTokenPayload{Role: enums.RoleCustomer}); err == nil {
		t.Fatal("expected missing email to fail")
	}
	if _, err := tokens.Mint(time.Now(), AccessTokenPayload{Email: "a@b.c", Role: "owner"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}

	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 0
	if _, err := mustTokens(t, cfg).Mint(time.Now(), AccessTokenPayload{Email: "a@b.c", Role: enums.RoleCustomer}); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
}
