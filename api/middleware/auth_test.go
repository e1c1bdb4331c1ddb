package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "storefront-test", ExpirationMinutes: 15}

func testTokens(t *testing.T, cfg config.JWTConfig) *pkgAuth.Tokens {
	t.Helper()
	tokens, err := pkgAuth.NewTokens(cfg)
	require.NoError(t, err)
	return tokens
}

func mint(t *testing.T, email string, role enums.Role, customerID *uuid.UUID) string {
	t.Helper()
	token, err := testTokens(t, testJWT).Mint(time.Now(), pkgAuth.AccessTokenPayload{
		CustomerID: customerID,
		Email:      email,
		Role:       role,
	})
	require.NoError(t, err)
	return token
}

func TestAuthSeedsIdentity(t *testing.T) {
	customerID := uuid.New()
	var gotEmail, gotRole string
	var gotCustomer *uuid.UUID
	handler := Auth(testTokens(t, testJWT), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEmail = EmailFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotCustomer = CustomerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, "owner@example.com", enums.RoleCustomer, &customerID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner@example.com", gotEmail)
	assert.Equal(t, string(enums.RoleCustomer), gotRole)
	require.NotNil(t, gotCustomer)
	assert.Equal(t, customerID, *gotCustomer)
}

func TestAuthRejectsMissingAndForeignTokens(t *testing.T) {
	handler := Auth(testTokens(t, testJWT), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := testJWT
	other.Secret = "another-secret"
	token, err := testTokens(t, other).Mint(time.Now(), pkgAuth.AccessTokenPayload{Email: "a@b.co", Role: enums.RoleAdmin})
	require.NoError(t, err)

	for _, header := range []string{"Bearer " + token, "Basic " + token, "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestRequireRole(t *testing.T) {
	chain := func(token string) int {
		handler := Auth(testTokens(t, testJWT), nil)(RequireRole(nil, enums.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))
		req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, chain(mint(t, "shopper@example.com", enums.RoleCustomer, nil)))
	assert.Equal(t, http.StatusNoContent, chain(mint(t, "ops@example.com", enums.RoleAdmin, nil)))
}
