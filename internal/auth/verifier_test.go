package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject, issuer string, expires time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func requestWithToken(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier("secret", "marketsync")
	token := signToken(t, "secret", "tenant-42", "marketsync", time.Now().Add(time.Hour))

	tenant, err := v.Verify(requestWithToken(token))
	require.NoError(t, err)
	assert.Equal(t, "tenant-42", tenant)
}

func TestVerifyRejections(t *testing.T) {
	v := NewJWTVerifier("secret", "marketsync")

	tests := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"garbage token", "not-a-jwt"},
		{"wrong secret", signToken(t, "other", "tenant-42", "marketsync", time.Now().Add(time.Hour))},
		{"expired", signToken(t, "secret", "tenant-42", "marketsync", time.Now().Add(-time.Hour))},
		{"wrong issuer", signToken(t, "secret", "tenant-42", "someone-else", time.Now().Add(time.Hour))},
		{"empty subject", signToken(t, "secret", "", "marketsync", time.Now().Add(time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(requestWithToken(tt.token))
			require.Error(t, err)
			assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(apperrors.GetCode(err)))
		})
	}
}

func TestVerifyNonBearerHeader(t *testing.T) {
	v := NewJWTVerifier("secret", "")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err := v.Verify(r)
	require.Error(t, err)
}

func TestVerifyWithoutIssuerCheck(t *testing.T) {
	v := NewJWTVerifier("secret", "")
	token := signToken(t, "secret", "tenant-1", "anything", time.Now().Add(time.Hour))

	tenant, err := v.Verify(requestWithToken(token))
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant)
}

func TestInsecureVerifier(t *testing.T) {
	tenant, err := InsecureVerifier{}.Verify(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "default", tenant)

	tenant, err = InsecureVerifier{Tenant: "dev"}.Verify(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "dev", tenant)
}
