// Package auth verifies the tenant identity attached to API requests.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
)

// Verifier extracts and validates the tenant identity from a request.
type Verifier interface {
	Verify(r *http.Request) (string, error)
}

// JWTVerifier validates HS256 bearer tokens. The subject claim carries the
// tenant identifier.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for the given shared secret. An empty
// issuer disables the issuer check.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Verify parses the Authorization header and returns the tenant identifier.
func (v *JWTVerifier) Verify(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.NewSyncError(apperrors.ErrCodeUnauthorized, "missing authorization header", nil)
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", apperrors.NewSyncError(apperrors.ErrCodeUnauthorized, "authorization header is not a bearer token", nil)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", apperrors.NewSyncError(apperrors.ErrCodeUnauthorized, "invalid token", err)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return "", apperrors.NewSyncError(apperrors.ErrCodeUnauthorized, "unexpected token issuer", nil)
	}
	if claims.Subject == "" {
		return "", apperrors.NewSyncError(apperrors.ErrCodeInvalidTenantID, "token carries no tenant", nil)
	}
	return claims.Subject, nil
}

// InsecureVerifier accepts every request under a fixed tenant. Intended for
// local development only.
type InsecureVerifier struct {
	Tenant string
}

func (v InsecureVerifier) Verify(r *http.Request) (string, error) {
	if v.Tenant == "" {
		return "default", nil
	}
	return v.Tenant, nil
}
