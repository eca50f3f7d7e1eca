// Package token issues and validates the signed bearer tokens that double as
// session identifiers. A token is valid only while its signature verifies, it
// has not expired, its tenant is active, and it does not appear in the
// invalidation ledger.
package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrSessionRevoked    = errors.New("session revoked")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrTenantDeactivated = errors.New("tenant deactivated")
)

// Claims is the payload carried by every issued token. The jti claim is the
// session ID, which ties the token back to its user_sessions row.
type Claims struct {
	TenantID string `json:"tenant"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}
