package auth

import "errors"

var (
	UserNotFoundErr      = errors.New("user not found")
	UserBlockedErr       = errors.New("user blocked")
	PasswordMismatchErr  = errors.New("password mismatch")
	TenantNotFoundErr    = errors.New("tenant not found")
	TenantDeactivatedErr = errors.New("tenant deactivated")
	RoleForbiddenErr     = errors.New("role not permitted")
	TenantMismatchErr    = errors.New("tenant mismatch")
	SessionNotFoundErr   = errors.New("session not found")
)
