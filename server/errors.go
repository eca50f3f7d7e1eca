package server

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/attendance"
	"github.com/attendly/go-attendance-server/auth"
	"github.com/attendly/go-attendance-server/geo"
	"github.com/attendly/go-attendance-server/tenants"
	"github.com/attendly/go-attendance-server/token"
)

type errorMapping struct {
	status  int
	code    string
	message string
}

var errorMappings = []struct {
	err error
	errorMapping
}{
	{token.ErrTokenExpired, errorMapping{http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired, log in again"}},
	{token.ErrTokenInvalid, errorMapping{http.StatusUnauthorized, "TOKEN_INVALID", "token could not be verified"}},
	{token.ErrSessionRevoked, errorMapping{http.StatusUnauthorized, "SESSION_REVOKED", "session has been revoked"}},
	{token.ErrTenantNotFound, errorMapping{http.StatusUnauthorized, "TENANT_NOT_FOUND", "organization no longer exists"}},
	{token.ErrTenantDeactivated, errorMapping{http.StatusUnauthorized, "TENANT_DEACTIVATED", "organization is deactivated"}},
	{auth.UserNotFoundErr, errorMapping{http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"}},
	{auth.PasswordMismatchErr, errorMapping{http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"}},
	{auth.UserBlockedErr, errorMapping{http.StatusForbidden, "USER_BLOCKED", "account is deactivated"}},
	{auth.TenantNotFoundErr, errorMapping{http.StatusUnauthorized, "TENANT_NOT_FOUND", "organization no longer exists"}},
	{auth.TenantDeactivatedErr, errorMapping{http.StatusForbidden, "TENANT_DEACTIVATED", "organization is deactivated"}},
	{auth.RoleForbiddenErr, errorMapping{http.StatusForbidden, "UNAUTHORIZED_ROLE", "role not permitted for this operation"}},
	{auth.TenantMismatchErr, errorMapping{http.StatusForbidden, "TENANT_MISMATCH", "resource belongs to another organization"}},
	{auth.SessionNotFoundErr, errorMapping{http.StatusNotFound, "SESSION_NOT_FOUND", "session not found"}},
	{geo.ErrInvalidCoordinate, errorMapping{http.StatusBadRequest, "INVALID_COORDINATE", "coordinates out of range"}},
	{attendance.ErrInvalidWindow, errorMapping{http.StatusBadRequest, "VALIDATION_ERROR", "period start must precede end"}},
	{attendance.ErrInvalidRadius, errorMapping{http.StatusBadRequest, "VALIDATION_ERROR", "geofence radius out of range"}},
	{attendance.ErrPeriodNotActive, errorMapping{http.StatusBadRequest, "SESSION_ENDED", "attendance window is closed"}},
	{attendance.ErrPeriodNotFound, errorMapping{http.StatusNotFound, "PERIOD_NOT_FOUND", "attendance period not found"}},
	{attendance.ErrRecordNotFound, errorMapping{http.StatusNotFound, "RECORD_NOT_FOUND", "attendance record not found"}},
	{tenants.ErrNotFound, errorMapping{http.StatusNotFound, "TENANT_NOT_FOUND", "organization not found"}},
}

// respondError translates a service error into the wire envelope. Store
// timeouts tell the caller to resubmit; the ledger upsert makes that safe.
func respondError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.message)
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "STORE_TIMEOUT", "storage timed out, resubmit the request")
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}
