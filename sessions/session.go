// Package sessions tracks one session record per login plus the append-only
// invalidation ledger that backs the token blacklist. Session rows are never
// physically deleted; revocation supersedes them with a ledger entry so the
// audit trail survives.
package sessions

import "time"

// InvalidationReason records why a session was revoked before its natural
// expiry.
type InvalidationReason string

const (
	ReasonUserLogout        InvalidationReason = "user_logout"
	ReasonTenantDeleted     InvalidationReason = "tenant_deleted"
	ReasonTenantDeactivated InvalidationReason = "tenant_deactivated"
)

// Session is one authenticated login. Mutated only by creation and
// deactivation.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Token     string    `json:"-"` // the signed bearer token; never serialized
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
}

// Expired reports whether the session has passed its natural expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// InvalidationRecord is an append-only audit entry. The blacklist is the set
// of tokens present in this ledger.
type InvalidationRecord struct {
	SessionID     string             `json:"session_id"`
	UserID        string             `json:"user_id"`
	TenantID      string             `json:"tenant_id"`
	Token         string             `json:"-"`
	InvalidatedAt time.Time          `json:"invalidated_at"`
	Reason        InvalidationReason `json:"reason"`
}
