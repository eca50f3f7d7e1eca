package sessions

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("session not found")
)

// Store persists sessions and their invalidation ledger. Implementations must
// make Invalidate and InvalidateTenant atomic: a session is deactivated and
// its ledger entry appended in one operation, and re-running either against
// already-invalidated sessions is a no-op.
type Store interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	CountActiveByTenant(ctx context.Context, tenantID string) (int, error)

	// Invalidate deactivates a single session and appends its ledger entry.
	Invalidate(ctx context.Context, sessionID string, reason InvalidationReason) error

	// InvalidateTenant deactivates every active session of the tenant and
	// appends one ledger entry per session, transactionally. Returns the
	// number of sessions invalidated.
	InvalidateTenant(ctx context.Context, tenantID string, reason InvalidationReason) (int, error)
}

// Ledger is the read side of the invalidation trail. FindByToken is the
// blacklist lookup performed on every authenticated request.
type Ledger interface {
	FindByToken(ctx context.Context, token string) (*InvalidationRecord, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*InvalidationRecord, error)
}
