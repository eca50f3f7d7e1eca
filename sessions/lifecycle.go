package sessions

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Coordinator drives tenant-wide session invalidation when an organization is
// deleted or deactivated. It is the only path, outside normal logout, by
// which sessions become blacklisted. Invalidations for the same tenant are
// serialized; different tenants proceed independently.
type Coordinator struct {
	store Store
	log   zerolog.Logger

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

func NewCoordinator(store Store, log zerolog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] store is required")
	}
	return &Coordinator{
		store:   store,
		log:     log,
		tenants: make(map[string]*sync.Mutex),
	}, nil
}

// InvalidateTenant revokes every active session of the tenant and returns the
// count. The store commits the deactivations and ledger entries in a single
// transaction, so a crash mid-operation leaves either all sessions
// invalidated or none; re-running against already-invalidated sessions is a
// no-op and returns 0.
func (c *Coordinator) InvalidateTenant(ctx context.Context, tenantID string, reason InvalidationReason) (int, error) {
	lock := c.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	count, err := c.store.InvalidateTenant(ctx, tenantID, reason)
	if err != nil {
		return 0, errors.Wrap(err, "[Coordinator.InvalidateTenant] store.InvalidateTenant")
	}

	c.log.Info().
		Str("tenant_id", tenantID).
		Str("reason", string(reason)).
		Int("sessions_invalidated", count).
		Msg("tenant sessions invalidated")

	return count, nil
}

// Preview returns how many sessions InvalidateTenant would revoke, without
// mutating anything. Used by the two-phase delete flow.
func (c *Coordinator) Preview(ctx context.Context, tenantID string) (int, error) {
	count, err := c.store.CountActiveByTenant(ctx, tenantID)
	if err != nil {
		return 0, errors.Wrap(err, "[Coordinator.Preview] store.CountActiveByTenant")
	}
	return count, nil
}

func (c *Coordinator) tenantLock(tenantID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		c.tenants[tenantID] = lock
	}
	return lock
}
