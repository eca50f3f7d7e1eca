// Package tenants models the isolated organizations whose users, periods and
// attendance records are mutually invisible.
package tenants

import "time"

// Tenant represents an organization. Deactivating or deleting a tenant
// revokes every session belonging to it; token validation re-checks tenant
// state on every request rather than caching it.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
