package tenants

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("tenant not found")

type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, tenantID string) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	SetActive(ctx context.Context, tenantID string, active bool) error
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}
