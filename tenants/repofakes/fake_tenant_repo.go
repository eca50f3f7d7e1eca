package tenantrepofakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/attendly/go-attendance-server/tenants"
	"github.com/google/uuid"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	lock    sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
	}
}

func (tr *FakeTenantRepo) Upsert(_ context.Context, tenant *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now()
	}
	cp := *tenant
	tr.tenants[tenant.ID] = &cp
	return nil
}

func (tr *FakeTenantRepo) Delete(_ context.Context, tenantID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	delete(tr.tenants, tenantID)
	return nil
}

func (tr *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (tr *FakeTenantRepo) SetActive(_ context.Context, tenantID string, active bool) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return tenants.ErrNotFound
	}
	t.IsActive = active
	return nil
}

func (tr *FakeTenantRepo) List(_ context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	all := make([]*tenants.Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		cp := *t
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
