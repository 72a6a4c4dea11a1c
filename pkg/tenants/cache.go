package tenants

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// CachedStore wraps a Store with a read-through tenant cache.
// Users and memberships always go to the underlying store so role changes
// and deactivations apply on the next request.
type CachedStore struct {
	Store
	tenants *cache.ReadThrough[*Tenant]
	slugs   *cache.ReadThrough[string]
}

// NewCachedStore creates a cached store. cfg.Name defaults to "tenant".
func NewCachedStore(store Store, cfg cache.Config, metrics *observability.Metrics, logger *observability.Logger) *CachedStore {
	if cfg.Name == "" {
		cfg.Name = "tenant"
	}
	slugCfg := cfg
	slugCfg.Name = cfg.Name + "_slug"

	return &CachedStore{
		Store:   store,
		tenants: cache.New[*Tenant](cfg, metrics, logger),
		slugs:   cache.New[string](slugCfg, metrics, logger),
	}
}

// GetTenant returns a copy of the cached tenant
func (s *CachedStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.tenants.Get(ctx, id, s.Store.GetTenant)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// GetTenantBySlug resolves the slug to an id through its own cache
func (s *CachedStore) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	id, err := s.slugs.Get(ctx, slug, func(ctx context.Context, slug string) (string, error) {
		t, err := s.Store.GetTenantBySlug(ctx, slug)
		if err != nil {
			return "", err
		}
		return t.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTenant(ctx, id)
}

// Invalidate drops a tenant from the cache after it was changed
func (s *CachedStore) Invalidate(ctx context.Context, tenantID string) error {
	return s.tenants.Invalidate(ctx, tenantID)
}
