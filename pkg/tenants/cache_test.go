package tenants

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

type countingStore struct {
	*MemoryStore
	tenantReads     int32
	membershipReads int32
}

func (s *countingStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	atomic.AddInt32(&s.tenantReads, 1)
	return s.MemoryStore.GetTenant(ctx, id)
}

func (s *countingStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	atomic.AddInt32(&s.membershipReads, 1)
	return s.MemoryStore.GetMembership(ctx, tenantID, userID)
}

func seededStore() *countingStore {
	mem := NewMemoryStore()
	mem.PutTenant(&Tenant{ID: "t1", Name: "Grand Hall", Slug: "grand-hall", PlanID: "starter", Status: StatusActive})
	mem.PutMembership(&Membership{ID: "m1", TenantID: "t1", UserID: "u1", Role: rbac.RoleAdmin, Active: true})
	return &countingStore{MemoryStore: mem}
}

func TestCachedStore_TenantsAreCached(t *testing.T) {
	backing := seededStore()
	store := NewCachedStore(backing, cache.DefaultConfig("tenant"), nil, nil)
	ctx := context.Background()

	first, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	first.Status = StatusSuspended // callers get copies

	second, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, second.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&backing.tenantReads))

	bySlug, err := store.GetTenantBySlug(ctx, "grand-hall")
	require.NoError(t, err)
	assert.Equal(t, "t1", bySlug.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&backing.tenantReads))
}

func TestCachedStore_MembershipsAreNotCached(t *testing.T) {
	backing := seededStore()
	store := NewCachedStore(backing, cache.DefaultConfig("tenant"), nil, nil)
	ctx := context.Background()

	_, err := store.GetMembership(ctx, "t1", "u1")
	require.NoError(t, err)

	backing.PutMembership(&Membership{ID: "m1", TenantID: "t1", UserID: "u1", Role: rbac.RoleAdmin, Active: false})

	_, err = store.GetMembership(ctx, "t1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(2), atomic.LoadInt32(&backing.membershipReads))
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	backing := seededStore()
	store := NewCachedStore(backing, cache.DefaultConfig("tenant"), nil, nil)
	ctx := context.Background()

	_, err := store.GetTenant(ctx, "t2")
	assert.ErrorIs(t, err, ErrNotFound)

	backing.PutTenant(&Tenant{ID: "t2", Slug: "annex", Status: StatusActive})
	tenant, err := store.GetTenant(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "annex", tenant.Slug)
}

func TestCachedStore_Invalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := cache.DefaultConfig("tenant")
	cfg.Redis = client

	backing := seededStore()
	store := NewCachedStore(backing, cfg, nil, nil)
	ctx := context.Background()

	_, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mr.Exists("gatehouse:tenant:t1") }, time.Second, 5*time.Millisecond)

	backing.PutTenant(&Tenant{ID: "t1", Slug: "grand-hall", PlanID: "starter", Status: StatusPastDue})
	require.NoError(t, store.Invalidate(ctx, "t1"))

	tenant, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, tenant.Status)
}
