package tenants

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant
	users       map[string]*User
	memberships []*Membership
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*Tenant),
		users:   make(map[string]*User),
	}
}

// PutTenant inserts or replaces a tenant
func (s *MemoryStore) PutTenant(t *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t.Clone()
}

// PutUser inserts or replaces a user
func (s *MemoryStore) PutUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[u.ID] = &c
}

// PutMembership inserts or replaces the membership for (tenant, user)
func (s *MemoryStore) PutMembership(m *Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *m
	for i, existing := range s.memberships {
		if existing.TenantID == m.TenantID && existing.UserID == m.UserID {
			s.memberships[i] = &c
			return
		}
	}
	s.memberships = append(s.memberships, &c)
}

func (s *MemoryStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Slug, slug) {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) ListActiveMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Membership
	for _, m := range s.memberships {
		if m.UserID == userID && m.Active {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.TenantID == tenantID && m.UserID == userID && m.Active {
			c := *m
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tenants))
	for id, t := range s.tenants {
		if t.Status != StatusCanceled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) UpdateCounters(ctx context.Context, tenantID string, counters Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	t.Counters = counters
	return nil
}
