package tenants

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Status is a tenant's lifecycle/billing status
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusPastDue   Status = "past_due"
	StatusCanceled  Status = "canceled"
	StatusSuspended Status = "suspended"
)

// ParseStatus normalizes a stored or provider status. "cancelled" and Stripe's
// "trialing" are accepted and mapped to their canonical spellings.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return StatusActive, nil
	case "trial", "trialing":
		return StatusTrial, nil
	case "past_due":
		return StatusPastDue, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	case "suspended":
		return StatusSuspended, nil
	default:
		return "", fmt.Errorf("unknown tenant status %q", s)
	}
}

// Counters are cached usage figures for display. They are never used to gate.
type Counters struct {
	Users           int64     `json:"users"`
	Venues          int64     `json:"venues"`
	MonthlyBookings int64     `json:"monthly_bookings"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Tenant is an organization subscribed to a plan
type Tenant struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	PlanID      string     `json:"plan_id,omitempty"`
	Status      Status     `json:"status"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	Counters    Counters   `json:"counters"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TrialExpired reports whether a trial tenant's trial ended before now.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.Status == StatusTrial && t.TrialEndsAt != nil && t.TrialEndsAt.Before(now)
}

// Clone returns a copy that shares no pointers with t.
func (t *Tenant) Clone() *Tenant {
	c := *t
	if t.TrialEndsAt != nil {
		ends := *t.TrialEndsAt
		c.TrialEndsAt = &ends
	}
	return &c
}

// User is a platform user
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Membership joins a user to a tenant with a role
type Membership struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id"`
	Role      rbac.Role       `json:"role"`
	StaffType rbac.StaffType  `json:"staff_type,omitempty"`
	VenueIDs  []string        `json:"venue_ids,omitempty"`
	Overrides map[string]bool `json:"overrides,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
