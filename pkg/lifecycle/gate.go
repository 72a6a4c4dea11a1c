package lifecycle

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

// Mode is the access level a tenant's lifecycle status allows
type Mode string

const (
	ModeFull        Mode = "full"
	ModeReadOnly    Mode = "read_only"
	ModeBillingOnly Mode = "billing_only"
	ModeBlocked     Mode = "blocked"
)

// DefaultBillingPrefixes are the routes past-due and canceled tenants can reach
var DefaultBillingPrefixes = []string{"/billing", "/api/billing", "/payments", "/api/payments"}

// Gate classifies requests by tenant status. It is pure: the same tenant,
// time and request always produce the same verdict.
type Gate struct {
	billingPrefixes []string
	supportPrefix   string
}

// Option configures a Gate
type Option func(*Gate)

// WithBillingPrefixes replaces the billing route prefixes
func WithBillingPrefixes(prefixes ...string) Option {
	return func(g *Gate) {
		g.billingPrefixes = normalizePrefixes(prefixes)
	}
}

// WithSupportPrefix lets suspended tenants issue GETs under prefix
func WithSupportPrefix(prefix string) Option {
	return func(g *Gate) {
		g.supportPrefix = normalizePrefix(prefix)
	}
}

// NewGate creates a status gate
func NewGate(opts ...Option) *Gate {
	g := &Gate{billingPrefixes: normalizePrefixes(DefaultBillingPrefixes)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode returns the access mode for the tenant at now. An expired trial is
// treated as past due.
func (g *Gate) Mode(tenant *tenants.Tenant, now time.Time) (Mode, error) {
	switch tenant.Status {
	case tenants.StatusActive:
		return ModeFull, nil
	case tenants.StatusTrial:
		if tenant.TrialExpired(now) {
			return ModeReadOnly, nil
		}
		return ModeFull, nil
	case tenants.StatusPastDue:
		return ModeReadOnly, nil
	case tenants.StatusCanceled:
		return ModeBillingOnly, nil
	case tenants.StatusSuspended:
		return ModeBlocked, nil
	default:
		return "", access.Internal(fmt.Sprintf("tenant %s has unknown status %q", tenant.ID, tenant.Status), nil)
	}
}

// Check returns the tenant's mode and an error when the request must be rejected.
func (g *Gate) Check(tenant *tenants.Tenant, now time.Time, method, path string) (Mode, error) {
	mode, err := g.Mode(tenant, now)
	if err != nil {
		return mode, err
	}

	switch mode {
	case ModeFull:
		return mode, nil

	case ModeReadOnly:
		if isRead(method) || g.IsBillingRoute(path) {
			return mode, nil
		}
		reason := ""
		if tenant.Status == tenants.StatusTrial {
			reason = access.ReasonTrialExpired
		}
		return mode, access.PaymentRequired(tenant.ID, reason)

	case ModeBillingOnly:
		if g.IsBillingRoute(path) {
			return mode, nil
		}
		return mode, access.TenantCanceled(tenant.ID)

	default:
		if g.supportPrefix != "" && method == http.MethodGet && hasPrefix(path, g.supportPrefix) {
			return mode, nil
		}
		return mode, access.TenantSuspended(tenant.ID)
	}
}

// IsBillingRoute reports whether path falls under a billing prefix
func (g *Gate) IsBillingRoute(path string) bool {
	for _, prefix := range g.billingPrefixes {
		if hasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// hasPrefix matches on path segment boundaries: /billing matches /billing
// and /billing/x but not /billingfoo.
func hasPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

func normalizePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if n := normalizePrefix(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
