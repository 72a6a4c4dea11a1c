package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Identity is the verified caller of a request. It is derived from the
// credential alone; tenant membership is resolved later.
type Identity struct {
	UserID string
	// Role is the role claimed by the credential. Tenant roles are
	// re-derived from the membership during tenant resolution.
	Role         rbac.Role
	TenantClaim  string
	IsSuperAdmin bool

	// Set on assumed-tenant escalation credentials only
	AssumedTenantID string
	EscalationID    string

	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsEscalated reports whether the identity carries an assumed tenant
func (i *Identity) IsEscalated() bool {
	return i.AssumedTenantID != ""
}

// Claims is the JWT payload
type Claims struct {
	jwt.RegisteredClaims
	Role            string `json:"role,omitempty"`
	TenantID        string `json:"tenant_id,omitempty"`
	SuperAdmin      bool   `json:"super_admin,omitempty"`
	AssumedTenantID string `json:"assumed_tenant_id,omitempty"`
	EscalationID    string `json:"escalation_id,omitempty"`
}

// Subject describes whom an access credential is issued to
type Subject struct {
	UserID     string
	Role       rbac.Role
	TenantID   string
	SuperAdmin bool
	// TTL overrides the configured access TTL when positive.
	TTL time.Duration
}

// Escalation is a time-boxed, justified grant for a super admin to act
// inside one tenant.
type Escalation struct {
	ID            string    `json:"id"`
	AdminUserID   string    `json:"admin_user_id"`
	TenantID      string    `json:"tenant_id"`
	Role          rbac.Role `json:"role"`
	Justification string    `json:"justification"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	RequestID     string    `json:"request_id,omitempty"`
	SourceIP      string    `json:"source_ip,omitempty"`
}
