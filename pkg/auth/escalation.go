package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

const (
	// DefaultEscalationTTL is used when no TTL is requested
	DefaultEscalationTTL = 30 * time.Minute
	// MinJustificationLength is the minimum non-blank justification length
	MinJustificationLength = 10
)

// ErrInvalidJustification is returned when an escalation lacks a usable justification
var ErrInvalidJustification = fmt.Errorf("justification must be at least %d characters", MinJustificationLength)

// ErrEscalationNotFound is returned when revoking an unknown escalation
var ErrEscalationNotFound = errors.New("escalation not found")

// EscalationRecorder persists escalations to an append-only audit trail
type EscalationRecorder interface {
	RecordEscalation(ctx context.Context, esc *Escalation) error
	GetEscalation(ctx context.Context, id string) (*Escalation, error)
}

// RevocationList stores revoked escalations until they would have expired
type RevocationList interface {
	Revocations
	Revoke(ctx context.Context, escalationID string, until time.Time) error
}

// TenantLookup loads tenants by id
type TenantLookup interface {
	GetTenant(ctx context.Context, id string) (*tenants.Tenant, error)
}

// AssumeRequest asks for an assumed-tenant escalation
type AssumeRequest struct {
	TenantID      string
	Justification string
	TTL           time.Duration
	RequestID     string
	SourceIP      string
}

// Escalator issues and revokes assumed-tenant escalations for super admins
type Escalator struct {
	tokens      *TokenManager
	tenants     TenantLookup
	recorder    EscalationRecorder
	revocations RevocationList
	metrics     *observability.Metrics
	otel        *observability.OTelMetrics
	logger      *observability.Logger
}

// EscalatorOption configures an Escalator
type EscalatorOption func(*Escalator)

// WithRevocationList enables revocation
func WithRevocationList(list RevocationList) EscalatorOption {
	return func(e *Escalator) { e.revocations = list }
}

// WithEscalationMetrics records issued and revoked escalations
func WithEscalationMetrics(metrics *observability.Metrics, otel *observability.OTelMetrics) EscalatorOption {
	return func(e *Escalator) {
		e.metrics = metrics
		e.otel = otel
	}
}

// WithEscalationLogger sets the logger
func WithEscalationLogger(logger *observability.Logger) EscalatorOption {
	return func(e *Escalator) { e.logger = logger }
}

// NewEscalator creates an escalator
func NewEscalator(tokens *TokenManager, lookup TenantLookup, recorder EscalationRecorder, opts ...EscalatorOption) *Escalator {
	e := &Escalator{
		tokens:   tokens,
		tenants:  lookup,
		recorder: recorder,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssumeTenant grants caller a credential scoped to req.TenantID. The
// escalation is persisted before the credential is returned; if persisting
// fails no credential is issued. Escalated identities cannot escalate again.
func (e *Escalator) AssumeTenant(ctx context.Context, caller *Identity, req AssumeRequest) (*Escalation, string, error) {
	if caller == nil || !caller.IsSuperAdmin {
		return nil, "", access.PermissionDenied("tenants:assume", access.ReasonSuperAdminOnly)
	}
	if caller.IsEscalated() {
		return nil, "", access.PermissionDenied("tenants:assume", access.ReasonNotRenewable)
	}

	justification := strings.TrimSpace(req.Justification)
	if utf8.RuneCountInString(justification) < MinJustificationLength {
		return nil, "", ErrInvalidJustification
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, "", access.TenantRequired("")
	}

	if _, err := e.tenants.GetTenant(ctx, req.TenantID); err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return nil, "", access.TenantNotFound(req.TenantID)
		}
		return nil, "", access.Internal("failed to load tenant", err)
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultEscalationTTL
	}
	if max := e.tokens.MaxEscalationTTL(); ttl > max {
		ttl = max
	}

	// Second precision keeps the signed lifetime equal to ttl.
	now := e.tokens.now().UTC().Truncate(time.Second)
	esc := &Escalation{
		ID:            uuid.NewString(),
		AdminUserID:   caller.UserID,
		TenantID:      req.TenantID,
		Role:          rbac.RoleSuperAdmin,
		Justification: justification,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
		RequestID:     req.RequestID,
		SourceIP:      req.SourceIP,
	}

	if err := e.recorder.RecordEscalation(ctx, esc); err != nil {
		return nil, "", access.Internal("failed to record escalation", err)
	}

	token, _, err := e.tokens.issueEscalation(esc)
	if err != nil {
		return nil, "", access.Internal("failed to issue escalation token", err)
	}

	if e.metrics != nil {
		e.metrics.EscalationsIssuedTotal.Inc()
	}
	e.otel.RecordEscalation(ctx, esc.TenantID)
	e.logger.WithFields(map[string]interface{}{
		"escalation_id": esc.ID,
		"admin_user_id": esc.AdminUserID,
		"tenant_id":     esc.TenantID,
		"expires_at":    esc.ExpiresAt,
	}).Info("tenant escalation issued")

	return esc, token, nil
}

// Revoke invalidates an escalation before it expires
func (e *Escalator) Revoke(ctx context.Context, caller *Identity, escalationID string) error {
	if caller == nil || !caller.IsSuperAdmin {
		return access.PermissionDenied("tenants:assume", access.ReasonSuperAdminOnly)
	}
	if e.revocations == nil {
		return access.Internal("escalation revocation is not configured", nil)
	}

	esc, err := e.recorder.GetEscalation(ctx, escalationID)
	if errors.Is(err, ErrEscalationNotFound) {
		return err
	}
	if err != nil {
		return access.Internal("failed to load escalation", err)
	}

	if !esc.ExpiresAt.After(e.tokens.now()) {
		return nil
	}
	if err := e.revocations.Revoke(ctx, escalationID, esc.ExpiresAt); err != nil {
		return access.Internal("failed to revoke escalation", err)
	}

	if e.metrics != nil {
		e.metrics.EscalationsRevokedTotal.Inc()
	}
	e.logger.WithFields(map[string]interface{}{
		"escalation_id": escalationID,
		"revoked_by":    caller.UserID,
		"tenant_id":     esc.TenantID,
	}).Info("tenant escalation revoked")
	return nil
}
