package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Escalations issues and revokes assumed-tenant credentials
type Escalations interface {
	AssumeTenant(ctx context.Context, caller *auth.Identity, req auth.AssumeRequest) (*auth.Escalation, string, error)
	Revoke(ctx context.Context, caller *auth.Identity, escalationID string) error
}

// EscalationHistory lists recorded escalations for a tenant
type EscalationHistory interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*auth.Escalation, error)
}

// AdminHandlers serves the super admin escalation endpoints
type AdminHandlers struct {
	guard       *middleware.Guard
	escalations Escalations
	history     EscalationHistory
	limiter     *middleware.WindowLimiter
	sink        audit.Sink
	logger      *observability.Logger
}

// NewAdminHandlers creates admin handlers. history, limiter and sink may be nil.
func NewAdminHandlers(guard *middleware.Guard, escalations Escalations, history EscalationHistory,
	limiter *middleware.WindowLimiter, sink audit.Sink, logger *observability.Logger) *AdminHandlers {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AdminHandlers{
		guard:       guard,
		escalations: escalations,
		history:     history,
		limiter:     limiter,
		sink:        sink,
		logger:      logger.WithField("component", "admin_api"),
	}
}

// RegisterRoutes registers the admin routes. Every route requires a credential.
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	assume := http.Handler(http.HandlerFunc(h.assumeTenant))
	if h.limiter != nil {
		assume = middleware.RateLimitByUser(h.limiter, h.logger)(assume)
	}

	router.Handle("/admin/tenants/{tenant_id}/assume", h.guard.Authenticate(assume)).Methods("POST")
	router.Handle("/admin/escalations/{escalation_id}", h.guard.Authenticate(http.HandlerFunc(h.revokeEscalation))).Methods("DELETE")
	if h.history != nil {
		router.Handle("/admin/tenants/{tenant_id}/escalations", h.guard.Authenticate(http.HandlerFunc(h.listEscalations))).Methods("GET")
	}
}

// AssumeTenantRequest is the body of an assume request
type AssumeTenantRequest struct {
	Justification string `json:"justification"`
	TTLMinutes    int    `json:"ttl_minutes,omitempty"`
}

// EscalationResponse is returned when an escalation is issued
type EscalationResponse struct {
	EscalationID  string    `json:"escalationId"`
	TenantID      string    `json:"tenantId"`
	Token         string    `json:"token"`
	Justification string    `json:"justification"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// assumeTenant handles POST /admin/tenants/{tenant_id}/assume
func (h *AdminHandlers) assumeTenant(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())
	tenantID := httputil.PathVar(r, "tenant_id")

	var req AssumeTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TTLMinutes < 0 {
		httputil.WriteBadRequest(w, "ttl_minutes must not be negative")
		return
	}

	requestID := observability.GetRequestID(r.Context())
	esc, token, err := h.escalations.AssumeTenant(r.Context(), identity, auth.AssumeRequest{
		TenantID:      tenantID,
		Justification: req.Justification,
		TTL:           time.Duration(req.TTLMinutes) * time.Minute,
		RequestID:     requestID,
		SourceIP:      clientIP(r),
	})

	d := audit.Decision{
		RequestID: requestID,
		TenantID:  tenantID,
		Stage:     audit.StageEscalation,
		Resource:  "tenants",
		Action:    "assume",
		Verdict:   audit.VerdictAllow,
	}
	if identity != nil {
		d.SubjectID = identity.UserID
	}
	if esc != nil {
		d.EscalationID = esc.ID
	}
	if err != nil {
		d.Verdict, d.Code, d.Reason = verdictFor(err)
	}
	h.record(r.Context(), d)

	if errors.Is(err, auth.ErrInvalidJustification) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteAccessError(w, err)
		return
	}

	httputil.WriteCreated(w, EscalationResponse{
		EscalationID:  esc.ID,
		TenantID:      esc.TenantID,
		Token:         token,
		Justification: esc.Justification,
		IssuedAt:      esc.IssuedAt,
		ExpiresAt:     esc.ExpiresAt,
	})
}

// revokeEscalation handles DELETE /admin/escalations/{escalation_id}
func (h *AdminHandlers) revokeEscalation(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())
	escalationID := httputil.PathVar(r, "escalation_id")

	err := h.escalations.Revoke(r.Context(), identity, escalationID)

	d := audit.Decision{
		RequestID:    observability.GetRequestID(r.Context()),
		EscalationID: escalationID,
		Stage:        audit.StageEscalation,
		Resource:     "escalations",
		Action:       "revoke",
		Verdict:      audit.VerdictAllow,
	}
	if identity != nil {
		d.SubjectID = identity.UserID
	}
	if err != nil {
		d.Verdict, d.Code, d.Reason = verdictFor(err)
	}
	h.record(r.Context(), d)

	if errors.Is(err, auth.ErrEscalationNotFound) {
		httputil.WriteNotFoundError(w, "escalation not found")
		return
	}
	if err != nil {
		httputil.WriteAccessError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listEscalations handles GET /admin/tenants/{tenant_id}/escalations
func (h *AdminHandlers) listEscalations(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())
	if identity == nil || !identity.IsSuperAdmin || identity.IsEscalated() {
		httputil.WriteAccessError(w, access.PermissionDenied("tenants:assume", access.ReasonSuperAdminOnly))
		return
	}

	limit, err := httputil.QueryPositiveInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	tenantID := httputil.PathVar(r, "tenant_id")
	escalations, err := h.history.ListByTenant(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to list escalations")
		httputil.WriteAccessError(w, access.Internal("failed to list escalations", err))
		return
	}
	if escalations == nil {
		escalations = []*auth.Escalation{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"escalations": escalations,
		"count":       len(escalations),
	})
}

func (h *AdminHandlers) record(ctx context.Context, d audit.Decision) {
	if err := h.sink.Record(ctx, d); err != nil {
		h.logger.WithError(err).Warn("failed to record escalation decision")
	}
}

func verdictFor(err error) (audit.Verdict, string, string) {
	if errors.Is(err, auth.ErrInvalidJustification) || errors.Is(err, auth.ErrEscalationNotFound) {
		return audit.VerdictDeny, "", err.Error()
	}
	accessErr := access.FromError(err)
	if accessErr.Kind == access.KindInternal {
		return audit.VerdictError, accessErr.Code, accessErr.Reason
	}
	return audit.VerdictDeny, accessErr.Code, accessErr.Reason
}

// clientIP returns the first forwarded address, or the peer address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
