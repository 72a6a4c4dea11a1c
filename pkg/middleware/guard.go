package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/lifecycle"
	"github.com/platinummonkey/gatehouse/pkg/limits"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/tenancy"
)

// IdentityResolver turns a raw bearer credential into an identity
type IdentityResolver interface {
	Resolve(ctx context.Context, raw string) (*auth.Identity, error)
}

// TenantResolver maps an identity to the request's tenant
type TenantResolver interface {
	Resolve(ctx context.Context, identity *auth.Identity, route tenancy.Route) (tenancy.TenantContext, error)
}

// Config wires a Guard
type Config struct {
	Identities IdentityResolver
	Tenants    TenantResolver
	Plans      plans.Source
	Enforcer   *limits.Enforcer

	// Optional
	Lifecycle  *lifecycle.Gate
	Sink       audit.Sink
	Metrics    *observability.Metrics
	OTel       *observability.OTelMetrics
	Logger     *observability.Logger
	BaseDomain string
	Now        func() time.Time
}

// Guard builds the ordered access middleware
type Guard struct {
	identities IdentityResolver
	tenants    TenantResolver
	plans      plans.Source
	enforcer   *limits.Enforcer
	lifecycle  *lifecycle.Gate
	features   *plans.Gate
	evaluator  *rbac.Evaluator
	sink       audit.Sink
	metrics    *observability.Metrics
	otel       *observability.OTelMetrics
	logger     *observability.Logger
	baseDomain string
	now        func() time.Time
}

// NewGuard validates cfg and creates a Guard
func NewGuard(cfg Config) (*Guard, error) {
	switch {
	case cfg.Identities == nil:
		return nil, errors.New("identity resolver is required")
	case cfg.Tenants == nil:
		return nil, errors.New("tenant resolver is required")
	case cfg.Plans == nil:
		return nil, errors.New("plan source is required")
	case cfg.Enforcer == nil:
		return nil, errors.New("limit enforcer is required")
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = lifecycle.NewGate()
	}
	if cfg.Sink == nil {
		cfg.Sink = audit.NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Guard{
		identities: cfg.Identities,
		tenants:    cfg.Tenants,
		plans:      cfg.Plans,
		enforcer:   cfg.Enforcer,
		lifecycle:  cfg.Lifecycle,
		features:   plans.NewGate(),
		evaluator:  rbac.NewEvaluator(),
		sink:       cfg.Sink,
		metrics:    cfg.Metrics,
		otel:       cfg.OTel,
		logger:     cfg.Logger,
		baseDomain: cfg.BaseDomain,
		now:        cfg.Now,
	}, nil
}

// Evaluator exposes the permission evaluator used by the guard
func (g *Guard) Evaluator() *rbac.Evaluator {
	return g.evaluator
}

// Enforcer exposes the limit enforcer used by the guard
func (g *Guard) Enforcer() *limits.Enforcer {
	return g.enforcer
}

// Tenant is the common prefix of a tenant route: Authenticate, ResolveTenant
// and StatusGate, in that order.
func (g *Guard) Tenant(scoped bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Authenticate(g.ResolveTenant(scoped)(g.StatusGate(next)))
	}
}

// stage tracks one enforcement stage from start to verdict
type stage struct {
	g     *Guard
	name  audit.Stage
	ctx   context.Context
	span  trace.Span
	start time.Time
	d     audit.Decision
}

func (g *Guard) begin(r *http.Request, name audit.Stage) *stage {
	ctx, span := observability.Tracer().Start(r.Context(), "guard."+string(name))
	return &stage{
		g:     g,
		name:  name,
		ctx:   ctx,
		span:  span,
		start: time.Now(),
		d:     audit.Decision{Stage: name, Method: r.Method},
	}
}

// done records the verdict. It writes the error response and returns false
// when the request must stop.
func (s *stage) done(w http.ResponseWriter, err error) bool {
	defer s.span.End()

	verdict, code := audit.VerdictAllow, ""
	var accessErr *access.Error
	if err != nil {
		accessErr = access.FromError(err)
		code = accessErr.Code
		verdict = audit.VerdictDeny
		if accessErr.Kind == access.KindInternal {
			verdict = audit.VerdictError
		}
		s.d.Reason = accessErr.Reason
	}

	elapsed := time.Since(s.start)
	s.g.metrics.ObserveDecision(string(s.name), string(verdict), code, elapsed)
	s.g.otel.RecordDecision(s.ctx, string(s.name), string(verdict), code, elapsed)

	s.d.Verdict = verdict
	s.d.Code = code
	s.d.Timestamp = s.g.now().UTC()
	s.d.RequestID = observability.GetRequestID(s.ctx)
	if identity := IdentityFrom(s.ctx); identity != nil && s.d.SubjectID == "" {
		s.d.SubjectID = identity.UserID
		s.d.EscalationID = identity.EscalationID
	}
	if tc, ok := TenantContextFrom(s.ctx); ok && s.d.TenantID == "" {
		s.d.TenantID = tc.TenantID()
	}

	s.span.SetAttributes(
		attribute.String("gatehouse.verdict", string(verdict)),
		attribute.String("gatehouse.tenant_id", s.d.TenantID),
	)
	if code != "" {
		s.span.SetAttributes(attribute.String("gatehouse.code", code))
	}

	logger := observability.FromContext(s.ctx, s.g.logger).WithField("stage", string(s.name))
	if scope := observability.ScopeFrom(s.ctx); scope.TenantID == "" && s.d.TenantID != "" {
		logger = logger.WithField("tenant_id", s.d.TenantID)
	}
	switch verdict {
	case audit.VerdictError:
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, accessErr.Message)
		logger.WithError(err).Error("access check failed")
	case audit.VerdictDeny:
		logger.WithFields(map[string]interface{}{"code": code, "reason": accessErr.Reason}).Info("access denied")
	}

	if recErr := s.g.sink.Record(s.ctx, s.d); recErr != nil {
		logger.WithError(recErr).Warn("failed to record access decision")
	}

	if err != nil {
		httputil.WriteAccessError(w, accessErr)
		return false
	}
	return true
}
