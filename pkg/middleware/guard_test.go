package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/limits"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/tenancy"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

var guardNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type captureSink struct {
	mu        sync.Mutex
	decisions []audit.Decision
}

func (s *captureSink) Record(ctx context.Context, d audit.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *captureSink) last() audit.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decisions[len(s.decisions)-1]
}

type escalations struct {
	mu   sync.Mutex
	byID map[string]*auth.Escalation
}

func (e *escalations) RecordEscalation(ctx context.Context, esc *auth.Escalation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[esc.ID] = esc
	return nil
}

func (e *escalations) GetEscalation(ctx context.Context, id string) (*auth.Escalation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, ok := e.byID[id]
	if !ok {
		return nil, auth.ErrEscalationNotFound
	}
	return esc, nil
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTokens(t testing.TB, now func() time.Time) *auth.TokenManager {
	t.Helper()
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret: testSecret,
		Issuer: "gatehouse-test",
		Now:    now,
	}, nil)
	require.NoError(t, err)
	return tokens
}

type fixture struct {
	router  *mux.Router
	tokens  *auth.TokenManager
	store   *tenants.MemoryStore
	sink    *captureSink
	metrics *observability.Metrics
	counts  map[plans.LimitName]int64
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	now := func() time.Time { return guardNow }

	tokens := newTokens(t, now)

	store := tenants.NewMemoryStore()
	store.PutTenant(&tenants.Tenant{ID: "t1", Slug: "grand-hall", PlanID: "starter", Status: tenants.StatusActive})
	store.PutTenant(&tenants.Tenant{ID: "t2", Slug: "riverside", PlanID: "pro", Status: tenants.StatusPastDue})
	store.PutTenant(&tenants.Tenant{ID: "t3", Slug: "closed-co", PlanID: "pro", Status: tenants.StatusCanceled})
	store.PutTenant(&tenants.Tenant{ID: "t4", Slug: "frozen", PlanID: "pro", Status: tenants.StatusSuspended})
	store.PutTenant(&tenants.Tenant{ID: "t5", Slug: "mystery", PlanID: "pro", Status: tenants.Status("archived")})

	store.PutMembership(&tenants.Membership{TenantID: "t1", UserID: "owner-1", Role: rbac.RoleOwner, Active: true})
	store.PutMembership(&tenants.Membership{TenantID: "t1", UserID: "manager-1", Role: rbac.RoleManager, VenueIDs: []string{"v1"}, Active: true})
	store.PutMembership(&tenants.Membership{TenantID: "t1", UserID: "viewer-1", Role: rbac.RoleViewer, Active: true})
	store.PutMembership(&tenants.Membership{TenantID: "t2", UserID: "owner-2", Role: rbac.RoleOwner, Active: true})
	store.PutMembership(&tenants.Membership{TenantID: "t3", UserID: "owner-3", Role: rbac.RoleOwner, Active: true})
	store.PutMembership(&tenants.Membership{TenantID: "t4", UserID: "owner-4", Role: rbac.RoleOwner, Active: true})
	store.PutMembership(&tenants.Membership{TenantID: "t5", UserID: "owner-5", Role: rbac.RoleOwner, Active: true})

	catalog, err := plans.NewStaticCatalog(
		&plans.Plan{
			ID: "starter", Name: "starter", Active: true,
			Features: plans.NewFeatureSet(plans.FeatureDashboard, plans.FeatureCoreBooking, plans.FeatureCustomerManagement),
			Limits: plans.LimitSet{
				plans.LimitMaxUsers: 3, plans.LimitMaxVenues: 1,
				plans.LimitMaxBookingsPerMonth: 50, plans.LimitMaxSpacesPerVenue: 2,
			},
		},
		&plans.Plan{
			ID: "pro", Name: "pro", Active: true,
			Features: plans.Everything(),
			Limits: plans.LimitSet{
				plans.LimitMaxUsers: -1, plans.LimitMaxVenues: -1,
				plans.LimitMaxBookingsPerMonth: -1, plans.LimitMaxSpacesPerVenue: 10,
			},
		},
	)
	require.NoError(t, err)

	f := &fixture{
		tokens:  tokens,
		store:   store,
		sink:    &captureSink{},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		counts: map[plans.LimitName]int64{
			plans.LimitMaxVenues:           1,
			plans.LimitMaxBookingsPerMonth: 10,
			plans.LimitMaxSpacesPerVenue:   2,
		},
	}
	counter := limits.CounterFunc(func(ctx context.Context, tenantID string, limit plans.LimitName, venueID string) (int64, error) {
		if limit.PerVenue() && venueID == "v-empty" {
			return 0, nil
		}
		return f.counts[limit], nil
	})

	guard, err := NewGuard(Config{
		Identities: tokens,
		Tenants:    tenancy.NewResolver(store, tenancy.WithClock(now)),
		Plans:      catalog,
		Enforcer:   limits.NewEnforcer(counter),
		Sink:       f.sink,
		Metrics:    f.metrics,
		Now:        now,
	})
	require.NoError(t, err)

	ok := func(w http.ResponseWriter, r *http.Request) {
		tc, _ := TenantContextFrom(r.Context())
		mode, _ := ModeFrom(r.Context())
		var granted []string
		for _, p := range PermissionsFrom(r.Context()) {
			granted = append(granted, p.String())
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"tenantId":    tc.TenantID(),
			"role":        tc.Role(),
			"mode":        mode,
			"permissions": granted,
			"limits":      LimitsFrom(r.Context()),
			"features":    FeaturesFrom(r.Context()).Enabled(),
		})
	}
	h := http.HandlerFunc(ok)

	router := mux.NewRouter()
	router.Handle("/me", guard.Authenticate(guard.ResolveTenant(false)(guard.StatusGate(h)))).Methods("GET")
	router.Handle("/misordered", guard.RequireFeature(plans.FeatureDashboard)(h)).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(guard.Tenant(true))
	api.Handle("/bookings", guard.RequirePermission(rbac.P(rbac.ResourceBookings, rbac.ActionView), nil)(h)).Methods("GET")
	api.Handle("/bookings", guard.RequirePermission(rbac.P(rbac.ResourceBookings, rbac.ActionCreate), nil)(
		guard.RequireLimit(plans.LimitMaxBookingsPerMonth, nil)(h))).Methods("POST")
	api.Handle("/billing/update-card", h).Methods("POST")
	api.Handle("/proposals", guard.RequireFeature(plans.FeatureProposalSystem)(h)).Methods("POST")
	api.Handle("/venues", guard.RequirePermission(rbac.P(rbac.ResourceVenues, rbac.ActionCreate), nil)(
		guard.RequireLimit(plans.LimitMaxVenues, nil)(h))).Methods("POST")
	api.Handle("/venues/{venue_id}/bookings/{booking_id}",
		guard.RequirePermission(rbac.P(rbac.ResourceBookings, rbac.ActionEdit), VenueScope("venue_id"))(h)).Methods("PUT")
	api.Handle("/venues/{venue_id}/spaces", guard.RequireLimit(plans.LimitMaxSpacesPerVenue, VenueVar("venue_id"))(h)).Methods("POST")

	slugged := router.PathPrefix("/t/{tenant_slug}").Subrouter()
	slugged.Use(guard.Tenant(true))
	slugged.Handle("/bookings", guard.RequirePermission(rbac.P(rbac.ResourceBookings, rbac.ActionCreate), nil)(h)).Methods("POST")
	slugged.Handle("/billing/update-card", h).Methods("POST")

	f.router = router
	return f
}

func (f *fixture) token(t testing.TB, subject auth.Subject) string {
	t.Helper()
	raw, _, err := f.tokens.Issue(subject)
	require.NoError(t, err)
	return raw
}

func (f *fixture) do(t *testing.T, method, path, token string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestGuard_Authentication(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/bookings", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AUTH_REQUIRED", body["error"])

	code, body = f.do(t, "GET", "/api/bookings", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_TOKEN", body["error"])

	earlier := newTokens(t, func() time.Time { return guardNow.Add(-time.Hour) })
	expired, _, err := earlier.Issue(auth.Subject{UserID: "owner-1"})
	require.NoError(t, err)
	code, body = f.do(t, "GET", "/api/bookings", expired)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_EXPIRED", body["error"])
}

func TestGuard_ScenarioA_FeatureNotOnPlan(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/proposals", f.token(t, auth.Subject{UserID: "owner-1"}))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FEATURE_NOT_AVAILABLE", body["error"])
	assert.Equal(t, "proposal_system", body["featureId"])
	assert.Equal(t, true, body["upgradeRequired"])

	d := f.sink.last()
	assert.Equal(t, audit.StageFeature, d.Stage)
	assert.Equal(t, audit.VerdictDeny, d.Verdict)
	assert.Equal(t, "t1", d.TenantID)
	assert.Equal(t, "owner-1", d.SubjectID)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.metrics.DecisionsTotal.WithLabelValues("feature", "deny", "FEATURE_NOT_AVAILABLE")))
}

func TestGuard_ScenarioB_LimitReached(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/venues", f.token(t, auth.Subject{UserID: "owner-1"}))
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "LIMIT_EXCEEDED", body["error"])
	assert.Equal(t, "maxVenues", body["limitType"])
	assert.Equal(t, 1.0, body["current"])
	assert.Equal(t, 1.0, body["max"])

	f.counts[plans.LimitMaxVenues] = 0
	code, body = f.do(t, "POST", "/api/venues", f.token(t, auth.Subject{UserID: "owner-1"}))
	assert.Equal(t, http.StatusOK, code)
	usage := body["limits"].(map[string]interface{})["maxVenues"].(map[string]interface{})
	assert.Equal(t, true, usage["withinLimit"])
	assert.Equal(t, []interface{}{"venues:create"}, body["permissions"])
}

func TestGuard_ScenarioC_PastDue(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, auth.Subject{UserID: "owner-2"})

	code, body := f.do(t, "POST", "/api/bookings", token)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_REQUIRED", body["error"])

	code, body = f.do(t, "GET", "/api/bookings", token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "read_only", body["mode"])

	code, _ = f.do(t, "POST", "/api/billing/update-card", token)
	assert.Equal(t, http.StatusOK, code)
}

func TestGuard_BillingRouteUnderTenantSlug(t *testing.T) {
	f := newFixture(t)
	pastDue := f.token(t, auth.Subject{UserID: "owner-2"})
	canceled := f.token(t, auth.Subject{UserID: "owner-3"})

	code, body := f.do(t, "POST", "/t/riverside/billing/update-card", pastDue)
	assert.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "read_only", body["mode"])

	code, body = f.do(t, "POST", "/t/riverside/bookings", pastDue)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_REQUIRED", body["error"])

	code, body = f.do(t, "POST", "/t/closed-co/billing/update-card", canceled)
	assert.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "billing_only", body["mode"])

	code, _ = f.do(t, "POST", "/t/closed-co/bookings", canceled)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestGuard_ScenarioD_BareSuperAdmin(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, auth.Subject{UserID: "admin-1", SuperAdmin: true})

	code, body := f.do(t, "GET", "/api/bookings", token)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "TENANT_REQUIRED", body["error"])

	code, body = f.do(t, "GET", "/me", token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", body["tenantId"])
	assert.Equal(t, "super_admin", body["role"])
}

func TestGuard_ScenarioE_ManagerOutOfScope(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, auth.Subject{UserID: "manager-1"})

	code, body := f.do(t, "PUT", "/api/venues/v2/bookings/b1", token)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["error"])
	assert.Equal(t, "out_of_scope", body["reason"])
	assert.Equal(t, "bookings:edit", body["requiredPermission"])

	code, _ = f.do(t, "PUT", "/api/venues/v1/bookings/b1", token)
	assert.Equal(t, http.StatusOK, code)
}

func TestGuard_PermissionDenied(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/bookings", f.token(t, auth.Subject{UserID: "viewer-1"}))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["error"])
	assert.Equal(t, "not_permitted", body["reason"])
}

func TestGuard_TenantStatus(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/bookings", f.token(t, auth.Subject{UserID: "owner-3"}))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "TENANT_CANCELED", body["error"])

	code, _ = f.do(t, "POST", "/api/billing/update-card", f.token(t, auth.Subject{UserID: "owner-3"}))
	assert.Equal(t, http.StatusOK, code)

	code, body = f.do(t, "GET", "/api/bookings", f.token(t, auth.Subject{UserID: "owner-4"}))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "TENANT_SUSPENDED", body["error"])

	code, body = f.do(t, "GET", "/api/bookings", f.token(t, auth.Subject{UserID: "owner-5"}))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
	assert.Equal(t, audit.VerdictError, f.sink.last().Verdict)
}

func TestGuard_AssumedTenantBypassesFeatures(t *testing.T) {
	f := newFixture(t)
	escalator := auth.NewEscalator(f.tokens, f.store, &escalations{byID: map[string]*auth.Escalation{}})

	_, admin, err := f.tokens.Issue(auth.Subject{UserID: "admin-1", SuperAdmin: true})
	require.NoError(t, err)
	esc, token, err := escalator.AssumeTenant(context.Background(), admin, auth.AssumeRequest{
		TenantID:      "t1",
		Justification: "investigating ticket #4411",
	})
	require.NoError(t, err)

	code, body := f.do(t, "POST", "/api/proposals", token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "t1", body["tenantId"])
	assert.Equal(t, "super_admin", body["role"])

	d := f.sink.last()
	assert.Equal(t, audit.StageFeature, d.Stage)
	assert.Equal(t, esc.ID, d.EscalationID)
	assert.Equal(t, "admin-1", d.SubjectID)

	// suspension still applies to assumed tenants
	_, token, err = escalator.AssumeTenant(context.Background(), admin, auth.AssumeRequest{
		TenantID:      "t4",
		Justification: "reviewing suspension appeal",
	})
	require.NoError(t, err)
	code, body = f.do(t, "GET", "/api/bookings", token)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "TENANT_SUSPENDED", body["error"])
}

func TestGuard_PerVenueLimit(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, auth.Subject{UserID: "owner-1"})

	code, body := f.do(t, "POST", "/api/venues/v1/spaces", token)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "maxSpacesPerVenue", body["limitType"])

	code, _ = f.do(t, "POST", "/api/venues/v-empty/spaces", token)
	assert.Equal(t, http.StatusOK, code)
}

func TestGuard_MisorderedChainFailsClosed(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/misordered", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
}

func TestNewGuard_Validation(t *testing.T) {
	_, err := NewGuard(Config{})
	assert.Error(t, err)
}
