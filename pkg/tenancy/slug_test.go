package tenancy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestSlugFromHost(t *testing.T) {
	tests := []struct {
		host, base, want string
	}{
		{"acme.app.example.com", "app.example.com", "acme"},
		{"ACME.app.example.com:8443", "app.example.com", "acme"},
		{"acme.app.example.com.", ".app.example.com.", "acme"},
		{"app.example.com", "app.example.com", ""},
		{"a.b.app.example.com", "app.example.com", ""},
		{"acme.other.com", "app.example.com", ""},
		{"evilapp.example.com", "app.example.com", ""},
		{"acme.app.example.com", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SlugFromHost(tt.host, tt.base), "%s on %s", tt.host, tt.base)
	}
}

func TestRouteFromRequest(t *testing.T) {
	var got Route
	router := mux.NewRouter()
	router.HandleFunc("/t/{tenant_slug}/bookings", func(w http.ResponseWriter, r *http.Request) {
		got = RouteFromRequest(r, "app.example.com", true)
	})
	router.HandleFunc("/bookings", func(w http.ResponseWriter, r *http.Request) {
		got = RouteFromRequest(r, "app.example.com", false)
	})

	req := httptest.NewRequest(http.MethodGet, "http://acme.app.example.com/t/Grand-Hall/bookings", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Route{TenantSlug: "grand-hall", TenantScoped: true}, got)

	req = httptest.NewRequest(http.MethodGet, "http://acme.app.example.com/bookings", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Route{TenantSlug: "acme"}, got)
}

func TestRelativePath(t *testing.T) {
	var got string
	capture := func(w http.ResponseWriter, r *http.Request) { got = RelativePath(r) }

	router := mux.NewRouter()
	router.HandleFunc("/t/{tenant_slug}/billing/update-card", capture)
	router.HandleFunc("/t/{tenant_slug:[a-z-]+}", capture)
	router.HandleFunc("/api/billing", capture)
	tenant := router.PathPrefix("/orgs/{tenant_slug}").Subrouter()
	tenant.HandleFunc("/payments/{payment_id}", capture)

	tests := []struct {
		path, want string
	}{
		{"/t/acme/billing/update-card", "/billing/update-card"},
		{"/t/t/billing/update-card", "/billing/update-card"},
		{"/t/acme", "/"},
		{"/api/billing", "/api/billing"},
		{"/orgs/Grand-Hall/payments/p1", "/payments/p1"},
	}
	for _, tt := range tests {
		got = ""
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tt.path, nil))
		assert.Equal(t, tt.want, got, tt.path)
	}
}
