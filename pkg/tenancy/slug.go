package tenancy

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// SlugVar is the mux variable naming the addressed tenant
const SlugVar = "tenant_slug"

// SlugFromVars returns the {tenant_slug} path variable
func SlugFromVars(r *http.Request) string {
	return strings.ToLower(mux.Vars(r)[SlugVar])
}

// SlugFromHost returns the leftmost label of host when host is a direct
// subdomain of baseDomain ("acme.app.example.com" on "app.example.com").
func SlugFromHost(host, baseDomain string) string {
	if baseDomain == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	suffix := "." + strings.ToLower(strings.Trim(baseDomain, "."))

	label, ok := strings.CutSuffix(host, suffix)
	if !ok || label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// RouteFromRequest builds the Route of r from the path variable, falling back
// to the subdomain.
func RouteFromRequest(r *http.Request, baseDomain string, scoped bool) Route {
	slug := SlugFromVars(r)
	if slug == "" {
		slug = SlugFromHost(r.Host, baseDomain)
	}
	return Route{TenantSlug: slug, TenantScoped: scoped}
}

// RelativePath returns the request path below the {tenant_slug} segment of
// the matched route, so "/t/acme/billing/update-card" on
// "/t/{tenant_slug}/billing/update-card" is "/billing/update-card". Requests
// whose route carries no slug variable return the path unchanged.
func RelativePath(r *http.Request) string {
	path := r.URL.Path
	if _, ok := mux.Vars(r)[SlugVar]; !ok {
		return path
	}
	route := mux.CurrentRoute(r)
	if route == nil {
		return path
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return path
	}

	segments := strings.Split(path, "/")
	for i, seg := range strings.Split(tpl, "/") {
		if seg != "{"+SlugVar+"}" && !strings.HasPrefix(seg, "{"+SlugVar+":") {
			continue
		}
		if i >= len(segments) {
			return path
		}
		return "/" + strings.Join(segments[i+1:], "/")
	}
	return path
}
