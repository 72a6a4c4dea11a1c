// Package api exposes gatehouse over HTTP.
//
// Two groups of routes are served:
//
//   - Admin: super admins assume a tenant for a bounded time with a written
//     justification, revoke escalations early, and list a tenant's escalation
//     history. Assume requests are rate limited per admin.
//   - Entitlements: any member reads their role, permissions, plan features
//     and current limit usage for the resolved tenant. UIs use this to hide
//     what the guard would reject anyway.
//
// Handlers are grouped in types that implement RouteRegistrar:
//
//	guard, _ := middleware.NewGuard(cfg)
//	server := api.NewServer(logger,
//		api.NewAdminHandlers(guard, escalator, history, limiter, sink, logger),
//		api.NewEntitlementsHandlers(guard),
//	)
//	http.ListenAndServe(":8080", server)
//
// Every error body uses the access-error envelope written by
// httputil.WriteAccessError, except malformed input which is a plain 400.
package api
