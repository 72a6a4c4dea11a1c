package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Server is the gatehouse HTTP API
type Server struct {
	router *mux.Router
}

// NewServer creates a server with request id and panic recovery middleware
// and registers every registrar's routes
func NewServer(logger *observability.Logger, registrars ...RouteRegistrar) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Server{router: mux.NewRouter()}
	s.router.Use(httputil.RequestIDMiddleware, httputil.RecoveryMiddleware(logger))
	for _, reg := range registrars {
		s.RegisterRoutes(reg)
	}
	return s
}

// Router exposes the underlying router for additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
