package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type dependency struct {
	name     string
	probe    Probe
	required bool
}

// HealthChecker serves liveness and readiness. Readiness fails when a
// required dependency fails; an optional dependency failing only degrades it.
type HealthChecker struct {
	version string
	timeout time.Duration
	deps    []dependency
}

// NewHealthChecker creates a health checker reporting version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, timeout: 5 * time.Second}
}

// Require registers a dependency readiness depends on
func (h *HealthChecker) Require(name string, probe Probe) {
	h.deps = append(h.deps, dependency{name: name, probe: probe, required: true})
}

// Prefer registers a dependency whose loss degrades but does not fail readiness
func (h *HealthChecker) Prefer(name string, probe Probe) {
	h.deps = append(h.deps, dependency{name: name, probe: probe})
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of one probe
type DependencyStatus struct {
	Status    string `json:"status"`
	Required  bool   `json:"required"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Liveness always answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now().UTC(), Version: h.version})
}

// Readiness runs every probe and answers 503 when the engine cannot serve
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Check runs the probes concurrently, each bounded by the checker timeout
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]DependencyStatus, len(h.deps))
	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range h.deps {
		dep := dep
		g.Go(func() error {
			start := time.Now()
			err := dep.probe(gctx)
			ds := DependencyStatus{
				Status:    StatusHealthy,
				Required:  dep.required,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				ds.Status = StatusUnhealthy
				ds.Message = err.Error()
			}
			mu.Lock()
			results[dep.name] = ds
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: results,
	}
	for _, dep := range h.deps {
		ds := results[dep.name]
		switch {
		case ds.Status == StatusHealthy:
		case ds.Required:
			status.Status = StatusUnhealthy
		case status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

// RegisterHealthRoutes registers /healthz and /readyz
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
}
