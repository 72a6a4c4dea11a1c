package tenants

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Recounter computes live usage counts for a tenant
type Recounter interface {
	Recount(ctx context.Context, tenantID string) (Counters, error)
}

// Invalidator drops cached tenant records
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Reconciler periodically rewrites the cached tenant counters from live counts.
// Cached counters are display-only; enforcement always recounts.
type Reconciler struct {
	store       CounterStore
	reader      Store
	recounter   Recounter
	invalidator Invalidator
	metrics     *observability.Metrics
	logger      *observability.Logger
	now         func() time.Time

	cron *cron.Cron
}

// NewReconciler creates a reconciler. invalidator, metrics and logger may be nil.
func NewReconciler(store CounterStore, reader Store, recounter Recounter, invalidator Invalidator,
	metrics *observability.Metrics, logger *observability.Logger) *Reconciler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Reconciler{
		store:       store,
		reader:      reader,
		recounter:   recounter,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger.WithField("component", "reconciler"),
		now:         time.Now,
	}
}

// Start schedules RunOnce on a cron spec such as "*/15 * * * *".
func (r *Reconciler) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		defer observability.RecoverPanic(r.logger, "counter reconciliation")

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.WithError(err).Error("counter reconciliation failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	r.cron = c
	c.Start()
	r.logger.WithField("schedule", schedule).Info("counter reconciliation scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce reconciles every tenant and returns how many had drifted.
// Per-tenant failures are logged and do not stop the run.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.store.ListTenantIDs(ctx)
	if err != nil {
		r.observeRun("error")
		return 0, err
	}

	drifted, failed := 0, 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			r.observeRun("error")
			return drifted, err
		}

		changed, err := r.reconcile(ctx, id)
		if err != nil {
			failed++
			r.logger.WithError(err).WithField("tenant_id", id).Warn("failed to reconcile tenant counters")
			continue
		}
		if changed {
			drifted++
		}
	}

	status := "success"
	if failed > 0 {
		status = "partial"
	}
	r.observeRun(status)
	r.logger.WithFields(map[string]interface{}{
		"tenants": len(ids),
		"drifted": drifted,
		"failed":  failed,
	}).Info("counter reconciliation complete")
	return drifted, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tenantID string) (bool, error) {
	live, err := r.recounter.Recount(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("recount failed: %w", err)
	}

	current, err := r.reader.GetTenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load tenant: %w", err)
	}
	if sameCounts(current.Counters, live) {
		return false, nil
	}

	live.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateCounters(ctx, tenantID, live); err != nil {
		return false, err
	}
	if r.metrics != nil {
		r.metrics.CounterDriftTotal.Inc()
	}
	if r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx, tenantID); err != nil {
			r.logger.WithError(err).WithField("tenant_id", tenantID).Warn("failed to invalidate tenant cache")
		}
	}
	return true, nil
}

func (r *Reconciler) observeRun(status string) {
	if r.metrics != nil {
		r.metrics.ReconcileRunsTotal.WithLabelValues(status).Inc()
	}
}

func sameCounts(a, b Counters) bool {
	return a.Users == b.Users && a.Venues == b.Venues && a.MonthlyBookings == b.MonthlyBookings
}
