package async

import (
	"context"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// SafeGo runs fn on its own goroutine, detached from the parent's
// cancellation but keeping its values (request scope, trace). fn gets its own
// timeout; errors are logged at warn and panics are recovered.
//
//	async.SafeGo(r.Context(), logger, 2*time.Second, "populate tenant cache", func(ctx context.Context) error {
//	    return l2.SetTenant(ctx, tenant)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, task string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	base := context.WithoutCancel(parentCtx)

	go func() {
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, task)

		if err := fn(ctx); err != nil {
			observability.FromContext(ctx, logger).WithError(err).WithField("task", task).Warn("background task failed")
		}
	}()
}
