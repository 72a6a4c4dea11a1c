// Package async provides safe fire-and-forget execution for work started on the
// request path, such as populating the shared tenant cache after a store read.
//
//	async.SafeGo(r.Context(), logger, 2*time.Second, "populate tenant cache", func(ctx context.Context) error {
//		return l2.SetTenant(ctx, tenant)
//	})
//
// The task keeps the request's context values but not its cancellation, runs
// under its own timeout, and has panics recovered and logged.
package async
