package observability

import (
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. It must be deferred
// directly; the panic is swallowed.
//
//	defer observability.RecoverPanic(logger, "audit drain")
func RecoverPanic(logger *Logger, task string) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		logger = NopLogger()
	}
	logger.WithFields(map[string]interface{}{
		"panic": r,
		"task":  task,
		"stack": string(debug.Stack()),
	}).Error("panic recovered")
}
