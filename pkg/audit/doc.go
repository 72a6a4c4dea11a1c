// Package audit records access decisions and tenant escalations.
//
// A Sink receives one Decision per enforcement stage of consequence. Sinks
// compose:
//
//	pg, _ := audit.NewPostgresSink(db)
//	sink := audit.NewAsyncSink(
//		audit.NewFilterSink(audit.NewMultiSink(audit.NewLogSink(logger), pg), nil),
//		audit.DefaultAsyncConfig("decisions"), metrics, logger)
//	defer sink.Close(ctx)
//
// AsyncSink never blocks the request path. When its queue is full the
// decision is dropped and gatehouse_audit_dropped_total is incremented.
//
// PostgresEscalationStore is the append-only escalation trail the escalator
// writes to before handing out a credential.
package audit
