package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// LogSink writes decisions to the structured log. Denials log at Info,
// errors at Error and allows at Debug.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogSink{logger: logger}
}

// Record logs d
func (s *LogSink) Record(ctx context.Context, d Decision) error {
	stamp(&d, time.Now)
	fields := map[string]interface{}{
		"decision_id": d.ID,
		"stage":       string(d.Stage),
		"verdict":     string(d.Verdict),
	}
	for k, v := range map[string]string{
		"request_id":    d.RequestID,
		"subject_id":    d.SubjectID,
		"tenant_id":     d.TenantID,
		"escalation_id": d.EscalationID,
		"resource":      d.Resource,
		"action":        d.Action,
		"code":          d.Code,
		"reason":        d.Reason,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	for k, v := range d.Context {
		fields["ctx_"+k] = v
	}

	logger := s.logger.WithFields(fields)
	switch d.Verdict {
	case VerdictDeny:
		logger.Info("access denied")
	case VerdictError:
		logger.Error("access decision failed")
	default:
		logger.Debug("access allowed")
	}
	return nil
}

// MultiSink fans a decision out to several sinks. Every sink is tried; the
// first error is returned.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record forwards d to every sink
func (m *MultiSink) Record(ctx context.Context, d Decision) error {
	stamp(&d, time.Now)
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FilterSink forwards only the decisions keep accepts
type FilterSink struct {
	next Sink
	keep func(Decision) bool
}

// NewFilterSink creates a filtering sink. A nil keep forwards consequential
// decisions only.
func NewFilterSink(next Sink, keep func(Decision) bool) *FilterSink {
	if keep == nil {
		keep = Decision.Consequential
	}
	return &FilterSink{next: next, keep: keep}
}

// Record forwards d when it passes the filter
func (f *FilterSink) Record(ctx context.Context, d Decision) error {
	if !f.keep(d) {
		return nil
	}
	return f.next.Record(ctx, d)
}
