package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the access decision metrics as OTLP instruments so they
// can be exported alongside traces.
type OTelMetrics struct {
	decisions        metric.Int64Counter
	decisionDuration metric.Float64Histogram
	escalations      metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(InstrumentationName)

	m := &OTelMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter(
		"gatehouse.access.decisions",
		metric.WithDescription("Access decisions by enforcement stage and verdict"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.decisionDuration, err = meter.Float64Histogram(
		"gatehouse.access.decision.duration",
		metric.WithDescription("Time spent in each enforcement stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision duration histogram: %w", err)
	}

	m.escalations, err = meter.Int64Counter(
		"gatehouse.escalations.issued",
		metric.WithDescription("Assumed-tenant escalations issued"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalations counter: %w", err)
	}

	return m, nil
}

// RecordDecision records one enforcement stage outcome. Safe on a nil receiver.
func (m *OTelMetrics) RecordDecision(ctx context.Context, stage, verdict, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("verdict", verdict),
		attribute.String("code", code),
	)
	m.decisions.Add(ctx, 1, attrs)
	m.decisionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordEscalation counts an issued escalation. Safe on a nil receiver.
func (m *OTelMetrics) RecordEscalation(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}
