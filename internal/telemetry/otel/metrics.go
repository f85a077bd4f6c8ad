package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "tenant-authz/authz"

// Outcomes recorded on authz.decisions.
const (
	OutcomeAuthorized = "authorized"
	OutcomeAnonymous  = "anonymous"
	OutcomeRejected   = "rejected"
)

// Metrics holds the authorization instruments. The zero value is not usable; use NewMetrics or NoopMetrics.
type Metrics struct {
	decisions     metric.Int64Counter
	failOpen      metric.Int64Counter
	auditDropped  metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// NewMetrics registers the instruments on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	decisions, err := meter.Int64Counter("authz.decisions",
		metric.WithDescription("Authorization pipeline outcomes"))
	if err != nil {
		return nil, err
	}
	failOpen, err := meter.Int64Counter("authz.quota.fail_open",
		metric.WithDescription("Quota checks allowed because the counter store failed"))
	if err != nil {
		return nil, err
	}
	auditDropped, err := meter.Int64Counter("authz.audit.dropped",
		metric.WithDescription("Audit entries discarded because the write queue was full"))
	if err != nil {
		return nil, err
	}
	stage, err := meter.Float64Histogram("authz.stage.duration",
		metric.WithDescription("Duration of each pipeline stage"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Metrics{decisions: decisions, failOpen: failOpen, auditDropped: auditDropped, stageDuration: stage}, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordDecision counts one pipeline outcome. reason is empty unless the outcome is rejected.
func (m *Metrics) RecordDecision(ctx context.Context, outcome, reason string) {
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFailOpen counts a quota check that was allowed because op failed against the store.
func (m *Metrics) RecordFailOpen(ctx context.Context, op string) {
	m.failOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordAuditDropped counts one audit entry discarded by a full write queue.
func (m *Metrics) RecordAuditDropped(ctx context.Context) {
	m.auditDropped.Add(ctx, 1)
}

// RecordStage records how long a pipeline stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.stageDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attribute.String("stage", stage)))
}
