package otel

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordDecision(ctx, OutcomeAuthorized, "")
	m.RecordDecision(ctx, OutcomeRejected, "access_denied")
	m.RecordFailOpen(ctx, "incr")
	m.RecordAuditDropped(ctx)
	m.RecordAuditDropped(ctx)
	m.RecordStage(ctx, "quota", 3*time.Millisecond)

	got := collect(t, reader)

	decisions, ok := got["authz.decisions"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("authz.decisions missing or wrong type: %+v", got["authz.decisions"])
	}
	var total int64
	for _, dp := range decisions.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("decisions total = %d, want 2", total)
	}

	failOpen, ok := got["authz.quota.fail_open"].Data.(metricdata.Sum[int64])
	if !ok || len(failOpen.DataPoints) != 1 || failOpen.DataPoints[0].Value != 1 {
		t.Errorf("fail_open = %+v, want one point of 1", got["authz.quota.fail_open"].Data)
	}

	dropped, ok := got["authz.audit.dropped"].Data.(metricdata.Sum[int64])
	if !ok || len(dropped.DataPoints) != 1 || dropped.DataPoints[0].Value != 2 {
		t.Errorf("audit.dropped = %+v, want one point of 2", got["authz.audit.dropped"].Data)
	}

	if _, ok := got["authz.stage.duration"].Data.(metricdata.Histogram[float64]); !ok {
		t.Errorf("authz.stage.duration missing: %+v", got["authz.stage.duration"])
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics()
	m.RecordDecision(context.Background(), OutcomeAnonymous, "")
	m.RecordFailOpen(context.Background(), "ttl")
	m.RecordAuditDropped(context.Background())
	m.RecordStage(context.Background(), "verify", time.Millisecond)
}
