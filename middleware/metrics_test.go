package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/toyota-m2k/android-worker/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_RecordsExecution(t *testing.T) {
	reader, mp := setupTestMeter()
	metrics := mw.MetricsWithMeter(mp.Meter("test"))

	err := metrics(context.Background(), newTestTask(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("middleware error: %v", err)
	}

	rm := collectMetrics(t, reader)

	execMetric := findMetric(rm, "worker.task.executions")
	if execMetric == nil {
		t.Fatal("worker.task.executions not recorded")
	}
	sum, ok := execMetric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("executions data type = %T, want Sum[int64]", execMetric.Data)
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("len(DataPoints) = %d, want 1", len(sum.DataPoints))
	}
	dp := sum.DataPoints[0]
	if dp.Value != 1 {
		t.Errorf("executions = %d, want 1", dp.Value)
	}
	if status, _ := dp.Attributes.Value(attribute.Key("status")); status.AsString() != "ok" {
		t.Errorf("status = %q, want ok", status.AsString())
	}

	durMetric := findMetric(rm, "worker.task.duration")
	if durMetric == nil {
		t.Fatal("worker.task.duration not recorded")
	}
	hist, ok := durMetric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data type = %T, want Histogram[float64]", durMetric.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("len(histogram DataPoints) = %d, want 1", len(hist.DataPoints))
	}
}

func TestMetrics_ErrorStatus(t *testing.T) {
	reader, mp := setupTestMeter()
	metrics := mw.MetricsWithMeter(mp.Meter("test"))

	wantErr := errors.New("handler exploded")
	err := metrics(context.Background(), newTestTask(), func(_ context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("middleware error = %v, want handler error", err)
	}

	rm := collectMetrics(t, reader)
	execMetric := findMetric(rm, "worker.task.executions")
	if execMetric == nil {
		t.Fatal("worker.task.executions not recorded")
	}
	sum := execMetric.Data.(metricdata.Sum[int64])
	dp := sum.DataPoints[0]
	if status, _ := dp.Attributes.Value(attribute.Key("status")); status.AsString() != "error" {
		t.Errorf("status = %q, want error", status.AsString())
	}
}

func TestMetrics_TaskAttributes(t *testing.T) {
	reader, mp := setupTestMeter()
	metrics := mw.MetricsWithMeter(mp.Meter("test"))

	task := newTestTask()
	task.Foreground = true
	if err := metrics(context.Background(), task, func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("middleware error: %v", err)
	}

	rm := collectMetrics(t, reader)
	sum := findMetric(rm, "worker.task.executions").Data.(metricdata.Sum[int64])
	dp := sum.DataPoints[0]

	if v, _ := dp.Attributes.Value(attribute.Key("expedited")); !v.AsBool() {
		t.Error("expedited attribute = false, want true")
	}
	if v, _ := dp.Attributes.Value(attribute.Key("foreground")); !v.AsBool() {
		t.Error("foreground attribute = false, want true")
	}
}
