package telemetry

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestCountersAndGaugesInitialized(t *testing.T) {
	Init()

	if PagesFetched == nil {
		t.Error("PagesFetched counter not initialized")
	}
	if VideosEnqueued == nil {
		t.Error("VideosEnqueued counter not initialized")
	}
	if BundlesExpanded == nil {
		t.Error("BundlesExpanded counter not initialized")
	}
	if ItemsSucceeded == nil {
		t.Error("ItemsSucceeded counter not initialized")
	}
	if ItemsFailed == nil {
		t.Error("ItemsFailed counter not initialized")
	}
	if ThrottleRetries == nil {
		t.Error("ThrottleRetries counter not initialized")
	}
	if QueueDepthGauge == nil {
		t.Error("QueueDepthGauge not initialized")
	}
	if InFlightPermitGauge == nil {
		t.Error("InFlightPermitGauge not initialized")
	}
}

func TestSetQueueDepth(t *testing.T) {
	Init()
	for _, depth := range []int{0, 10, 50, 100} {
		SetQueueDepth(depth)
	}
	metric := &dto.Metric{}
	if err := QueueDepthGauge.Write(metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if metric.Gauge == nil || *metric.Gauge.Value != 100 {
		t.Errorf("expected last-set queue depth 100, got %v", metric.Gauge)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()
	executed := false
	duration := TimeFunc(PageFetchDuration, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want %q", got, "abc-123")
	}
	if got := GetCorrelation(context.Background()); got != "" {
		t.Errorf("GetCorrelation on bare context = %q, want empty", got)
	}
}

func TestLoggerWithCorrDoesNotPanic(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "xyz")
	if l := LoggerWithCorr(ctx); l == nil {
		t.Fatal("LoggerWithCorr returned nil")
	}
	if l := LoggerWithCorr(context.Background()); l == nil {
		t.Fatal("LoggerWithCorr returned nil for bare context")
	}
}
