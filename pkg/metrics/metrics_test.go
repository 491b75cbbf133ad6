package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.SearcherVersion == nil {
		t.Error("SearcherVersion not initialized")
	}
	if r.NRTPointsTotal == nil {
		t.Error("NRTPointsTotal not initialized")
	}
	if r.MergeCopyDuration == nil {
		t.Error("MergeCopyDuration not initialized")
	}
	if r.UploadsTotal == nil {
		t.Error("UploadsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	// Should return the same instance
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordNRTPoint(t *testing.T) {
	r := NewRegistry()

	r.RecordNRTPoint("test_index", 42)
	r.RecordNRTPoint("test_index", 43)

	gauge, err := r.SearcherVersion.GetMetricWithLabelValues("test_index")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 43 {
		t.Errorf("SearcherVersion = %v, want 43", got)
	}

	counter, err := r.NRTPointsTotal.GetMetricWithLabelValues("test_index")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("NRTPointsTotal = %v, want 2", got)
	}
}

func TestRecordMergeCopy(t *testing.T) {
	r := NewRegistry()

	r.RecordMergeCopyStart("idx")
	r.RecordMergeCopyDone("idx", 150*time.Millisecond)

	counter, err := r.MergeCopyDoneTotal.GetMetricWithLabelValues("idx")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("MergeCopyDoneTotal = %v, want 1", got)
	}
}

func TestRecordUpload(t *testing.T) {
	r := NewRegistry()

	r.RecordUpload("success", 20*time.Millisecond)
	r.RecordUpload("failure", 5*time.Millisecond)

	counter, err := r.UploadsTotal.GetMetricWithLabelValues("failure")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("UploadsTotal{failure} = %v, want 1", got)
	}
}
