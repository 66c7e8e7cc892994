package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPipelineMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPipelineMetrics(reg)
	stage := "consolidate"
	metrics.ObserveStageDuration(stage, 250*time.Millisecond)
	metrics.AddRowsProcessed(stage, 120)
	metrics.AddRowsDefaulted(stage, 3)
	metrics.AddChunks(stage, 5, 1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stage_rows_processed", "stage", stage); err != nil {
		t.Fatalf("fetch processed: %v", err)
	} else if got != 120 {
		t.Fatalf("expected processed=120, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "stage_rows_defaulted", "stage", stage); err != nil {
		t.Fatalf("fetch defaulted: %v", err)
	} else if got != 3 {
		t.Fatalf("expected defaulted=3, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "batch_chunks_failed", "stage", stage); err != nil {
		t.Fatalf("fetch failed chunks: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed chunks=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "stage_duration_seconds", "stage", stage); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var metrics *PipelineMetrics
	metrics.ObserveStageDuration("x", time.Second)
	metrics.AddRowsProcessed("x", 1)
	metrics.AddChunks("x", 1, 1)
	metrics.IncRunSuccess()
	metrics.IncRunFailure()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
