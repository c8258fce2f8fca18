package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}

	if c.registry == nil {
		t.Error("registry is nil")
	}

	if c.BuildRuns == nil {
		t.Error("BuildRuns is nil")
	}

	if c.ExtractDuration == nil {
		t.Error("ExtractDuration is nil")
	}

	if c.OutputLinesSent == nil {
		t.Error("OutputLinesSent is nil")
	}
}

func TestBuildMetrics(t *testing.T) {
	c := NewCollector()

	c.BuildRecords.WithLabelValues("gzip").Add(100)
	c.BuildCheckpoints.Add(3)

	metric := &dto.Metric{}
	if err := c.BuildRecords.WithLabelValues("gzip").(prometheus.Counter).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 100 {
		t.Errorf("Expected 100, got %f", metric.Counter.GetValue())
	}

	metric = &dto.Metric{}
	if err := c.BuildCheckpoints.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 3 {
		t.Errorf("Expected 3, got %f", metric.Counter.GetValue())
	}
}

func TestExtractMetrics(t *testing.T) {
	c := NewCollector()

	c.ExtractDuration.WithLabelValues("plain").Observe(0.25)
	c.ExtractDuration.WithLabelValues("plain").Observe(0.5)

	metric := &dto.Metric{}
	if err := c.ExtractDuration.WithLabelValues("plain").(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("Expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() != 0.75 {
		t.Errorf("Expected sum 0.75, got %f", metric.Histogram.GetSampleSum())
	}
}

func TestCollector_StartStop(t *testing.T) {
	c := NewCollector()
	c.Start(10 * time.Millisecond)
	c.Start(10 * time.Millisecond) // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	c.Stop()

	metric := &dto.Metric{}
	if err := c.SystemGoroutines.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() <= 0 {
		t.Errorf("Expected goroutines > 0, got %f", metric.Gauge.GetValue())
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.BuildRuns.WithLabelValues("plain", "success").Inc()

	path := filepath.Join(t.TempDir(), "logseek.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `logseek_build_runs_total{mode="plain",status="success"} 1`) {
		t.Errorf("textfile missing build run counter:\n%s", data)
	}
}
