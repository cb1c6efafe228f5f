package telemetry

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reflow-agent/reflow/config"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestTelemetryRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(config.TelemetryConfig{Enabled: true, CostTracking: true}, quiet(), reg)

	tel.RunStarted()
	tel.RunFinished(true, 2)
	tel.RunFinished(false, 3)
	tel.TaskExecuted("calculator", "completed")
	tel.TaskExecuted("calculator", "completed")
	tel.TaskExecuted("search", "failed")

	if got := testutil.ToFloat64(tel.runsStarted); got != 1 {
		t.Fatalf("runs started = %v", got)
	}
	if got := testutil.ToFloat64(tel.runsFinished.WithLabelValues("success")); got != 1 {
		t.Fatalf("successful runs = %v", got)
	}
	if got := testutil.ToFloat64(tel.runsFinished.WithLabelValues("failure")); got != 1 {
		t.Fatalf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(tel.taskExecuted.WithLabelValues("calculator", "completed")); got != 2 {
		t.Fatalf("calculator executions = %v", got)
	}
}

func TestTelemetryLLMUsage(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(config.TelemetryConfig{Enabled: true, CostTracking: true}, quiet(), reg)

	tel.RecordLLMUsage(100, 40, 0.5, nil)
	tel.RecordLLMUsage(50, 0, 0.25, errors.New("timeout"))

	if got := testutil.ToFloat64(tel.llmRequests.WithLabelValues("success")); got != 1 {
		t.Fatalf("successful requests = %v", got)
	}
	if got := testutil.ToFloat64(tel.llmRequests.WithLabelValues("failure")); got != 1 {
		t.Fatalf("failed requests = %v", got)
	}
	if got := testutil.ToFloat64(tel.llmTokens.WithLabelValues("prompt")); got != 150 {
		t.Fatalf("prompt tokens = %v", got)
	}
	cost, tokens := tel.CostSummary()
	if cost != 0.75 || tokens != 190 {
		t.Fatalf("cost summary = %v, %v", cost, tokens)
	}
}

func TestTelemetryDisabledIsNoOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(config.TelemetryConfig{Enabled: false, CostTracking: true}, quiet(), reg)

	// must not panic with nil collectors
	tel.RunStarted()
	tel.RunFinished(true, 1)
	tel.TaskExecuted("search", "completed")
	tel.RecordLLMUsage(10, 5, 0.5, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("disabled telemetry registered %d metric families", len(mfs))
	}
	// cost accounting still works
	if cost, tokens := tel.CostSummary(); cost != 0.5 || tokens != 15 {
		t.Fatalf("cost summary = %v, %v", cost, tokens)
	}
}
