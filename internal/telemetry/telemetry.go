package telemetry

import (
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reflow-agent/reflow/config"
)

// Telemetry records workflow and LLM metrics. It satisfies
// workflow.Observer and is safe for concurrent use.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *log.Logger

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runIterations prometheus.Histogram
	taskExecuted  *prometheus.CounterVec
	llmRequests   *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec

	mu          sync.Mutex
	totalCost   float64
	totalTokens int64
}

// New registers collectors on reg (the default registerer when nil) and
// returns a ready Telemetry. With telemetry disabled, all methods are
// no-ops beyond cost accounting.
func New(cfg config.TelemetryConfig, logger *log.Logger, reg prometheus.Registerer) *Telemetry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &Telemetry{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return t
	}
	factory := promauto.With(reg)
	t.runsStarted = factory.NewCounter(prometheus.CounterOpts{
		Name: "reflow_runs_started_total",
		Help: "Workflow runs started.",
	})
	t.runsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reflow_runs_finished_total",
		Help: "Workflow runs finished, by outcome.",
	}, []string{"outcome"})
	t.runIterations = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "reflow_run_iterations",
		Help:    "Iterations consumed per workflow run.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
	t.taskExecuted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reflow_task_executions_total",
		Help: "Task executions, by tool and result status.",
	}, []string{"tool", "status"})
	t.llmRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reflow_llm_requests_total",
		Help: "Requests to the text-generation service, by outcome.",
	}, []string{"outcome"})
	t.llmTokens = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reflow_llm_tokens_total",
		Help: "Tokens exchanged with the text-generation service.",
	}, []string{"direction"})
	return t
}

// RunStarted implements workflow.Observer.
func (t *Telemetry) RunStarted() {
	if t.runsStarted != nil {
		t.runsStarted.Inc()
	}
}

// RunFinished implements workflow.Observer.
func (t *Telemetry) RunFinished(success bool, iterations int) {
	if t.runsFinished == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.runsFinished.WithLabelValues(outcome).Inc()
	t.runIterations.Observe(float64(iterations))
}

// TaskExecuted implements workflow.Observer.
func (t *Telemetry) TaskExecuted(tool, status string) {
	if t.taskExecuted != nil {
		t.taskExecuted.WithLabelValues(tool, status).Inc()
	}
}

// RecordLLMUsage accounts one request to the text-generation service.
func (t *Telemetry) RecordLLMUsage(promptTokens, completionTokens int64, cost float64, err error) {
	if t.llmRequests != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		t.llmRequests.WithLabelValues(outcome).Inc()
		t.llmTokens.WithLabelValues("prompt").Add(float64(promptTokens))
		t.llmTokens.WithLabelValues("completion").Add(float64(completionTokens))
	}
	if t.cfg.CostTracking {
		t.mu.Lock()
		t.totalCost += cost
		t.totalTokens += promptTokens + completionTokens
		t.mu.Unlock()
	}
}

// CostSummary returns accumulated LLM spend since process start.
func (t *Telemetry) CostSummary() (cost float64, tokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost, t.totalTokens
}
