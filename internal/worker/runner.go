package worker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/reflow-agent/reflow/internal/store"
	"github.com/reflow-agent/reflow/internal/workflow"
)

// StoreAPI captures the store methods required to persist run progress.
type StoreAPI interface {
	MarkRunRunning(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID string, status string, outcome json.RawMessage, errMsg *string) error
}

// Runner executes one workflow run end to end and records the result.
// It is shared by the HTTP trigger path, the queue worker and the
// scheduler.
type Runner struct {
	Store      StoreAPI
	Controller *workflow.Controller
	Logger     *log.Logger
}

// Execute drives the controller for one run and persists the outcome.
// The returned Outcome is valid even when persistence fails.
func (r *Runner) Execute(ctx context.Context, runID, query string, maxIterations int) workflow.Outcome {
	if r.Store != nil && runID != "" {
		if err := r.Store.MarkRunRunning(ctx, runID); err != nil {
			r.Logger.Printf("warn: mark run %s running: %v", runID, err)
		}
	}

	outcome := r.Controller.Run(ctx, query, maxIterations)

	if r.Store != nil && runID != "" {
		status := store.RunStatusSucceeded
		var errMsg *string
		if !outcome.Success {
			status = store.RunStatusFailed
			msg := outcome.Response
			errMsg = &msg
		}
		raw, err := json.Marshal(outcome)
		if err != nil {
			r.Logger.Printf("warn: encode outcome for run %s: %v", runID, err)
			raw = nil
		}
		if err := r.Store.FinishRun(ctx, runID, status, raw, errMsg); err != nil {
			r.Logger.Printf("warn: finish run %s: %v", runID, err)
		}
	}
	return outcome
}
