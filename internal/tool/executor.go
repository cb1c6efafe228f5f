package tool

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reflow-agent/reflow/internal/workflow"
)

const (
	retryMaxAttempts = 3
	retryInitial     = 2 * time.Second
	retryMaxInterval = 10 * time.Second
)

// Executor dispatches tasks to registered capabilities. It satisfies
// workflow.Executor: every failure mode folds into a failed Result, so
// a broken tool never aborts the surrounding run.
type Executor struct {
	registry *Registry
	logger   *log.Logger
}

func NewExecutor(registry *Registry, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags)
	}
	return &Executor{registry: registry, logger: logger}
}

// ExecuteTask implements workflow.Executor.
func (e *Executor) ExecuteTask(ctx context.Context, task workflow.Task) workflow.Result {
	if task.Description == "" {
		return e.failure(task, "task has no description")
	}
	capability, ok := e.registry.Tool(task.Tool)
	if !ok {
		return e.failure(task, fmt.Sprintf("unknown tool: %s", task.Tool))
	}

	var payload interface{}
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		payload, err = capability.Invoke(ctx, task.Description)
		if err != nil {
			e.logger.Printf("task %s attempt %d/%d failed: %v", task.ID, attempt, retryMaxAttempts, err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitial
	policy.MaxInterval = retryMaxInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, retryMaxAttempts-1), ctx)

	if err := backoff.Retry(operation, retry); err != nil {
		return e.failure(task, fmt.Sprintf("tool %s failed after %d attempts: %v", task.Tool, attempt, err))
	}
	return workflow.Result{TaskID: task.ID, Payload: payload, Status: workflow.StatusCompleted}
}

func (e *Executor) failure(task workflow.Task, msg string) workflow.Result {
	e.logger.Printf("task %s failed: %s", task.ID, msg)
	return workflow.Result{TaskID: task.ID, Payload: msg, Status: workflow.StatusFailed}
}
