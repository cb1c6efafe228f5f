package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/reflow-agent/reflow/internal/workflow"
)

func round() ([]workflow.Task, []workflow.Result) {
	tasks := []workflow.Task{{ID: workflow.IntID(1), Description: "2+2", Tool: workflow.ToolCalculator, Status: workflow.StatusPending}}
	results := []workflow.Result{{TaskID: workflow.IntID(1), Payload: 4.0, Status: workflow.StatusCompleted}}
	return tasks, results
}

func TestEvaluate(t *testing.T) {
	stub := &stubProvider{text: `{
		"success": true,
		"complete": true,
		"feedback": "the calculation answers the query",
		"refinements": []
	}`}
	r := NewReflector(stub, quiet(), nil)
	tasks, results := round()

	verdict, err := r.Evaluate(context.Background(), "what is 2+2", tasks, results)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Success || !verdict.Complete {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if !strings.Contains(stub.lastUser, "Original Query: what is 2+2") {
		t.Fatalf("query missing from prompt: %q", stub.lastUser)
	}
	if !strings.Contains(stub.lastUser, `"task_id": 1`) {
		t.Fatalf("results missing from prompt: %q", stub.lastUser)
	}
}

func TestEvaluateWithRefinements(t *testing.T) {
	stub := &stubProvider{text: "```json\n" + `{
		"success": false,
		"complete": false,
		"feedback": "search returned nothing useful",
		"refinements": [
			{"action": "modify", "task_id": 1, "details": "{\"description\": \"Search Tokyo average temperature in Celsius\"}"},
			{"action": "remove", "task_id": 2, "details": "Task failed repeatedly and is not critical"}
		]
	}` + "\n```"}
	r := NewReflector(stub, quiet(), nil)
	tasks, results := round()

	verdict, err := r.Evaluate(context.Background(), "q", tasks, results)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(verdict.Refinements) != 2 {
		t.Fatalf("expected 2 refinements, got %d", len(verdict.Refinements))
	}
	if verdict.Refinements[0].Action != workflow.ActionModify {
		t.Fatalf("unexpected action: %q", verdict.Refinements[0].Action)
	}
	if n, _ := verdict.Refinements[0].TaskID.Int(); n != 1 {
		t.Fatalf("unexpected task id: %v", verdict.Refinements[0].TaskID)
	}
	// The modify details arrive double-encoded and must survive as-is
	// for the refinement engine to decode.
	applied := workflow.ApplyRefinements(tasks, verdict.Refinements[:1], quiet())
	if applied[0].Description != "Search Tokyo average temperature in Celsius" {
		t.Fatalf("details did not round-trip: %q", applied[0].Description)
	}
}

func TestEvaluateMissingFieldFatal(t *testing.T) {
	// No "complete" field: the verdict cannot be trusted.
	stub := &stubProvider{text: `{"success": true, "feedback": "ok", "refinements": []}`}
	r := NewReflector(stub, quiet(), nil)
	tasks, results := round()

	_, err := r.Evaluate(context.Background(), "q", tasks, results)
	if !errors.Is(err, ErrReflection) {
		t.Fatalf("expected ErrReflection, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing required fields") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestEvaluateMalformedRefinements(t *testing.T) {
	stub := &stubProvider{text: `{"success": true, "complete": true, "feedback": "ok", "refinements": {"action": "add"}}`}
	r := NewReflector(stub, quiet(), nil)
	tasks, results := round()

	_, err := r.Evaluate(context.Background(), "q", tasks, results)
	if !errors.Is(err, ErrReflection) {
		t.Fatalf("expected ErrReflection, got %v", err)
	}
}

func TestEvaluateNullRefinements(t *testing.T) {
	// A JSON null would decode into an empty slice and silently drive
	// the continuation decision; it must be a hard failure instead.
	stub := &stubProvider{text: `{"success": false, "complete": false, "feedback": "retry", "refinements": null}`}
	r := NewReflector(stub, quiet(), nil)
	tasks, results := round()

	_, err := r.Evaluate(context.Background(), "q", tasks, results)
	if !errors.Is(err, ErrReflection) {
		t.Fatalf("expected ErrReflection, got %v", err)
	}
	if !strings.Contains(err.Error(), "must be an array") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestEvaluateProviderError(t *testing.T) {
	usage := &recordedUsage{}
	r := NewReflector(&stubProvider{err: errors.New("timeout")}, quiet(), usage)
	tasks, results := round()

	_, err := r.Evaluate(context.Background(), "q", tasks, results)
	if !errors.Is(err, ErrReflection) {
		t.Fatalf("expected ErrReflection, got %v", err)
	}
	if usage.calls != 1 || usage.errs != 1 {
		t.Fatalf("usage must be recorded on failure: %+v", usage)
	}
}

func TestEvaluateUndecodableVerdict(t *testing.T) {
	stub := &stubProvider{text: "everything looks great to me!"}
	r := NewReflector(stub, quiet(), nil)
	tasks, results := round()

	_, err := r.Evaluate(context.Background(), "q", tasks, results)
	if !errors.Is(err, ErrReflection) {
		t.Fatalf("expected ErrReflection, got %v", err)
	}
}
