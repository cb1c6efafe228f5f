package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/reflow-agent/reflow/internal/workflow"
)

type fakeCapability struct {
	name    string
	payload interface{}
	errs    []error
	calls   int
}

func (f *fakeCapability) Name() string { return f.name }

func (f *fakeCapability) Invoke(ctx context.Context, input string) (interface{}, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.payload, nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestExecuteTaskSuccess(t *testing.T) {
	capability := &fakeCapability{name: "calculator", payload: 4.0}
	e := NewExecutor(NewRegistry(capability), testLogger())

	res := e.ExecuteTask(context.Background(), workflow.Task{
		ID: workflow.IntID(1), Description: "2+2", Tool: "calculator",
	})
	if res.Status != workflow.StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", res.Status, res.Payload)
	}
	if res.Payload.(float64) != 4.0 {
		t.Fatalf("unexpected payload: %v", res.Payload)
	}
	if capability.calls != 1 {
		t.Fatalf("expected single invocation, got %d", capability.calls)
	}
}

func TestExecuteTaskRetriesThenSucceeds(t *testing.T) {
	capability := &fakeCapability{
		name:    "search",
		payload: "found it",
		errs:    []error{errors.New("transient"), nil},
	}
	e := NewExecutor(NewRegistry(capability), testLogger())

	res := e.ExecuteTask(context.Background(), workflow.Task{
		ID: workflow.IntID(1), Description: "query", Tool: "search",
	})
	if res.Status != workflow.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s (%v)", res.Status, res.Payload)
	}
	if capability.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", capability.calls)
	}
}

func TestExecuteTaskUnknownTool(t *testing.T) {
	e := NewExecutor(NewRegistry(), testLogger())
	res := e.ExecuteTask(context.Background(), workflow.Task{
		ID: workflow.IntID(1), Description: "x", Tool: "teleport",
	})
	if res.Status != workflow.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.Payload != "unknown tool: teleport" {
		t.Fatalf("unexpected payload: %v", res.Payload)
	}
}

func TestExecuteTaskEmptyDescription(t *testing.T) {
	e := NewExecutor(NewRegistry(&fakeCapability{name: "search"}), testLogger())
	res := e.ExecuteTask(context.Background(), workflow.Task{ID: workflow.IntID(1), Tool: "search"})
	if res.Status != workflow.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
}

func TestExecuteTaskCancelledContextStopsRetries(t *testing.T) {
	capability := &fakeCapability{
		name: "search",
		errs: []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down")},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExecutor(NewRegistry(capability), testLogger())

	res := e.ExecuteTask(ctx, workflow.Task{
		ID: workflow.IntID(1), Description: "query", Tool: "search",
	})
	if res.Status != workflow.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if capability.calls != 1 {
		t.Fatalf("cancelled context must stop after the first attempt, got %d", capability.calls)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(&fakeCapability{name: "b"}, &fakeCapability{name: "a"})
	if _, ok := reg.Tool("a"); !ok {
		t.Fatal("capability a missing")
	}
	if _, ok := reg.Tool("zzz"); ok {
		t.Fatal("unexpected capability")
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names: %v", names)
	}
	var nilReg *Registry
	if _, ok := nilReg.Tool("a"); ok {
		t.Fatal("nil registry must be empty")
	}
}
