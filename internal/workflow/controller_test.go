package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type stubPlanner struct {
	tasks []Task
	err   error
	calls int
}

func (p *stubPlanner) GeneratePlan(ctx context.Context, query string) ([]Task, error) {
	p.calls++
	return p.tasks, p.err
}

type stubExecutor struct {
	payloads map[string]interface{}
	fail     map[string]string
	calls    int
}

func (e *stubExecutor) ExecuteTask(ctx context.Context, task Task) Result {
	e.calls++
	key := task.ID.String()
	if msg, ok := e.fail[key]; ok {
		return Result{TaskID: task.ID, Payload: msg, Status: StatusFailed}
	}
	payload, ok := e.payloads[key]
	if !ok {
		payload = "ok"
	}
	return Result{TaskID: task.ID, Payload: payload, Status: StatusCompleted}
}

type stubReflector struct {
	verdicts []Reflection
	err      error
	calls    int
}

func (r *stubReflector) Evaluate(ctx context.Context, query string, tasks []Task, results []Result) (Reflection, error) {
	r.calls++
	if r.err != nil {
		return Reflection{}, r.err
	}
	i := r.calls - 1
	if i >= len(r.verdicts) {
		i = len(r.verdicts) - 1
	}
	return r.verdicts[i], nil
}

type countingObserver struct {
	started  int
	finished int
	success  bool
	tasks    int
}

func (o *countingObserver) RunStarted()                             { o.started++ }
func (o *countingObserver) RunFinished(success bool, _ int)         { o.finished++; o.success = success }
func (o *countingObserver) TaskExecuted(tool, status string)        { o.tasks++ }

func calcTask(id int64, expr string) Task {
	return Task{ID: IntID(id), Description: expr, Tool: ToolCalculator, Status: StatusPending}
}

func TestRunSingleRoundSuccess(t *testing.T) {
	planner := &stubPlanner{tasks: []Task{calcTask(1, "2+2")}}
	executor := &stubExecutor{payloads: map[string]interface{}{"1": 4.0}}
	reflector := &stubReflector{verdicts: []Reflection{{Success: true, Complete: true}}}
	obs := &countingObserver{}
	c := NewController(planner, executor, reflector, discard(), obs)

	out := c.Run(context.Background(), "what is 2+2", 3)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Response != "Successfully completed tasks yielded:\n1. 4.0" {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	if executor.calls != 1 || reflector.calls != 1 {
		t.Fatalf("expected one round, got executor=%d reflector=%d", executor.calls, reflector.calls)
	}
	if obs.started != 1 || obs.finished != 1 || !obs.success || obs.tasks != 1 {
		t.Fatalf("observer not notified correctly: %+v", obs)
	}
}

func TestRunRefinementLoop(t *testing.T) {
	planner := &stubPlanner{tasks: []Task{calcTask(1, "2+")}}
	executor := &stubExecutor{
		fail:     map[string]string{"1": "unexpected end of expression"},
		payloads: map[string]interface{}{"2": 4.0},
	}
	one := IntID(1)
	reflector := &stubReflector{verdicts: []Reflection{
		{
			Success:  false,
			Complete: false,
			Feedback: "expression malformed",
			Refinements: []Refinement{
				{Action: ActionRemove, TaskID: &one},
				{Action: ActionAdd, Details: []byte(`{"id":2,"description":"2+2","tool":"calculator"}`)},
			},
		},
		{Success: true, Complete: true},
	}}
	c := NewController(planner, executor, reflector, discard(), nil)

	out := c.Run(context.Background(), "what is 2+2", 3)
	if !out.Success {
		t.Fatalf("expected success after refinement, got %+v", out)
	}
	if reflector.calls != 2 {
		t.Fatalf("expected 2 reflection rounds, got %d", reflector.calls)
	}
	if len(out.Tasks) != 1 {
		t.Fatalf("expected refined single-task list, got %d", len(out.Tasks))
	}
	if n, _ := out.Tasks[0].ID.Int(); n != 2 {
		t.Fatalf("expected refined task id 2, got %s", out.Tasks[0].ID)
	}
	if planner.calls != 1 {
		t.Fatalf("replanning must not happen, planner called %d times", planner.calls)
	}
}

func TestRunIterationBudget(t *testing.T) {
	planner := &stubPlanner{tasks: []Task{calcTask(1, "2+")}}
	executor := &stubExecutor{fail: map[string]string{"1": "bad expression"}}
	one := IntID(1)
	// Reflector always wants another round.
	reflector := &stubReflector{verdicts: []Reflection{{
		Refinements: []Refinement{{Action: ActionModify, TaskID: &one, Details: []byte(`{"description":"2+"}`)}},
	}}}
	c := NewController(planner, executor, reflector, discard(), nil)

	out := c.Run(context.Background(), "q", 3)
	if reflector.calls != 3 {
		t.Fatalf("expected exactly 3 rounds, got %d", reflector.calls)
	}
	// Task failures are per-task, not fatal: the run succeeds even
	// though the budget ran out.
	if !out.Success {
		t.Fatalf("budget exhaustion without a fatal error should still succeed: %+v", out)
	}
	if out.Response == "" {
		t.Fatal("expected a synthesized response")
	}
}

func TestRunAllCompletedButIncompleteEnds(t *testing.T) {
	planner := &stubPlanner{tasks: []Task{calcTask(1, "2+2")}}
	executor := &stubExecutor{payloads: map[string]interface{}{"1": 4.0}}
	one := IntID(1)
	// Incomplete verdict with refinements, but every task succeeded:
	// refining a fully successful round can loop forever.
	reflector := &stubReflector{verdicts: []Reflection{{
		Success:     true,
		Complete:    false,
		Refinements: []Refinement{{Action: ActionModify, TaskID: &one, Details: []byte(`{"description":"2+3"}`)}},
	}}}
	c := NewController(planner, executor, reflector, discard(), nil)

	out := c.Run(context.Background(), "q", 5)
	if reflector.calls != 1 {
		t.Fatalf("expected a single round, got %d", reflector.calls)
	}
	if !out.Success {
		t.Fatalf("completed results should report success, got %+v", out)
	}
}

func TestRunEmptyPlanVacuouslyEnds(t *testing.T) {
	planner := &stubPlanner{}
	executor := &stubExecutor{}
	reflector := &stubReflector{verdicts: []Reflection{{}}}
	c := NewController(planner, executor, reflector, discard(), nil)

	out := c.Run(context.Background(), "q", 3)
	// Zero results are vacuously all-completed; the run must end after
	// one round rather than spinning.
	if executor.calls != 0 {
		t.Fatalf("nothing should execute on an empty plan, got %d calls", executor.calls)
	}
	if reflector.calls != 0 {
		t.Fatalf("nothing to reflect on an empty plan, got %d calls", reflector.calls)
	}
	if !out.Success {
		t.Fatalf("empty plan is not an error: %+v", out)
	}
	if out.Response != "no tasks were planned\nNo tasks were planned or executed." {
		t.Fatalf("unexpected response: %q", out.Response)
	}
}

func TestRunPlanningErrorFatal(t *testing.T) {
	planner := &stubPlanner{err: errors.New("model unreachable")}
	executor := &stubExecutor{}
	reflector := &stubReflector{verdicts: []Reflection{{Success: true, Complete: true}}}
	c := NewController(planner, executor, reflector, discard(), nil)

	out := c.Run(context.Background(), "q", 3)
	if out.Success {
		t.Fatal("planning failure must fail the run")
	}
	if out.Response != "critical error during task planning: model unreachable" {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	if reflector.calls != 0 {
		t.Fatalf("reflection must be skipped on fatal errors, got %d calls", reflector.calls)
	}
}

func TestRunReflectionErrorFatal(t *testing.T) {
	planner := &stubPlanner{tasks: []Task{calcTask(1, "2+2")}}
	executor := &stubExecutor{payloads: map[string]interface{}{"1": 4.0}}
	reflector := &stubReflector{err: errors.New("verdict missing required fields")}
	c := NewController(planner, executor, reflector, discard(), nil)

	out := c.Run(context.Background(), "q", 3)
	if out.Success {
		t.Fatal("reflection failure must fail the run")
	}
	if out.Response != "critical error during result reflection: verdict missing required fields" {
		t.Fatalf("unexpected response: %q", out.Response)
	}
}

type panicExecutor struct{}

func (panicExecutor) ExecuteTask(ctx context.Context, task Task) Result {
	panic(fmt.Sprintf("boom on %s", task.ID))
}

func TestRunRecoversFromPanic(t *testing.T) {
	planner := &stubPlanner{tasks: []Task{calcTask(1, "2+2")}}
	reflector := &stubReflector{verdicts: []Reflection{{}}}
	obs := &countingObserver{}
	c := NewController(planner, panicExecutor{}, reflector, discard(), obs)

	out := c.Run(context.Background(), "q", 3)
	if out.Success {
		t.Fatal("panicking run must not report success")
	}
	if obs.finished != 1 {
		t.Fatalf("observer must still see the run finish, got %d", obs.finished)
	}
}
