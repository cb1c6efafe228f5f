package workflow

import (
	"context"
	"fmt"
	"log"
)

// Planner turns a query into a validated initial task list. A returned
// error means planning as a whole failed (infrastructure failure or
// structurally corrupt output); an empty list with a nil error is a
// legitimately empty plan.
type Planner interface {
	GeneratePlan(ctx context.Context, query string) ([]Task, error)
}

// Executor runs one task and always produces exactly one Result. All
// failure modes resolve to a Result with StatusFailed; no error crosses
// this boundary.
type Executor interface {
	ExecuteTask(ctx context.Context, task Task) Result
}

// Reflector judges the executed round against the original query.
type Reflector interface {
	Evaluate(ctx context.Context, query string, tasks []Task, results []Result) (Reflection, error)
}

// Observer receives workflow lifecycle events; implementations record
// metrics. All methods may be called from the run goroutine only.
type Observer interface {
	RunStarted()
	RunFinished(success bool, iterations int)
	TaskExecuted(tool, status string)
}

// Controller drives the plan→execute→reflect→(refine→execute→reflect)*→respond
// loop and owns the continue/stop decision. One Controller serves many
// concurrent runs: all per-run data lives in the State created inside Run.
type Controller struct {
	planner   Planner
	executor  Executor
	reflector Reflector
	logger    *log.Logger
	observer  Observer
}

// NewController wires the three adapters into a controller. observer may
// be nil.
func NewController(planner Planner, executor Executor, reflector Reflector, logger *log.Logger, observer Observer) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags)
	}
	return &Controller{
		planner:   planner,
		executor:  executor,
		reflector: reflector,
		logger:    logger,
		observer:  observer,
	}
}

type decision int

const (
	decideRefine decision = iota
	decideRespond
)

// Run executes one full workflow for a query. It never panics past this
// boundary and never returns an error: every failure mode is reported
// through the Outcome.
func (c *Controller) Run(ctx context.Context, query string, maxIterations int) (out Outcome) {
	if maxIterations < 1 {
		maxIterations = 1
	}
	st := newState(query, maxIterations)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("run aborted by internal failure: %v", r)
			out = Outcome{
				Success:  false,
				Response: fmt.Sprintf("unexpected workflow failure: %v", r),
				Tasks:    st.Tasks,
				Results:  st.Results,
			}
		}
		if c.observer != nil {
			c.observer.RunFinished(out.Success, st.Iteration)
		}
	}()

	if c.observer != nil {
		c.observer.RunStarted()
	}
	c.logger.Printf("starting run for query %q (max %d iterations)", query, maxIterations)

	c.planStep(ctx, st)
	for {
		c.executeStep(ctx, st)
		c.reflectStep(ctx, st)
		if c.decide(st) == decideRefine {
			c.refineStep(st)
			continue
		}
		c.respondStep(st)
		break
	}

	return Outcome{
		Success:  st.ErrMessage == "",
		Response: st.FinalResponse,
		Tasks:    st.Tasks,
		Results:  st.Results,
	}
}

// planStep populates the initial task list. A planning failure is fatal
// for the run but control still flows to execute so the state shape stays
// consistent.
func (c *Controller) planStep(ctx context.Context, st *State) {
	tasks, err := c.planner.GeneratePlan(ctx, st.Query)
	if err != nil {
		c.logger.Printf("planning failed: %v", err)
		st.Tasks = nil
		st.ErrMessage = fmt.Sprintf("critical error during task planning: %v", err)
		return
	}
	st.Tasks = tasks
	c.logger.Printf("planning produced %d tasks", len(tasks))
}

// executeStep runs every task in list order, collecting one result per
// task. Execution failures are per-task, never fatal to the round.
func (c *Controller) executeStep(ctx context.Context, st *State) {
	if len(st.Tasks) == 0 {
		c.logger.Printf("no tasks to execute, skipping execution step")
		st.Results = nil
		return
	}
	results := make([]Result, 0, len(st.Tasks))
	for i, task := range st.Tasks {
		c.logger.Printf("executing task %d/%d (id=%s tool=%s)", i+1, len(st.Tasks), task.ID, task.Tool)
		res := c.executor.ExecuteTask(ctx, task)
		results = append(results, res)
		if c.observer != nil {
			c.observer.TaskExecuted(task.Tool, string(res.Status))
		}
	}
	st.Results = results
}

// reflectStep obtains the verdict for the round. Reflection is skipped
// and a synthetic failing verdict substituted when a fatal error is
// already present or when nothing was planned at all. A malformed or
// unreachable reflector is fatal: a verdict we cannot trust must not
// drive the continuation decision.
func (c *Controller) reflectStep(ctx context.Context, st *State) {
	if st.ErrMessage != "" {
		c.logger.Printf("skipping reflection, fatal error present: %s", st.ErrMessage)
		st.Reflection = Reflection{Feedback: st.ErrMessage}
		return
	}
	if len(st.Results) == 0 && len(st.Tasks) == 0 {
		st.Reflection = Reflection{Feedback: "no tasks were planned"}
		return
	}
	verdict, err := c.reflector.Evaluate(ctx, st.Query, st.Tasks, st.Results)
	if err != nil {
		c.logger.Printf("reflection failed: %v", err)
		msg := fmt.Sprintf("critical error during result reflection: %v", err)
		st.Reflection = Reflection{Feedback: msg}
		st.ErrMessage = msg
		return
	}
	st.Reflection = verdict
	c.logger.Printf("reflection: success=%t complete=%t refinements=%d", verdict.Success, verdict.Complete, len(verdict.Refinements))
}

// decide increments the iteration counter and resolves the round to
// refine or respond, applying the rules in strict priority order.
func (c *Controller) decide(st *State) decision {
	st.Iteration++
	c.logger.Printf("iteration %d/%d, deciding", st.Iteration, st.MaxIterations)

	if st.ErrMessage != "" {
		return decideRespond
	}
	if st.Iteration >= st.MaxIterations {
		c.logger.Printf("iteration budget exhausted")
		return decideRespond
	}
	if st.Reflection.Complete && st.Reflection.Success {
		return decideRespond
	}
	// All tasks succeeding without a completion verdict ends the run;
	// refining a fully successful round can loop forever.
	if allCompleted(st.Results) && !st.Reflection.Complete {
		c.logger.Printf("all results completed but verdict incomplete, ending to prevent a loop")
		return decideRespond
	}
	if len(st.Reflection.Refinements) > 0 && st.Iteration < st.MaxIterations {
		return decideRefine
	}
	return decideRespond
}

// refineStep rewrites the task list and clears everything that described
// the previous round: stale results, the stale verdict, and any carried
// error no longer describe the new list.
func (c *Controller) refineStep(st *State) {
	st.Tasks = ApplyRefinements(st.Tasks, st.Reflection.Refinements, c.logger)
	st.Results = nil
	st.Reflection = Reflection{}
	st.ErrMessage = ""
}

func (c *Controller) respondStep(st *State) {
	st.FinalResponse = Synthesize(st)
	c.logger.Printf("run finished (success=%t)", st.ErrMessage == "")
}

func allCompleted(results []Result) bool {
	for _, r := range results {
		if r.Status != StatusCompleted {
			return false
		}
	}
	return true
}
