package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/queue/streams"
	"github.com/reflow-agent/reflow/internal/runtime"
	"github.com/reflow-agent/reflow/internal/store"
	"github.com/reflow-agent/reflow/internal/worker"
)

// RunsHandler serves the run lifecycle endpoints: create (sync or queued),
// list, fetch and delete.
type RunsHandler struct {
	store     *store.Store
	runner    *worker.Runner
	publisher *streams.Publisher
	cfg       *config.Config
	logger    *log.Logger
}

func NewRunsHandler(cfg *config.Config, st *store.Store, runner *worker.Runner, publisher *streams.Publisher) *RunsHandler {
	return &RunsHandler{
		store:     st,
		runner:    runner,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
}

func (h *RunsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:run_id", h.get)
	g.DELETE("/:run_id", h.remove)
}

// resolveIterations clamps the requested iteration budget to the configured
// cap, falling back to the default when the request leaves it unset.
func (h *RunsHandler) resolveIterations(requested int) int {
	def := h.cfg.Workflow.DefaultMaxIterations
	cap := h.cfg.Workflow.MaxIterationsCap
	if requested <= 0 {
		return def
	}
	if cap > 0 && requested > cap {
		return cap
	}
	return requested
}

func (h *RunsHandler) create(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	userID := c.Get("user_id").(string)
	maxIterations := h.resolveIterations(req.MaxIterations)

	ctx := c.Request().Context()

	if req.Async {
		if h.publisher == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "queue not configured")
		}
		runID, err := h.store.CreateRun(ctx, userID, req.Query, maxIterations, store.RunStatusQueued)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		env, err := streams.NewRunRequested(streams.RunRequested{
			RunID:         runID,
			UserID:        userID,
			Query:         req.Query,
			MaxIterations: maxIterations,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if _, err := h.publisher.Publish(ctx, h.cfg.Queue.Redis.Stream, env); err != nil {
			h.logger.Printf("publish run %s failed: %v", runID, err)
			errMsg := "failed to enqueue run"
			_ = h.store.FinishRun(ctx, runID, store.RunStatusFailed, nil, &errMsg)
			return echo.NewHTTPError(http.StatusInternalServerError, errMsg)
		}
		return c.JSON(http.StatusAccepted, IDResponse{ID: runID})
	}

	if h.runner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "synchronous execution not configured")
	}
	runID, err := h.store.CreateRun(ctx, userID, req.Query, maxIterations, store.RunStatusRunning)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, 15*time.Minute)
	defer cancel()
	outcome := h.runner.Execute(execCtx, runID, req.Query, maxIterations)

	run, err := h.store.GetRun(ctx, runID, userID)
	if err != nil {
		// execution finished; fall back to the in-memory outcome
		h.logger.Printf("fetch run %s after execution failed: %v", runID, err)
		return c.JSON(http.StatusOK, outcome)
	}
	return c.JSON(http.StatusOK, run)
}

func (h *RunsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit := 0
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := h.store.ListRuns(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *RunsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	run, err := h.store.GetRun(c.Request().Context(), c.Param("run_id"), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *RunsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.store.DeleteRun(c.Request().Context(), c.Param("run_id"), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
