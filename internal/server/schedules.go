package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/runtime"
	"github.com/reflow-agent/reflow/internal/store"
)

// SchedulesHandler manages recurring queries dispatched by the scheduler.
type SchedulesHandler struct {
	store *store.Store
	cfg   *config.Config
}

func NewSchedulesHandler(cfg *config.Config, st *store.Store) *SchedulesHandler {
	return &SchedulesHandler{store: st, cfg: cfg}
}

func (h *SchedulesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:schedule_id", h.get)
	g.PATCH("/:schedule_id", h.update)
	g.DELETE("/:schedule_id", h.remove)
}

// validCronSpec accepts standard cron expressions plus the @hourly/@daily
// shorthands the scheduler understands.
func validCronSpec(spec string) bool {
	switch spec {
	case "@hourly", "@daily":
		return true
	}
	_, err := cronexpr.Parse(spec)
	return err == nil
}

func (h *SchedulesHandler) create(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Query = strings.TrimSpace(req.Query)
	req.CronSpec = strings.TrimSpace(req.CronSpec)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.CronSpec == "" || !validCronSpec(req.CronSpec) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cron expression")
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = h.cfg.Workflow.DefaultMaxIterations
	}
	if cap := h.cfg.Workflow.MaxIterationsCap; cap > 0 && maxIterations > cap {
		maxIterations = cap
	}
	userID := c.Get("user_id").(string)
	id, err := h.store.CreateSchedule(c.Request().Context(), userID, req.Query, req.CronSpec, maxIterations)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *SchedulesHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.store.ListSchedules(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SchedulesHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sched, err := h.store.GetSchedule(c.Request().Context(), c.Param("schedule_id"), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "schedule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *SchedulesHandler) update(c echo.Context) error {
	var req ScheduleUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	userID := c.Get("user_id").(string)
	if err := h.store.SetScheduleEnabled(c.Request().Context(), c.Param("schedule_id"), userID, *req.Enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "schedule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *SchedulesHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.store.DeleteSchedule(c.Request().Context(), c.Param("schedule_id"), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "schedule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
