package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/agent"
	"github.com/reflow-agent/reflow/internal/queue/streams"
	"github.com/reflow-agent/reflow/internal/store"
	"github.com/reflow-agent/reflow/internal/telemetry"
	"github.com/reflow-agent/reflow/internal/worker"
)

// Run wires the full HTTP service: storage, queue, workflow controller,
// handlers and scheduler, then blocks serving requests.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrate: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	tele := telemetry.New(cfg.Telemetry, log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags), prometheus.DefaultRegisterer)

	workflowLogger := log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags)
	controller, err := agent.BuildController(cfg, workflowLogger, tele, tele)
	if err != nil {
		return err
	}
	runner := &worker.Runner{
		Store:      st,
		Controller: controller,
		Logger:     workflowLogger,
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	var rdb *redis.Client
	var publisher *streams.Publisher
	if cfg.Queue.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Queue.Redis.Addr, err)
		}
		if err := streams.EnsureGroup(ctx, rdb, cfg.Queue.Redis.Stream, cfg.Queue.Redis.Group); err != nil {
			return fmt.Errorf("ensure consumer group: %w", err)
		}
		publisher = streams.NewPublisher(rdb)
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	rh := NewRunsHandler(cfg, st, runner, publisher)
	rh.Register(api.Group("/runs"), auth.Secret)

	sh := NewSchedulesHandler(cfg, st)
	sh.Register(api.Group("/schedules"), auth.Secret)

	if cfg.Scheduler.Enabled {
		if publisher == nil {
			return fmt.Errorf("scheduler requires queue.redis.addr")
		}
		sched := &Scheduler{
			Store:     st,
			Rdb:       rdb,
			Publisher: publisher,
			Cfg:       cfg,
			Stop:      make(chan struct{}),
		}
		sched.Start()
	}

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
