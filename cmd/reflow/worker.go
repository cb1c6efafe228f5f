package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/agent"
	"github.com/reflow-agent/reflow/internal/queue/streams"
	"github.com/reflow-agent/reflow/internal/store"
	"github.com/reflow-agent/reflow/internal/telemetry"
	"github.com/reflow-agent/reflow/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var consumerName string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Consume queued runs from the stream and execute them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Queue.Redis.Addr == "" {
				return fmt.Errorf("queue not configured (queue.redis.addr)")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{
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

			logger := log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
			tele := telemetry.New(cfg.Telemetry, log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags), prometheus.NewRegistry())
			controller, err := agent.BuildController(cfg, logger, tele, tele)
			if err != nil {
				return err
			}
			runner := &worker.Runner{Store: st, Controller: controller, Logger: logger}

			if consumerName == "" {
				host, _ := os.Hostname()
				consumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
			}
			cons := streams.NewConsumer(rdb, cfg.Queue.Redis.Group, consumerName)
			proc := worker.NewProcessor(logger, cons, runner, cfg.Queue.Redis.Stream, cfg.Workflow.MaxIterationsCap)
			logger.Printf("consuming %s as %s/%s", cfg.Queue.Redis.Stream, cfg.Queue.Redis.Group, consumerName)
			return proc.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&consumerName, "name", "", "consumer name (defaults to hostname-pid)")
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return cmd
}
