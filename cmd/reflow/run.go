package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/agent"
	"github.com/reflow-agent/reflow/internal/telemetry"
)

func runCMD() *cobra.Command {
	var cfgPath string
	var maxIterations int
	var run = &cobra.Command{
		Use:   "run [query]",
		Short: "Execute a single query and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			logger := log.New(os.Stderr, "[WORKFLOW] ", log.LstdFlags)
			tele := telemetry.New(cfg.Telemetry, log.New(os.Stderr, "[TELEMETRY] ", log.LstdFlags), prometheus.NewRegistry())
			controller, err := agent.BuildController(cfg, logger, tele, tele)
			if err != nil {
				return err
			}

			if maxIterations <= 0 {
				maxIterations = cfg.Workflow.DefaultMaxIterations
			}
			if cap := cfg.Workflow.MaxIterationsCap; cap > 0 && maxIterations > cap {
				maxIterations = cap
			}

			query := strings.Join(args, " ")
			outcome := controller.Run(context.Background(), query, maxIterations)
			fmt.Println(outcome.Response)
			if cfg.Telemetry.CostTracking {
				cost, tokens := tele.CostSummary()
				logger.Printf("llm usage: %d tokens, $%.4f estimated", tokens, cost)
			}
			if !outcome.Success {
				os.Exit(1)
			}
			return nil
		},
	}
	run.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget (defaults to config)")
	run.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return run
}
