package main

import (
	"github.com/spf13/cobra"

	"github.com/reflow-agent/reflow/config"
	srv "github.com/reflow-agent/reflow/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return serve
}
