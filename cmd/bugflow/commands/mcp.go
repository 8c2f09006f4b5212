package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugflow/pkg/config"
	"github.com/Sumatoshi-tech/bugflow/pkg/mcp"
	"github.com/Sumatoshi-tech/bugflow/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the bugflow pipeline as tools that AI agents
can discover and invoke:
  - bugflow_series: daily workflow stage counts of a set of record files
  - bugflow_timeline: committed stage transitions of a single record`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			cfg.Logging.Format = "json"
			if debug {
				cfg.Logging.Level = slog.LevelDebug.String()
			}

			providers, err := initObservability(cfg, observability.ModeMCP, cobraCmd.ErrOrStderr())
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			tools, err := observability.NewToolMetrics(providers.Meter)
			if err != nil {
				return err
			}

			pipeline, err := observability.NewPipelineMetrics(providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Config:   cfg,
				Logger:   providers.Logger,
				Metrics:  tools,
				Pipeline: pipeline,
				Tracer:   providers.Tracer,
			})

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
