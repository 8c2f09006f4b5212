// Package commands implements CLI command handlers for bugflow.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugflow/pkg/batch"
	"github.com/Sumatoshi-tech/bugflow/pkg/config"
	"github.com/Sumatoshi-tech/bugflow/pkg/observability"
	"github.com/Sumatoshi-tech/bugflow/pkg/persist"
	"github.com/Sumatoshi-tech/bugflow/pkg/render"
	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/store"
)

// RunCommand holds the flags of the run command. Flags left unset keep the
// configured value.
type RunCommand struct {
	configPath  string
	format      string
	theme       string
	rows        int
	output      string
	startDate   string
	products    []string
	faultPolicy string
	timelines   bool
	saveDir     string
	saveCodec   string
	storeDSN    string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run <records>...",
		Short: "Replay defect records into daily workflow stage counts",
		Long: `Load defect tracker records (JSON array or JSON lines, optionally .lz4),
replay each record's history into workflow stage transitions and render the
daily population of every stage.`,
		Args: cobra.MinimumNArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVarP(&rc.configPath, "config", "c", "", "Config file (default: bugflow.yaml in ., ./config, /etc/bugflow)")
	cmd.Flags().StringVarP(&rc.format, "format", "f", "", "Output format: text, json, yaml, plot")
	cmd.Flags().StringVar(&rc.theme, "theme", "", "Plot theme: dark, light")
	cmd.Flags().IntVar(&rc.rows, "rows", 0, "Trailing days shown in text output (0 = configured)")
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "Write output to file instead of stdout")
	cmd.Flags().StringVar(&rc.startDate, "start", "", "Window start date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&rc.products, "products", nil, "Only include these products")
	cmd.Flags().StringVar(&rc.faultPolicy, "fault-policy", "", "Per-record fault handling: abort, isolate")
	cmd.Flags().BoolVar(&rc.timelines, "timelines", false, "Include per-record transitions in json/yaml output")
	cmd.Flags().StringVar(&rc.saveDir, "save-dir", "", "Archive the result in this directory")
	cmd.Flags().StringVar(&rc.saveCodec, "save-codec", "json.lz4", "Archive codec: json, yaml, json.lz4, yaml.lz4")
	cmd.Flags().StringVar(&rc.storeDSN, "store", "", "SQLite DSN to export the result to")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return err
	}

	rc.applyOverrides(cfg)

	err = config.Validate(cfg)
	if err != nil {
		return err
	}

	providers, err := initObservability(cfg, observability.ModeCLI, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	runner := &batch.Runner{Config: cfg, Logger: providers.Logger, Metrics: metrics}

	closeSinks, err := rc.attachSinks(cmd.Context(), cfg, runner)
	if err != nil {
		return err
	}
	defer closeSinks()

	res, err := runner.Run(cmd.Context(), args)
	if err != nil {
		return err
	}

	return rc.write(cmd.OutOrStdout(), cfg, res)
}

func (rc *RunCommand) applyOverrides(cfg *config.Config) {
	if rc.format != "" {
		cfg.Output.Format = rc.format
	}

	if rc.theme != "" {
		cfg.Output.Theme = rc.theme
	}

	if rc.rows > 0 {
		cfg.Output.Rows = rc.rows
	}

	if rc.startDate != "" {
		cfg.Window.StartDate = rc.startDate
	}

	if len(rc.products) > 0 {
		cfg.Selection.Products = rc.products
	}

	if rc.faultPolicy != "" {
		cfg.Pipeline.FaultPolicy = rc.faultPolicy
	}

	if rc.storeDSN != "" {
		cfg.Store.DSN = rc.storeDSN
	}
}

// attachSinks adds the archive and store sinks. The returned func closes them.
func (rc *RunCommand) attachSinks(ctx context.Context, cfg *config.Config, runner *batch.Runner) (func(), error) {
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if rc.saveDir != "" {
		codec, err := persist.CodecFor(rc.saveCodec)
		if err != nil {
			return closeAll, err
		}

		archive, err := persist.NewArchive(rc.saveDir, codec)
		if err != nil {
			return closeAll, err
		}

		runner.Sinks = append(runner.Sinks, batch.SinkFunc(func(_ context.Context, res *series.Result) error {
			_, saveErr := archive.Save(res)

			return saveErr
		}))
	}

	if cfg.Store.DSN != "" {
		st, err := store.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return closeAll, err
		}

		closers = append(closers, func() { st.Close() })
		runner.Sinks = append(runner.Sinks, st)
	}

	return closeAll, nil
}

func (rc *RunCommand) write(stdout io.Writer, cfg *config.Config, res *series.Result) (err error) {
	out := stdout

	if rc.output != "" {
		file, createErr := os.Create(rc.output)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}

		defer func() {
			err = errors.Join(err, file.Close())
		}()

		out = file
	}

	return render.Write(out, res, render.Options{
		Format:    cfg.Output.Format,
		Theme:     render.Theme(cfg.Output.Theme),
		Rows:      cfg.Output.Rows,
		Timelines: rc.timelines,
	})
}
