// Package batch wires record loading, selection, the pipeline and the result
// sinks into one run shared by the CLI and the MCP server.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/bugflow/pkg/config"
	"github.com/Sumatoshi-tech/bugflow/pkg/observability"
	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
)

// ErrNoInput is returned when a run is given no record files.
var ErrNoInput = errors.New("no record files given")

// Sink receives every successful result.
type Sink interface {
	Save(ctx context.Context, res *series.Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res *series.Result) error

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, res *series.Result) error {
	return f(ctx, res)
}

// Runner executes batches under one configuration.
type Runner struct {
	// Config must be validated; see config.LoadConfig.
	Config *config.Config
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *observability.PipelineMetrics
	// Sinks are called in order after a successful run.
	Sinks []Sink
}

// Run loads paths, applies the selection and runs the pipeline.
func (r *Runner) Run(ctx context.Context, paths []string) (*series.Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, span := otel.Tracer("bugflow").Start(ctx, "bugflow.batch",
		trace.WithAttributes(attribute.Int("batch.files", len(paths))))
	defer span.End()

	res, err := r.run(ctx, logger, paths)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")

		return nil, err
	}

	span.SetAttributes(attribute.String("batch.run_id", res.RunID))

	return res, nil
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, paths []string) (*series.Result, error) {
	loadOpts, err := r.Config.LoadOptions()
	if err != nil {
		return nil, err
	}

	records, err := tracker.LoadFiles(ctx, paths, loadOpts)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	loaded := len(records)
	records = r.Config.RecordSelection().Apply(records)

	logger.DebugContext(ctx, "records loaded", "files", len(paths), "loaded", loaded, "selected", len(records))

	opts, err := r.Config.PipelineOptions(logger)
	if err != nil {
		return nil, err
	}

	res, err := series.Run(ctx, records, opts)
	if err != nil {
		r.Metrics.RecordRun(ctx, observability.RunStats{Records: len(records)}, err)

		return nil, err
	}

	r.Metrics.RecordRun(ctx, observability.RunStats(res.Stats), nil)

	for _, sink := range r.Sinks {
		err = sink.Save(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("save result: %w", err)
		}
	}

	return res, nil
}
