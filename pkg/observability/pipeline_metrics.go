package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRunsTotal        = "bugflow.pipeline.runs.total"
	metricRunDuration      = "bugflow.pipeline.run.duration.seconds"
	metricRecordsTotal     = "bugflow.pipeline.records.total"
	metricCandidatesTotal  = "bugflow.pipeline.candidates.total"
	metricTransitionsTotal = "bugflow.pipeline.transitions.total"

	attrRoute  = "route"
	attrStatus = "status"

	statusError = "error"
)

// PipelineMetrics holds OTel instruments for batch pipeline runs.
type PipelineMetrics struct {
	runsTotal        metric.Int64Counter
	runDuration      metric.Float64Histogram
	recordsTotal     metric.Int64Counter
	candidatesTotal  metric.Int64Counter
	transitionsTotal metric.Int64Counter
}

// RunStats is the per-run summary recorded as metrics. It mirrors
// series.Stats field for field so callers can convert directly.
type RunStats struct {
	Records    int
	Timelines  int
	Background int
	Faulted    int
	Candidates int
	Committed  int
	Discarded  int
	Duration   time.Duration
}

// NewPipelineMetrics creates pipeline instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	runs, err := mt.Int64Counter(metricRunsTotal,
		metric.WithDescription("Pipeline runs by status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunsTotal, err)
	}

	dur, err := mt.Float64Histogram(metricRunDuration,
		metric.WithDescription("Pipeline run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunDuration, err)
	}

	records, err := mt.Int64Counter(metricRecordsTotal,
		metric.WithDescription("Records processed by route"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRecordsTotal, err)
	}

	candidates, err := mt.Int64Counter(metricCandidatesTotal,
		metric.WithDescription("Stage candidates generated"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCandidatesTotal, err)
	}

	transitions, err := mt.Int64Counter(metricTransitionsTotal,
		metric.WithDescription("Stage candidates by fold outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTransitionsTotal, err)
	}

	return &PipelineMetrics{
		runsTotal:        runs,
		runDuration:      dur,
		recordsTotal:     records,
		candidatesTotal:  candidates,
		transitionsTotal: transitions,
	}, nil
}

// RecordRun records one completed run. A non-nil runErr counts the run as
// failed and skips the volume counters. Safe to call on a nil receiver.
func (pm *PipelineMetrics) RecordRun(ctx context.Context, stats RunStats, runErr error) {
	if pm == nil {
		return
	}

	status := "ok"
	if runErr != nil {
		status = statusError
	}

	pm.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
	pm.runDuration.Record(ctx, stats.Duration.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))

	if runErr != nil {
		return
	}

	route := func(name string) metric.AddOption {
		return metric.WithAttributes(attribute.String(attrRoute, name))
	}

	pm.recordsTotal.Add(ctx, int64(stats.Timelines), route("timeline"))
	pm.recordsTotal.Add(ctx, int64(stats.Background), route("background"))
	pm.recordsTotal.Add(ctx, int64(stats.Faulted), route("faulted"))

	pm.candidatesTotal.Add(ctx, int64(stats.Candidates))

	pm.transitionsTotal.Add(ctx, int64(stats.Committed), metric.WithAttributes(attribute.String(attrOutcome, "committed")))
	pm.transitionsTotal.Add(ctx, int64(stats.Discarded), metric.WithAttributes(attribute.String(attrOutcome, "discarded")))
}
