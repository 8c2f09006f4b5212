package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

const tracerName = "bugflow"

// FaultPolicy decides what a per-record fault does to the batch.
type FaultPolicy string

const (
	// FaultAbort stops the batch at the first fault and returns no series.
	FaultAbort FaultPolicy = "abort"
	// FaultIsolate drops the faulting record from aggregation and continues.
	FaultIsolate FaultPolicy = "isolate"
)

// ErrUnknownFaultPolicy is returned for an unrecognized fault policy name.
var ErrUnknownFaultPolicy = errors.New("unknown fault policy")

// ParseFaultPolicy parses a fault policy name. Empty means FaultAbort.
func ParseFaultPolicy(name string) (FaultPolicy, error) {
	switch FaultPolicy(name) {
	case "", FaultAbort:
		return FaultAbort, nil
	case FaultIsolate:
		return FaultIsolate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFaultPolicy, name)
	}
}

// runNamespace scopes content-derived run identifiers.
var runNamespace = uuid.MustParse("6f1c2b7e-3c1a-4f7e-9a51-0d2c8e4b9f10")

// Options configures a pipeline run.
type Options struct {
	// Vocabulary holds the tracker-specific values the stage rules use.
	Vocabulary workflow.Vocabulary
	// Background selects records folded into background population at their
	// current stage instead of being replayed. Nil selects none.
	Background tracker.Predicate
	// Start is the processing window start; see NewAggregator.
	Start time.Time
	// FaultPolicy defaults to FaultAbort.
	FaultPolicy FaultPolicy
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarizes a run.
type Stats struct {
	Records    int           `json:"records"    yaml:"records"`
	Timelines  int           `json:"timelines"  yaml:"timelines"`
	Background int           `json:"background" yaml:"background"`
	Faulted    int           `json:"faulted"    yaml:"faulted"`
	Candidates int           `json:"candidates" yaml:"candidates"`
	Committed  int           `json:"committed"  yaml:"committed"`
	Discarded  int           `json:"discarded"  yaml:"discarded"`
	Duration   time.Duration `json:"-"          yaml:"-"`
}

// Result is the output of a run.
type Result struct {
	// RunID is derived from the input and options; identical batches share it.
	RunID     string               `json:"run_id"              yaml:"run_id"`
	Series    Series               `json:"series"              yaml:"series"`
	Timelines []*workflow.Timeline `json:"timelines,omitempty" yaml:"timelines,omitempty"`
	Faults    []*workflow.Fault    `json:"faults,omitempty"    yaml:"faults,omitempty"`
	Stats     Stats                `json:"stats"               yaml:"stats"`
}

// Run derives every record's timeline, merges them, and aggregates daily
// snapshots. Under FaultAbort the first fault is returned as the error.
func Run(ctx context.Context, records []tracker.Record, opts Options) (*Result, error) {
	started := time.Now()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := ParseFaultPolicy(string(opts.FaultPolicy))
	if err != nil {
		return nil, err
	}

	background := opts.Background
	if background == nil {
		background = func(*tracker.Record) bool { return false }
	}

	tr := otel.Tracer(tracerName)

	ctx, span := tr.Start(ctx, "bugflow.pipeline",
		trace.WithAttributes(
			attribute.Int("pipeline.records", len(records)),
			attribute.String("pipeline.fault_policy", string(policy)),
		))
	defer span.End()

	res := &Result{
		RunID: runID(records, opts.Start, policy),
		Stats: Stats{Records: len(records)},
	}

	agg := NewAggregator(opts.Start)
	builder := workflow.NewBuilder(opts.Vocabulary)

	_, deriveSpan := tr.Start(ctx, "bugflow.derive")

	for i := range records {
		rec := &records[i]

		faultErr := derive(rec, background(rec), builder, agg, res)
		if faultErr == nil {
			continue
		}

		fault := asFault(rec.ID, faultErr)

		if policy == FaultAbort {
			deriveSpan.End()
			span.RecordError(fault)
			span.SetStatus(codes.Error, fault.Kind)

			return nil, fmt.Errorf("pipeline aborted: %w", fault)
		}

		logger.WarnContext(ctx, "record excluded", "record", fault.RecordID, "kind", fault.Kind, "detail", fault.Detail)

		res.Faults = append(res.Faults, fault)
		res.Stats.Faulted++
	}

	deriveSpan.End()

	_, aggSpan := tr.Start(ctx, "bugflow.aggregate")

	agg.Seed(workflow.Nothing, len(res.Timelines))

	for _, ev := range Merge(res.Timelines) {
		agg.Add(ev)
	}

	res.Series = agg.Series()

	aggSpan.SetAttributes(attribute.Int("aggregate.days", res.Series.Len()))
	aggSpan.End()

	res.Stats.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int("pipeline.timelines", res.Stats.Timelines),
		attribute.Int("pipeline.faulted", res.Stats.Faulted),
	)

	logger.InfoContext(ctx, "pipeline complete",
		"run_id", res.RunID,
		"records", res.Stats.Records,
		"timelines", res.Stats.Timelines,
		"background", res.Stats.Background,
		"faulted", res.Stats.Faulted,
		"days", res.Series.Len(),
		"duration", res.Stats.Duration)

	return res, nil
}

// derive routes one record into the background population or a timeline.
func derive(rec *tracker.Record, isBackground bool, builder *workflow.Builder, agg *Aggregator, res *Result) error {
	if isBackground {
		stage, err := builder.Vocabulary().CurrentStage(rec)
		if err != nil {
			return err
		}

		agg.Seed(stage, 1)
		res.Stats.Background++

		return nil
	}

	tl, err := builder.Build(rec)
	if err != nil {
		return err
	}

	res.Timelines = append(res.Timelines, tl)
	res.Stats.Timelines++
	res.Stats.Candidates += tl.Candidates
	res.Stats.Committed += len(tl.Transitions)
	res.Stats.Discarded += tl.Discarded

	return nil
}

func asFault(recordID int64, err error) *workflow.Fault {
	var fault *workflow.Fault
	if errors.As(err, &fault) {
		return fault
	}

	return workflow.NewFault(recordID, err)
}

// runID fingerprints the batch so reruns on the same input get the same id.
func runID(records []tracker.Record, start time.Time, policy FaultPolicy) string {
	buf := make([]byte, 0, len(records)*24+32)
	buf = append(buf, start.UTC().Format(time.DateOnly)...)
	buf = append(buf, policy...)

	for i := range records {
		buf = strconv.AppendInt(buf, records[i].ID, 36)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, records[i].LastChangeTime.UnixNano(), 36)
		buf = append(buf, ';')
	}

	return uuid.NewSHA1(runNamespace, buf).String()
}
