package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricToolCallsTotal      = "bugflow.mcp.tool.calls.total"
	metricToolCallDuration    = "bugflow.mcp.tool.call.duration.seconds"
	metricToolErrorsTotal     = "bugflow.mcp.tool.errors.total"
	metricToolInflight        = "bugflow.mcp.tool.inflight"
	metricToolIsolatedRecords = "bugflow.mcp.tool.isolated_records.total"

	attrTool    = "tool"
	attrOutcome = "outcome"
)

// Outcome classifies how a tool call ended.
type Outcome string

const (
	// OutcomeOK is a call that produced its result with every record derived.
	OutcomeOK Outcome = "ok"
	// OutcomeIsolated is a series call that succeeded after excluding faulting records.
	OutcomeIsolated Outcome = "isolated"
	// OutcomeRejected is a call refused before loading records: bad paths, ids or overrides.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFaulted is a call aborted by a record fault.
	OutcomeFaulted Outcome = "faulted"
	// OutcomeFailed is any other failure, such as unreadable or malformed record files.
	OutcomeFailed Outcome = "failed"
)

// Failed reports whether the outcome counts as an error.
func (o Outcome) Failed() bool {
	return o != OutcomeOK && o != OutcomeIsolated
}

// durationBucketBoundaries covers 1ms to 300s: small fixtures through
// multi-million record batches.
var durationBucketBoundaries = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// ToolCall describes one completed MCP tool invocation.
type ToolCall struct {
	Tool     string
	Outcome  Outcome
	Duration time.Duration
	// Isolated is the number of records excluded under the isolate fault policy.
	Isolated int
}

// ToolMetrics holds the OTel instruments for MCP tool calls.
type ToolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	inflight metric.Int64UpDownCounter
	isolated metric.Int64Counter
}

// NewToolMetrics creates tool call instruments from the given meter.
func NewToolMetrics(mt metric.Meter) (*ToolMetrics, error) {
	calls, err := mt.Int64Counter(metricToolCallsTotal,
		metric.WithDescription("Tool calls by tool and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolCallsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricToolCallDuration,
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolCallDuration, err)
	}

	errs, err := mt.Int64Counter(metricToolErrorsTotal,
		metric.WithDescription("Tool calls that returned an error result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolErrorsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricToolInflight,
		metric.WithDescription("Tool calls in progress"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolInflight, err)
	}

	isolated, err := mt.Int64Counter(metricToolIsolatedRecords,
		metric.WithDescription("Records excluded from tool results by the isolate fault policy"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolIsolatedRecords, err)
	}

	return &ToolMetrics{
		calls:    calls,
		duration: duration,
		errors:   errs,
		inflight: inflight,
		isolated: isolated,
	}, nil
}

// RecordCall records a completed tool call.
func (tm *ToolMetrics) RecordCall(ctx context.Context, call ToolCall) {
	tool := attribute.String(attrTool, call.Tool)
	attrs := metric.WithAttributes(tool, attribute.String(attrOutcome, string(call.Outcome)))

	tm.calls.Add(ctx, 1, attrs)
	tm.duration.Record(ctx, call.Duration.Seconds(), attrs)

	if call.Outcome.Failed() {
		tm.errors.Add(ctx, 1, attrs)
	}

	if call.Isolated > 0 {
		tm.isolated.Add(ctx, int64(call.Isolated), metric.WithAttributes(tool))
	}
}

// TrackInflight increments the in-flight gauge of tool and returns a function to decrement it.
func (tm *ToolMetrics) TrackInflight(ctx context.Context, tool string) func() {
	attrs := metric.WithAttributes(attribute.String(attrTool, tool))
	tm.inflight.Add(ctx, 1, attrs)

	return func() {
		tm.inflight.Add(ctx, -1, attrs)
	}
}
