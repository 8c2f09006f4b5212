package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/bugflow/pkg/batch"
	"github.com/Sumatoshi-tech/bugflow/pkg/config"
	"github.com/Sumatoshi-tech/bugflow/pkg/observability"
	"github.com/Sumatoshi-tech/bugflow/pkg/render"
	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// Tool name constants.
const (
	ToolNameSeries   = "bugflow_series"
	ToolNameTimeline = "bugflow_timeline"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyRecordsPaths indicates no record file was given.
	ErrEmptyRecordsPaths = errors.New("records_paths parameter is required and must not be empty")
	// ErrRecordsPathNotAbsolute indicates a record file path is relative.
	ErrRecordsPathNotAbsolute = errors.New("records path must be an absolute path")
	// ErrRecordsNotFound indicates a record file does not exist.
	ErrRecordsNotFound = errors.New("records path does not exist")
	// ErrRecordNotFound indicates the requested record id is not in the input.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidRecordID indicates a non-positive record id.
	ErrInvalidRecordID = errors.New("record_id must be positive")
)

// SeriesInput is the input schema for the bugflow_series tool.
type SeriesInput struct {
	RecordsPaths []string `json:"records_paths"          jsonschema:"absolute paths to JSON or JSON-lines record files"`
	StartDate    string   `json:"start_date,omitempty"   jsonschema:"window start date YYYY-MM-DD; earlier records are background population"`
	Products     []string `json:"products,omitempty"     jsonschema:"optional product filter (default: all)"`
	FaultPolicy  string   `json:"fault_policy,omitempty" jsonschema:"abort (default) or isolate"`
	Timelines    bool     `json:"timelines,omitempty"    jsonschema:"include per-record transitions"`
}

// TimelineInput is the input schema for the bugflow_timeline tool.
type TimelineInput struct {
	RecordsPaths []string `json:"records_paths" jsonschema:"absolute paths to JSON or JSON-lines record files"`
	RecordID     int64    `json:"record_id"     jsonschema:"id of the record to derive"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`

	// Outcome and Isolated feed the tool metrics and are not sent to clients.
	Outcome  observability.Outcome `json:"-"`
	Isolated int                   `json:"-"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{Outcome: outcomeOf(err)}, nil
}

// outcomeOf classifies a tool error.
func outcomeOf(err error) observability.Outcome {
	var fault *workflow.Fault

	switch {
	case errors.As(err, &fault):
		return observability.OutcomeFaulted
	case errors.Is(err, ErrEmptyRecordsPaths),
		errors.Is(err, ErrRecordsPathNotAbsolute),
		errors.Is(err, ErrRecordsNotFound),
		errors.Is(err, ErrInvalidRecordID),
		errors.Is(err, ErrRecordNotFound),
		errors.Is(err, config.ErrInvalidStartDate),
		errors.Is(err, series.ErrUnknownFaultPolicy):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: json.RawMessage(data), Outcome: observability.OutcomeOK}, nil
}

func validateRecordsPaths(paths []string) error {
	if len(paths) == 0 {
		return ErrEmptyRecordsPaths
	}

	for _, path := range paths {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("%w: %s", ErrRecordsPathNotAbsolute, path)
		}

		_, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrRecordsNotFound, path)
		}
	}

	return nil
}

// baseConfig returns a copy of the server configuration.
func (s *Server) baseConfig() (*config.Config, error) {
	if s.config == nil {
		return config.LoadConfig("")
	}

	cfg := *s.config

	return &cfg, nil
}

// seriesConfig applies input overrides to the base configuration.
func (s *Server) seriesConfig(input SeriesInput) (*config.Config, error) {
	cfg, err := s.baseConfig()
	if err != nil {
		return nil, err
	}

	if input.StartDate != "" {
		_, err = time.Parse(time.DateOnly, input.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", config.ErrInvalidStartDate, input.StartDate)
		}

		cfg.Window.StartDate = input.StartDate
	}

	if len(input.Products) > 0 {
		cfg.Selection.Products = input.Products
	}

	if input.FaultPolicy != "" {
		_, err = series.ParseFaultPolicy(input.FaultPolicy)
		if err != nil {
			return nil, err
		}

		cfg.Pipeline.FaultPolicy = input.FaultPolicy
	}

	return cfg, nil
}

// handleSeries processes bugflow_series tool calls.
func (s *Server) handleSeries(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input SeriesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateRecordsPaths(input.RecordsPaths)
	if err != nil {
		return errorResult(err)
	}

	cfg, err := s.seriesConfig(input)
	if err != nil {
		return errorResult(err)
	}

	runner := &batch.Runner{Config: cfg, Logger: s.logger, Metrics: s.pipeline}

	res, err := runner.Run(ctx, input.RecordsPaths)
	if err != nil {
		return errorResult(err)
	}

	result, output, err := jsonResult(render.NewDocument(res, input.Timelines))
	if output.Outcome == observability.OutcomeOK && len(res.Faults) > 0 {
		output.Outcome = observability.OutcomeIsolated
		output.Isolated = len(res.Faults)
	}

	return result, output, err
}

// TimelineOutput is the bugflow_timeline result.
type TimelineOutput struct {
	RecordID    int64                 `json:"record_id"`
	Final       workflow.Stage        `json:"final"`
	Transitions []workflow.Transition `json:"transitions"`
	Candidates  int                   `json:"candidates"`
	Discarded   int                   `json:"discarded"`
}

// handleTimeline processes bugflow_timeline tool calls.
func (s *Server) handleTimeline(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input TimelineInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateRecordsPaths(input.RecordsPaths)
	if err != nil {
		return errorResult(err)
	}

	if input.RecordID <= 0 {
		return errorResult(ErrInvalidRecordID)
	}

	cfg, err := s.baseConfig()
	if err != nil {
		return errorResult(err)
	}

	loadOpts, err := cfg.LoadOptions()
	if err != nil {
		return errorResult(err)
	}

	records, err := tracker.LoadFiles(ctx, input.RecordsPaths, loadOpts)
	if err != nil {
		return errorResult(err)
	}

	for i := range records {
		if records[i].ID != input.RecordID {
			continue
		}

		tl, err := workflow.NewBuilder(cfg.Vocabulary()).Build(&records[i])
		if err != nil {
			return errorResult(err)
		}

		return jsonResult(TimelineOutput{
			RecordID:    tl.RecordID,
			Final:       tl.Final(),
			Transitions: tl.Transitions,
			Candidates:  tl.Candidates,
			Discarded:   tl.Discarded,
		})
	}

	return errorResult(fmt.Errorf("%w: %d", ErrRecordNotFound, input.RecordID))
}
