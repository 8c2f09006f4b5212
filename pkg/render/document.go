package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
	FormatPlot = "plot"
)

// ErrUnknownFormat is returned for an unrecognized output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Options controls rendering.
type Options struct {
	Format string
	Theme  Theme
	// Rows limits text output to the trailing snapshots.
	Rows int
	// Timelines includes per-record transitions in JSON and YAML output.
	Timelines bool
}

// Document is the serialized form of a result.
type Document struct {
	RunID     string                   `json:"run_id"              yaml:"run_id"`
	Dates     []string                 `json:"dates"               yaml:"dates"`
	Counts    map[workflow.Stage][]int `json:"counts"              yaml:"counts"`
	Stats     series.Stats             `json:"stats"               yaml:"stats"`
	Faults    []*workflow.Fault        `json:"faults"              yaml:"faults"`
	Timelines []*workflow.Timeline     `json:"timelines,omitempty" yaml:"timelines,omitempty"`
}

// NewDocument flattens res. Faults is never nil so it serializes as a list.
func NewDocument(res *series.Result, timelines bool) Document {
	doc := Document{
		RunID:  res.RunID,
		Dates:  res.Series.Dates,
		Counts: res.Series.Counts,
		Stats:  res.Stats,
		Faults: res.Faults,
	}

	if doc.Dates == nil {
		doc.Dates = []string{}
	}

	if doc.Faults == nil {
		doc.Faults = []*workflow.Fault{}
	}

	if timelines {
		doc.Timelines = res.Timelines
	}

	return doc
}

// WriteJSON writes res as indented JSON.
func WriteJSON(w io.Writer, res *series.Result, timelines bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(NewDocument(res, timelines))
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// WriteYAML writes res as YAML.
func WriteYAML(w io.Writer, res *series.Result, timelines bool) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(NewDocument(res, timelines))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

// Write renders res in opts.Format.
func Write(w io.Writer, res *series.Result, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return WriteJSON(w, res, opts.Timelines)
	case FormatYAML:
		return WriteYAML(w, res, opts.Timelines)
	case FormatText, "":
		return WriteText(w, res, opts.Rows)
	case FormatPlot:
		return WritePlot(w, res, opts.Theme)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}
