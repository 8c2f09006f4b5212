// Package tracker defines the defect record model consumed by the workflow
// pipeline and a file-backed record source that materializes it.
package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Well-known history field names.
const (
	FieldStatus    = "status"
	FieldSeverity  = "severity"
	FieldComponent = "component"
	FieldFlags     = "flagtypes.name"
)

// Record is an immutable snapshot of a tracked defect as fetched from the tracker.
type Record struct {
	ID             int64          `json:"id"               yaml:"id"`
	Type           string         `json:"type"             yaml:"type"`
	Product        string         `json:"product"          yaml:"product"`
	Component      string         `json:"component"        yaml:"component"`
	Status         string         `json:"status"           yaml:"status"`
	Severity       string         `json:"severity"         yaml:"severity"`
	CreationTime   time.Time      `json:"creation_time"    yaml:"creation_time"`
	LastChangeTime time.Time      `json:"last_change_time" yaml:"last_change_time"`
	History        []HistoryEvent `json:"history"          yaml:"history"`
	Attachments    []Attachment   `json:"attachments"      yaml:"attachments"`
	Flags          []Flag         `json:"flags"            yaml:"flags"`
}

// HistoryEvent is a set of field changes that happened atomically.
type HistoryEvent struct {
	When    time.Time     `json:"when"    yaml:"when"`
	Changes []FieldChange `json:"changes" yaml:"changes"`
}

// FieldChange is a single field transition inside a HistoryEvent.
type FieldChange struct {
	FieldName string `json:"field_name" yaml:"field_name"`
	Removed   string `json:"removed"    yaml:"removed"`
	Added     string `json:"added"      yaml:"added"`
}

// Attachment is a file attached to a record.
type Attachment struct {
	CreationTime time.Time `json:"creation_time" yaml:"creation_time"`
	IsPatch      bool      `json:"is_patch"      yaml:"is_patch"`
}

// ErrInvalidPatchMarker is returned when is_patch is neither a boolean nor 0/1.
var ErrInvalidPatchMarker = errors.New("invalid is_patch value")

// UnmarshalJSON accepts is_patch as a boolean or as a 0/1 integer.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	var raw struct {
		CreationTime time.Time       `json:"creation_time"`
		IsPatch      json.RawMessage `json:"is_patch"`
	}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	a.CreationTime = raw.CreationTime

	switch string(bytes.TrimSpace(raw.IsPatch)) {
	case "true", "1":
		a.IsPatch = true
	case "", "null", "false", "0":
		a.IsPatch = false
	default:
		return fmt.Errorf("%w: %s", ErrInvalidPatchMarker, raw.IsPatch)
	}

	return nil
}

// Flag is a standing flag observed at fetch time.
type Flag struct {
	Name      string `json:"name"                yaml:"name"`
	Requestee string `json:"requestee,omitempty" yaml:"requestee,omitempty"`
	Status    string `json:"status,omitempty"    yaml:"status,omitempty"`
}

// Predicate selects records.
type Predicate func(rec *Record) bool

// LastChangeBefore returns a predicate matching records untouched since t.
// A zero t matches nothing.
func LastChangeBefore(t time.Time) Predicate {
	return func(rec *Record) bool {
		if t.IsZero() {
			return false
		}

		return rec.LastChangeTime.Before(t)
	}
}

// Selection narrows the fetched collection before processing.
// Empty fields match everything.
type Selection struct {
	Types    []string
	Products []string
}

// Match reports whether rec is selected.
func (s Selection) Match(rec *Record) bool {
	return matchAny(s.Types, rec.Type) && matchAny(s.Products, rec.Product)
}

// Apply returns the selected records, preserving order.
func (s Selection) Apply(records []Record) []Record {
	selected := make([]Record, 0, len(records))

	for i := range records {
		if s.Match(&records[i]) {
			selected = append(selected, records[i])
		}
	}

	return selected
}

func matchAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}

	return slices.Contains(allowed, value)
}
