// Package workflow reconstructs per-record lifecycle stage timelines from
// noisy tracker change history.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Stage is a lifecycle stage. Ordinals are explicit and define the total order.
type Stage uint8

// Stage ordinals, lowest first.
const (
	Nothing          Stage = 0 // synthetic pre-creation state, never an end state
	NoComponent      Stage = 1
	Unconfirmed      Stage = 2
	Confirmed        Stage = 3
	PendingNeedinfo  Stage = 4
	AnsweredNeedinfo Stage = 5
	Triaged          Stage = 6
	Assigned         Stage = 7
	InReview         Stage = 8
	Resolved         Stage = 9
)

// StageCount is the number of defined stages.
const StageCount = 10

// ErrUnknownStage is returned when parsing an unrecognized stage name.
var ErrUnknownStage = errors.New("unknown stage")

var stageNames = [StageCount]string{
	Nothing:          "NOTHING",
	NoComponent:      "NO_COMPONENT",
	Unconfirmed:      "UNCONFIRMED",
	Confirmed:        "CONFIRMED",
	PendingNeedinfo:  "PENDING_NEEDINFO",
	AnsweredNeedinfo: "ANSWERED_NEEDINFO",
	Triaged:          "TRIAGED",
	Assigned:         "ASSIGNED",
	InReview:         "IN_REVIEW",
	Resolved:         "RESOLVED",
}

// Stages returns all stages in ascending ordinal order.
func Stages() []Stage {
	all := make([]Stage, StageCount)
	for i := range all {
		all[i] = Stage(i)
	}

	return all
}

// Valid reports whether s is a defined stage.
func (s Stage) Valid() bool {
	return s < StageCount
}

// Ordinal returns the rank of s in the total order.
func (s Stage) Ordinal() int {
	return int(s)
}

// Less reports whether s ranks strictly below other.
func (s Stage) Less(other Stage) bool {
	return s < other
}

// String returns the canonical upper-case name.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}

	return stageNames[s]
}

// Label returns a human-readable name, e.g. "Pending needinfo".
func (s Stage) Label() string {
	name := strings.ReplaceAll(strings.ToLower(s.String()), "_", " ")

	return strings.ToUpper(name[:1]) + name[1:]
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStage, uint8(s))
	}

	return []byte(stageNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// ParseStage parses a canonical stage name.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}

	return Nothing, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Accepts reports whether a record whose last committed stage is s may move to next.
// Stages only advance, except that a new needinfo request may follow an answered one.
func (s Stage) Accepts(next Stage) bool {
	if next > s {
		return true
	}

	return s == AnsweredNeedinfo && next == PendingNeedinfo
}
