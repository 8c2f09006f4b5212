package workflow

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
)

// StageForStatus maps a raw tracker status to its stage.
func StageForStatus(status string) (Stage, error) {
	switch status {
	case "UNCONFIRMED":
		return Unconfirmed, nil
	case "NEW", "REOPENED":
		return Confirmed, nil
	case "ASSIGNED":
		return Assigned, nil
	case "REVIEW":
		return InReview, nil
	case "RESOLVED", "VERIFIED", "CLOSED":
		return Resolved, nil
	default:
		return Nothing, fmt.Errorf("%w `%s`", ErrUnknownStatus, status)
	}
}

// Vocabulary holds the tracker-specific values the stage rules depend on.
type Vocabulary struct {
	// DefaultComponent is the component of records not yet routed to an owning area.
	DefaultComponent string
	// UnsetSeverities are severity values that mean "not triaged".
	UnsetSeverities []string
	// NeedinfoFlag is the flag name used for information requests.
	NeedinfoFlag string
	// FlagField is the history field name carrying flag changes.
	FlagField string
}

// DefaultVocabulary returns the Bugzilla vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		DefaultComponent: "Untriaged",
		UnsetSeverities:  []string{"n/a", "--"},
		NeedinfoFlag:     "needinfo",
		FlagField:        tracker.FieldFlags,
	}
}

// SeveritySet reports whether severity carries a real value.
func (v Vocabulary) SeveritySet(severity string) bool {
	return !slices.Contains(v.UnsetSeverities, severity)
}

// CurrentStage returns the present-moment stage of rec without replaying history.
func (v Vocabulary) CurrentStage(rec *tracker.Record) (Stage, error) {
	stage, err := StageForStatus(rec.Status)
	if err != nil {
		return Nothing, err
	}

	if stage == Resolved {
		return stage, nil
	}

	if slices.ContainsFunc(rec.Attachments, func(a tracker.Attachment) bool { return a.IsPatch }) {
		return InReview, nil
	}

	if v.SeveritySet(rec.Severity) {
		return Triaged, nil
	}

	return stage, nil
}
