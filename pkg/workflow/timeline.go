package workflow

import (
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
)

// Transition is a committed stage change of one record.
type Transition struct {
	When     time.Time `json:"when"     yaml:"when"`
	Stage    Stage     `json:"stage"    yaml:"stage"`
	Previous Stage     `json:"previous" yaml:"previous"`
}

// Timeline is the committed transition sequence of one record.
type Timeline struct {
	RecordID    int64        `json:"record_id"   yaml:"record_id"`
	Transitions []Transition `json:"transitions" yaml:"transitions"`

	// Candidates is the number of candidates considered.
	Candidates int `json:"-" yaml:"-"`
	// Discarded is the number of candidates rejected by the monotonic rule.
	Discarded int `json:"-" yaml:"-"`
}

// Final returns the last committed stage, or Nothing for an empty timeline.
func (tl *Timeline) Final() Stage {
	if len(tl.Transitions) == 0 {
		return Nothing
	}

	return tl.Transitions[len(tl.Transitions)-1].Stage
}

// Builder derives stage timelines from record history. A Builder holds no
// per-record state and may be shared.
type Builder struct {
	vocab    Vocabulary
	needinfo *needinfoParser
}

// NewBuilder creates a Builder for the given vocabulary.
func NewBuilder(vocab Vocabulary) *Builder {
	return &Builder{
		vocab:    vocab,
		needinfo: newNeedinfoParser(vocab.NeedinfoFlag),
	}
}

// Vocabulary returns the vocabulary the builder was created with.
func (b *Builder) Vocabulary() Vocabulary {
	return b.vocab
}

// historySignals is what a single pass over the history reveals.
type historySignals struct {
	status    []Candidate
	severity  []Candidate
	component []Candidate

	leftUnconfirmed bool
	leftDefault     bool
}

// Build returns the committed timeline of rec. Errors are *Fault values
// wrapping ErrUnknownStatus or ErrInvariantViolation.
func (b *Builder) Build(rec *tracker.Record) (*Timeline, error) {
	signals, err := b.scanHistory(rec)
	if err != nil {
		return nil, NewFault(rec.ID, err)
	}

	// Source order decides ties: status, severity, component, patch, needinfo, creation.
	candidates := make([]Candidate, 0, len(signals.status)+len(signals.severity)+len(signals.component)+3)
	candidates = append(candidates, signals.status...)
	candidates = append(candidates, signals.severity...)
	candidates = append(candidates, signals.component...)

	if when, ok := firstPatch(rec.Attachments); ok {
		candidates = append(candidates, Candidate{When: when, Stage: InReview})
	}

	requests := NewNeedinfoTracker(rec.CreationTime)
	candidates = append(candidates, requests.Replay(b.needinfo.deltas(rec, b.vocab.FlagField), b.needinfo.standing(rec))...)

	candidates = append(candidates, Candidate{When: rec.CreationTime, Stage: b.creationStage(rec, signals)})

	slices.SortStableFunc(candidates, func(x, y Candidate) int {
		return x.When.Compare(y.When)
	})

	tl := fold(rec.ID, candidates)

	err = b.vocab.Verify(rec, tl)
	if err != nil {
		return nil, NewFault(rec.ID, err)
	}

	return tl, nil
}

// Verify checks that a timeline ending in NO_COMPONENT belongs to a record
// still in the default component.
func (v Vocabulary) Verify(rec *tracker.Record, tl *Timeline) error {
	if tl.Final() == NoComponent && rec.Component != v.DefaultComponent {
		return fmt.Errorf("%w: ended in %s with component %q", ErrInvariantViolation, NoComponent, rec.Component)
	}

	return nil
}

func (b *Builder) scanHistory(rec *tracker.Record) (historySignals, error) {
	var (
		sig         historySignals
		severitySet bool
	)

	for _, event := range rec.History {
		for _, change := range event.Changes {
			switch change.FieldName {
			case tracker.FieldStatus:
				stage, err := StageForStatus(change.Added)
				if err != nil {
					return sig, err
				}

				sig.status = append(sig.status, Candidate{When: event.When, Stage: stage})

				if change.Removed == "UNCONFIRMED" {
					sig.leftUnconfirmed = true
				}
			case tracker.FieldSeverity:
				if !severitySet && b.vocab.SeveritySet(change.Added) {
					severitySet = true
					sig.severity = append(sig.severity, Candidate{When: event.When, Stage: Triaged})
				}
			case tracker.FieldComponent:
				// Leaving the default component marks entry into the active triage flow.
				if !sig.leftDefault && change.Removed == b.vocab.DefaultComponent {
					sig.leftDefault = true
					sig.component = append(sig.component, Candidate{When: event.When, Stage: Unconfirmed})
				}
			}
		}
	}

	return sig, nil
}

func (b *Builder) creationStage(rec *tracker.Record, sig historySignals) Stage {
	switch {
	case sig.leftDefault || rec.Component == b.vocab.DefaultComponent:
		return NoComponent
	case sig.leftUnconfirmed || rec.Status == "UNCONFIRMED":
		return Unconfirmed
	default:
		return Confirmed
	}
}

func firstPatch(attachments []tracker.Attachment) (time.Time, bool) {
	var (
		first time.Time
		found bool
	)

	for _, a := range attachments {
		if !a.IsPatch {
			continue
		}

		if !found || a.CreationTime.Before(first) {
			first = a.CreationTime
			found = true
		}
	}

	return first, found
}

// fold commits candidates in order under the monotonic acceptance rule.
func fold(recordID int64, candidates []Candidate) *Timeline {
	tl := &Timeline{RecordID: recordID, Candidates: len(candidates)}
	last := Nothing

	for _, c := range candidates {
		if !last.Accepts(c.Stage) {
			tl.Discarded++

			continue
		}

		tl.Transitions = append(tl.Transitions, Transition{When: c.When, Stage: c.Stage, Previous: last})
		last = c.Stage
	}

	return tl
}
