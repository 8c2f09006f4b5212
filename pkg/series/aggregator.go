package series

import (
	"time"

	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// Counts holds one population counter per stage, indexed by ordinal.
type Counts [workflow.StageCount]int

// Total returns the population across all stages.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}

	return total
}

// Snapshot is the per-stage population recorded for a calendar date.
type Snapshot struct {
	Date   string
	Counts Counts
}

// Series is the aggregated output: a date axis and, per stage, a parallel
// sequence of counts.
type Series struct {
	Dates  []string                 `json:"dates"  yaml:"dates"`
	Counts map[workflow.Stage][]int `json:"counts" yaml:"counts"`
}

// Len returns the number of dates.
func (s Series) Len() int {
	return len(s.Dates)
}

// TotalAt returns the population across all stages at date index i.
func (s Series) TotalAt(i int) int {
	total := 0
	for _, counts := range s.Counts {
		total += counts[i]
	}

	return total
}

// Aggregator folds a time-ordered transition stream into daily snapshots.
// It is owned by a single run and is not safe for concurrent use.
type Aggregator struct {
	counts    Counts
	lastDay   string
	snapshots []Snapshot
}

// NewAggregator creates an aggregator. Events on or before start do not open
// a new snapshot; a zero start means the first event always does.
func NewAggregator(start time.Time) *Aggregator {
	agg := &Aggregator{}
	if !start.IsZero() {
		agg.lastDay = dayOf(start)
	}

	return agg
}

// Seed adds n records to the population of stage. Background records are
// seeded at their current stage, timeline records at workflow.Nothing.
func (a *Aggregator) Seed(stage workflow.Stage, n int) {
	a.counts[stage] += n
}

// Add applies one event. When the event opens a new day, the counters as they
// stood before it are recorded as that day's snapshot.
func (a *Aggregator) Add(ev Event) {
	day := dayOf(ev.When)
	if day > a.lastDay {
		a.lastDay = day
		a.snapshots = append(a.snapshots, Snapshot{Date: day, Counts: a.counts})
	}

	a.counts[ev.Previous]--
	a.counts[ev.Stage]++
}

// Counts returns the current counters.
func (a *Aggregator) Counts() Counts {
	return a.counts
}

// Snapshots returns the snapshots recorded so far.
func (a *Aggregator) Snapshots() []Snapshot {
	return a.snapshots
}

// Series returns the snapshots in columnar form.
func (a *Aggregator) Series() Series {
	s := Series{
		Dates:  make([]string, len(a.snapshots)),
		Counts: make(map[workflow.Stage][]int, workflow.StageCount),
	}

	for _, stage := range workflow.Stages() {
		s.Counts[stage] = make([]int, len(a.snapshots))
	}

	for i, snap := range a.snapshots {
		s.Dates[i] = snap.Date

		for stage, n := range snap.Counts {
			s.Counts[workflow.Stage(stage)][i] = n
		}
	}

	return s
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
