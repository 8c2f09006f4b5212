// Package series merges per-record stage timelines into a global event stream
// and aggregates it into daily per-stage population counts.
package series

import (
	"slices"

	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// Event is a committed transition tagged with its record.
type Event struct {
	RecordID int64
	workflow.Transition
}

// Merge concatenates the timelines in the given order and stably sorts the
// result by timestamp, so equal timestamps keep timeline order and
// within-record order.
func Merge(timelines []*workflow.Timeline) []Event {
	total := 0
	for _, tl := range timelines {
		total += len(tl.Transitions)
	}

	events := make([]Event, 0, total)

	for _, tl := range timelines {
		for _, tr := range tl.Transitions {
			events = append(events, Event{RecordID: tl.RecordID, Transition: tr})
		}
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		return a.When.Compare(b.When)
	})

	return events
}
