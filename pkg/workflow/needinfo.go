package workflow

import (
	"regexp"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
)

// Candidate is a proposed stage change for a single record.
type Candidate struct {
	When  time.Time
	Stage Stage
}

// NeedinfoDelta is the net change to pending information requests in one history event.
type NeedinfoDelta struct {
	When    time.Time
	Added   []string
	Removed []string
}

// NeedinfoTracker tracks pending information requests of a single record.
// It is not safe for concurrent use.
type NeedinfoTracker struct {
	created    time.Time
	pending    map[string]struct{}
	candidates []Candidate
}

// NewNeedinfoTracker creates a tracker for a record created at created.
func NewNeedinfoTracker(created time.Time) *NeedinfoTracker {
	return &NeedinfoTracker{
		created: created,
		pending: make(map[string]struct{}),
	}
}

// Replay consumes deltas in chronological order together with the requestees
// standing at fetch time, and returns the PENDING_NEEDINFO / ANSWERED_NEEDINFO
// candidates in the order they occurred.
//
// Requests that predate the observable history (a removal with no matching
// request, or a standing request no delta explains) are attributed to the
// record's creation time. A standing request whose last visible change is a
// removal is re-requested in that same event.
func (t *NeedinfoTracker) Replay(deltas []NeedinfoDelta, standing []string) []Candidate {
	implicit, reopened := unexplainedRequests(deltas, standing)

	for _, who := range implicit {
		t.pending[who] = struct{}{}
	}

	if len(t.pending) > 0 {
		t.emit(t.created, PendingNeedinfo)
	}

	for i, delta := range deltas {
		if who, ok := reopened[i]; ok {
			delta.Added = append(slices.Clone(delta.Added), who...)
		}

		t.Apply(delta)
	}

	return t.candidates
}

// Apply applies a single delta, emitting a candidate if the pending set
// became non-empty or empty. Removals are applied before additions so a
// re-request within one event keeps the identity pending.
func (t *NeedinfoTracker) Apply(delta NeedinfoDelta) {
	wasEmpty := len(t.pending) == 0

	for _, who := range delta.Removed {
		delete(t.pending, who)
	}

	for _, who := range delta.Added {
		t.pending[who] = struct{}{}
	}

	isEmpty := len(t.pending) == 0

	switch {
	case wasEmpty && !isEmpty:
		t.emit(delta.When, PendingNeedinfo)
	case !wasEmpty && isEmpty:
		t.emit(delta.When, AnsweredNeedinfo)
	}
}

// Pending returns the currently pending requestees, sorted.
func (t *NeedinfoTracker) Pending() []string {
	who := make([]string, 0, len(t.pending))
	for k := range t.pending {
		who = append(who, k)
	}

	slices.Sort(who)

	return who
}

// Candidates returns the candidates emitted so far.
func (t *NeedinfoTracker) Candidates() []Candidate {
	return t.candidates
}

func (t *NeedinfoTracker) emit(when time.Time, stage Stage) {
	t.candidates = append(t.candidates, Candidate{When: when, Stage: stage})
}

// unexplainedRequests dry-runs deltas. It returns, in discovery order, the
// identities whose request is not visible in them, and per delta index the
// standing identities last seen removed there.
func unexplainedRequests(deltas []NeedinfoDelta, standing []string) ([]string, map[int][]string) {
	seen := make(map[string]struct{})
	open := make(map[string]struct{})
	lastRemoved := make(map[string]int)

	var implicit []string

	mark := func(who string) {
		if _, ok := seen[who]; ok {
			return
		}

		seen[who] = struct{}{}
		implicit = append(implicit, who)
	}

	for i, delta := range deltas {
		for _, who := range delta.Removed {
			if _, ok := open[who]; !ok {
				mark(who)
			}

			delete(open, who)

			lastRemoved[who] = i
		}

		for _, who := range delta.Added {
			open[who] = struct{}{}
		}
	}

	reopened := make(map[int][]string)

	for _, who := range standing {
		if _, ok := open[who]; ok {
			continue
		}

		if i, ok := lastRemoved[who]; ok {
			reopened[i] = append(reopened[i], who)
			open[who] = struct{}{}

			continue
		}

		mark(who)
	}

	return implicit, reopened
}

// needinfoParser extracts requestees from flag values such as
// "review?(a@b.c), needinfo?(x@y.z)".
type needinfoParser struct {
	flag    string
	pattern *regexp.Regexp
}

func newNeedinfoParser(flag string) *needinfoParser {
	return &needinfoParser{
		flag:    flag,
		pattern: regexp.MustCompile(regexp.QuoteMeta(flag) + `\?\(([^)]+)\)`),
	}
}

func (p *needinfoParser) requestees(value string) []string {
	matches := p.pattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return nil
	}

	who := make([]string, 0, len(matches))
	for _, m := range matches {
		who = append(who, m[1])
	}

	return who
}

// deltas collects one NeedinfoDelta per history event touching the flag field.
func (p *needinfoParser) deltas(rec *tracker.Record, flagField string) []NeedinfoDelta {
	var out []NeedinfoDelta

	for _, event := range rec.History {
		delta := NeedinfoDelta{When: event.When}

		for _, change := range event.Changes {
			if change.FieldName != flagField {
				continue
			}

			delta.Removed = append(delta.Removed, p.requestees(change.Removed)...)
			delta.Added = append(delta.Added, p.requestees(change.Added)...)
		}

		if len(delta.Added) > 0 || len(delta.Removed) > 0 {
			out = append(out, delta)
		}
	}

	return out
}

// standing returns requestees of needinfo flags still set at fetch time.
func (p *needinfoParser) standing(rec *tracker.Record) []string {
	var who []string

	for _, flag := range rec.Flags {
		if flag.Name != p.flag || flag.Requestee == "" {
			continue
		}

		if flag.Status != "" && flag.Status != "?" {
			continue
		}

		who = append(who, flag.Requestee)
	}

	return who
}
