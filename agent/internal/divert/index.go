package divert

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// DefaultMergeGapDays merges windows that overlap or touch on consecutive days.
const DefaultMergeGapDays = 1

// ErrInvalidWindow is returned for a divert event whose end precedes its
// start or that names no location.
var ErrInvalidWindow = errors.New("invalid divert window")

// Rejected is a raw event the index refused, with the reason.
type Rejected struct {
	Event types.DivertEvent
	Err   error
}

// Index answers "was location L diverted on day D" over normalised windows.
// It is read-only once built and safe for concurrent use. A nil *Index
// reports no diverts.
type Index struct {
	windows map[string][]types.DivertWindow // per location, sorted, disjoint
}

// NewIndex validates and normalises raw events. Invalid events are returned
// in rejected and do not affect other events, including other events for
// the same location. A negative mergeGapDays is treated as 0.
func NewIndex(events []types.DivertEvent, mergeGapDays int) (*Index, []Rejected) {
	if mergeGapDays < 0 {
		mergeGapDays = 0
	}

	var rejected []Rejected
	byLoc := make(map[string][]types.DivertWindow)
	for _, ev := range events {
		if err := validateEvent(ev); err != nil {
			rejected = append(rejected, Rejected{Event: ev, Err: err})
			continue
		}
		byLoc[ev.LocationCode] = append(byLoc[ev.LocationCode], types.DivertWindow{
			LocationCode: ev.LocationCode,
			Start:        ev.Start,
			End:          ev.End,
		})
	}

	ix := &Index{windows: make(map[string][]types.DivertWindow, len(byLoc))}
	for loc, ws := range byLoc {
		ix.windows[loc] = Normalize(ws, mergeGapDays)
	}
	return ix, rejected
}

func validateEvent(ev types.DivertEvent) error {
	switch {
	case ev.LocationCode == "":
		return fmt.Errorf("%w: location code is required", ErrInvalidWindow)
	case ev.Start.IsZero() || ev.End.IsZero():
		return fmt.Errorf("%w: %s: start and end dates are required", ErrInvalidWindow, ev.LocationCode)
	case ev.End.Before(ev.Start):
		return fmt.Errorf("%w: %s: end %s before start %s",
			ErrInvalidWindow, ev.LocationCode, ev.End, ev.Start)
	}
	return nil
}

// Normalize sorts windows of a single location by start date and merges any
// pair whose gap (next start minus previous end, in days) is at most
// mergeGapDays. The input slice is not modified. Callers must pass valid
// windows (start <= end).
func Normalize(windows []types.DivertWindow, mergeGapDays int) []types.DivertWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]types.DivertWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := []types.DivertWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &out[len(out)-1]
		if w.Start.DaysSince(last.End) <= mergeGapDays {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

// Overlaps reports whether date falls inside any merged window for location.
func (ix *Index) Overlaps(location string, date types.Date) bool {
	return ix.OverlapsRange(location, date, date)
}

// OverlapsRange reports whether any merged window for location intersects
// [from, to]. A reversed range never overlaps.
func (ix *Index) OverlapsRange(location string, from, to types.Date) bool {
	if ix == nil || to.Before(from) {
		return false
	}
	ws := ix.windows[location]
	// First window that ends on or after from.
	i := sort.Search(len(ws), func(i int) bool { return !ws[i].End.Before(from) })
	return i < len(ws) && !ws[i].Start.After(to)
}

// Windows returns a copy of the merged windows for location, in order.
func (ix *Index) Windows(location string) []types.DivertWindow {
	if ix == nil {
		return nil
	}
	ws := ix.windows[location]
	if len(ws) == 0 {
		return nil
	}
	out := make([]types.DivertWindow, len(ws))
	copy(out, ws)
	return out
}

// Clip returns the merged windows for location that intersect [from, to],
// trimmed to that range.
func (ix *Index) Clip(location string, from, to types.Date) []types.DivertWindow {
	var out []types.DivertWindow
	for _, w := range ix.Windows(location) {
		if w.End.Before(from) || w.Start.After(to) {
			continue
		}
		if w.Start.Before(from) {
			w.Start = from
		}
		if w.End.After(to) {
			w.End = to
		}
		out = append(out, w)
	}
	return out
}

// Locations returns the location codes that have at least one window,
// sorted.
func (ix *Index) Locations() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, 0, len(ix.windows))
	for loc := range ix.windows {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}
