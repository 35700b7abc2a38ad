package divert

import (
	"sort"
	"time"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Resolver maps a site name used in notices to the location codes it covers.
type Resolver interface {
	Resolve(name string) []string
}

// Timeline is the divert history reconstructed from a set of notices.
type Timeline struct {
	// Events are raw divert intervals, one per Divert→Bypass span.
	Events []types.DivertEvent

	// Current holds the latest reported status per location code.
	Current map[string]Status

	// Unmapped lists site names that resolved to no location, sorted.
	Unmapped []string
}

// Diverted reports whether the latest notice for location left it diverted.
func (tl Timeline) Diverted(location string) bool {
	return tl.Current[location] == StatusDivert
}

type change struct {
	at     time.Time
	status Status
	origin string
}

// Reconstruct turns status-change notices into divert events. For every
// location the notices are ordered by timestamp; a Divert notice opens a
// span and the next Bypass notice closes it on the Bypass notice's date. A
// span still open at the end is closed at asOf. Notices without a timestamp,
// and notices after the end of the asOf day, are ignored.
func Reconstruct(notices []Notice, r Resolver, asOf types.Date) Timeline {
	tl := Timeline{Current: make(map[string]Status)}
	unmapped := make(map[string]struct{})
	cutoff := asOf.AddDays(1).Time()

	changes := make(map[string][]change)
	for _, n := range notices {
		if n.Timestamp.IsZero() || !n.Timestamp.Before(cutoff) {
			continue
		}
		for name, st := range n.Statuses {
			codes := resolve(r, name)
			if len(codes) == 0 {
				unmapped[name] = struct{}{}
				continue
			}
			for _, code := range codes {
				changes[code] = append(changes[code], change{at: n.Timestamp, status: st, origin: n.Origin})
			}
		}
	}

	locs := make([]string, 0, len(changes))
	for loc := range changes {
		locs = append(locs, loc)
	}
	sort.Strings(locs)

	for _, loc := range locs {
		cs := changes[loc]
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].at.Before(cs[j].at) })

		var open *change
		for i := range cs {
			c := cs[i]
			switch {
			case c.status == StatusDivert && open == nil:
				open = &cs[i]
			case c.status == StatusBypass && open != nil:
				tl.Events = append(tl.Events, span(loc, *open, types.DateOf(c.at)))
				open = nil
			}
		}
		if open != nil {
			end := asOf
			if start := types.DateOf(open.at); end.Before(start) {
				end = start
			}
			tl.Events = append(tl.Events, span(loc, *open, end))
		}
		tl.Current[loc] = cs[len(cs)-1].status
	}

	for name := range unmapped {
		tl.Unmapped = append(tl.Unmapped, name)
	}
	sort.Strings(tl.Unmapped)
	return tl
}

func span(loc string, start change, end types.Date) types.DivertEvent {
	return types.DivertEvent{
		LocationCode: loc,
		Start:        types.DateOf(start.at),
		End:          end,
		Source:       start.origin,
	}
}

// resolve tries the name as written, then without its "[n] " prefix.
func resolve(r Resolver, name string) []string {
	if r == nil {
		return nil
	}
	if codes := r.Resolve(name); len(codes) > 0 {
		return codes
	}
	if base := baseName(name); base != name {
		return r.Resolve(base)
	}
	return nil
}
