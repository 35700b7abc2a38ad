package compute

import "github.com/hydrowatch/hydrowatch/pkg/types"

// Aggregate folds chronologically ordered verdicts for one location into a
// summary.
//
// A run of consecutive Warning/Critical days is closed by a Good or Diverted
// day, by a missing calendar day between two verdicts, or by the end of the
// input. Completeness is (Good+Diverted)/days*100; an empty input reports
// 100.
func Aggregate(location string, days []types.DayVerdict) types.LocationSummary {
	s := types.LocationSummary{
		LocationCode: location,
		Days:         len(days),
		Runs:         []types.GapRun{},
	}

	var (
		open bool
		run  types.GapRun
	)
	closeRun := func() {
		if open && run.Length > 0 {
			s.Runs = append(s.Runs, run)
		}
		open = false
	}

	for i, d := range days {
		if open && i > 0 && d.Date.DaysSince(days[i-1].Date) != 1 {
			closeRun()
		}

		switch d.Verdict {
		case types.VerdictGood:
			s.Good++
		case types.VerdictDiverted:
			s.Diverted++
		case types.VerdictWarning:
			s.Warning++
		case types.VerdictCritical:
			s.Critical++
		}

		if !d.Verdict.Shortfall() {
			closeRun()
			continue
		}
		if !open {
			open = true
			run = types.GapRun{Start: d.Date}
		}
		run.End = d.Date
		run.Length++
	}
	closeRun()

	if s.Days == 0 {
		s.CompletenessPct = 100
	} else {
		s.CompletenessPct = float64(s.Good+s.Diverted) / float64(s.Days) * 100
	}
	return s
}

// AggregateWindow is Aggregate for a window of windowDays calendar days of
// which only len(days) were evaluated. The missing days are reported as
// Unevaluated and completeness is taken over the whole window. A zero-length
// window reports 100.
func AggregateWindow(location string, days []types.DayVerdict, windowDays int) types.LocationSummary {
	s := Aggregate(location, days)
	if windowDays <= s.Days {
		return s
	}
	s.Unevaluated = windowDays - s.Days
	s.CompletenessPct = float64(s.Good+s.Diverted) / float64(windowDays) * 100
	return s
}
