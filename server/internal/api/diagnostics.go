package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// DiagnosticHint is one human-readable insight about a location's coverage.
// The UI displays these as chips on the location card; clicking one shows
// Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 0
	case "warning":
		return 1
	default:
		return 2
	}
}

// computeDiagnostics derives diagnostic hints from a location report.
// Diagnostics are ordered: critical first, then warnings, then info.
func computeDiagnostics(lr types.LocationReport) []DiagnosticHint {
	hints := make([]DiagnosticHint, 0, 4)

	// ── No data at all ────────────────────────────────────────────────────────
	if lr.LastDataDate == nil {
		hints = append(hints, DiagnosticHint{
			Key:   "no_data",
			Level: "critical",
			Title: "No files in window",
			Detail: fmt.Sprintf(
				"The archive holds no files for this location between %s and %s. "+
					"Either the hydrophone is offline or its data is not reaching the archive. "+
					"Check the instrument's connection and the acquisition host before anything else.",
				lr.WindowStart, lr.WindowEnd,
			),
		})
		return hints // nothing else is meaningful without data
	}

	// ── Data stopped arriving ─────────────────────────────────────────────────
	if d := lr.DaysSinceLastData; d >= 2 {
		v := float64(d)
		level := "warning"
		if d >= 3 {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "stale_data",
			Level: level,
			Title: fmt.Sprintf("No data for %d days", d),
			Detail: fmt.Sprintf(
				"The most recent archived file is from %s, %d days before the analysis date. "+
					"Files may be queued on the shore station, or the instrument stopped recording.",
				lr.LastDataDate, d,
			),
			Value: &v,
		})
	}

	// ── Recent shortfalls ─────────────────────────────────────────────────────
	if n := lr.RecentPoorDays; n > 0 {
		v := float64(n)
		level := "warning"
		if n >= 2 {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "recent_poor_days",
			Level: level,
			Title: fmt.Sprintf("%d recent poor days", n),
			Detail: fmt.Sprintf(
				"%d of the most recent days fell short of the expected file count "+
					"without a divert to explain it. A shortfall that is still growing "+
					"usually means an ongoing outage rather than a transient gap.",
				n,
			),
			Value: &v,
		})
	}

	// ── Missing channels ──────────────────────────────────────────────────────
	if len(lr.MissingChannels) > 0 {
		v := float64(len(lr.MissingChannels))
		hints = append(hints, DiagnosticHint{
			Key:   "missing_channels",
			Level: "warning",
			Title: "Channels missing",
			Detail: fmt.Sprintf(
				"These channels were below the coverage threshold on most evaluated days: %s. "+
					"The location can still look healthy overall if another channel reports normally.",
				strings.Join(lr.MissingChannels, ", "),
			),
			Value: &v,
		})
	}

	// ── Currently diverted ────────────────────────────────────────────────────
	if lr.CurrentlyDiverted {
		hints = append(hints, DiagnosticHint{
			Key:   "currently_diverted",
			Level: "info",
			Title: "Diverted",
			Detail: "The latest switch notice left this location's data diverted. " +
				"Reduced coverage during a divert is expected and is not counted as an outage. " +
				"No action needed unless the divert was not planned.",
		})
	}

	// ── Longest gap ───────────────────────────────────────────────────────────
	if longest := longestRun(lr.Summary.Runs); longest.Length > 0 {
		v := float64(longest.Length)
		hints = append(hints, DiagnosticHint{
			Key:   "longest_gap",
			Level: "info",
			Title: fmt.Sprintf("%d-day gap", longest.Length),
			Detail: fmt.Sprintf(
				"The longest unexplained gap in the window ran from %s to %s (%d days).",
				longest.Start, longest.End, longest.Length,
			),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool { return levelRank(hints[i].Level) < levelRank(hints[j].Level) })
	return hints
}

func longestRun(runs []types.GapRun) types.GapRun {
	var best types.GapRun
	for _, r := range runs {
		if r.Length > best.Length {
			best = r
		}
	}
	return best
}

// locationState returns the verdict of the latest evaluated day, or
// StateNoData when no day could be evaluated.
func locationState(lr types.LocationReport) string {
	if len(lr.Days) == 0 {
		return StateNoData
	}
	return string(lr.Days[len(lr.Days)-1].Verdict)
}
