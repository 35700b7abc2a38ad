package types

import "time"

// Verdict is the health status of one channel-day or location-day.
type Verdict string

// Verdict values. Severity order is Good < Diverted < Warning < Critical.
const (
	VerdictGood     Verdict = "good"
	VerdictDiverted Verdict = "diverted"
	VerdictWarning  Verdict = "warning"
	VerdictCritical Verdict = "critical"
)

// Severity ranks v for worst-of comparisons. Unknown verdicts rank lowest.
func (v Verdict) Severity() int {
	switch v {
	case VerdictDiverted:
		return 1
	case VerdictWarning:
		return 2
	case VerdictCritical:
		return 3
	default:
		return 0
	}
}

// Shortfall reports whether v is an unexplained coverage shortfall
// (Warning or Critical).
func (v Verdict) Shortfall() bool {
	return v == VerdictWarning || v == VerdictCritical
}

// ChannelDay identifies one instrument channel on one calendar date together
// with its catalog file counts.
type ChannelDay struct {
	LocationCode string `json:"location_code"`
	Channel      string `json:"channel"`
	Date         Date   `json:"date"`
	Observed     int    `json:"observed_count"`
	Expected     int    `json:"expected_count"`

	// Estimated marks an Expected derived from the window's observed counts
	// rather than reported by the catalog.
	Estimated bool `json:"expected_estimated,omitempty"`
}

// DivertEvent is one raw divert notification interval, as supplied by the
// notice ingester or static configuration. Bounds are inclusive.
type DivertEvent struct {
	LocationCode string `json:"location_code"`
	Start        Date   `json:"start_date"`
	End          Date   `json:"end_date"`
	Source       string `json:"source,omitempty"`
}

// DivertWindow is a normalised, inclusive divert interval for one location.
type DivertWindow struct {
	LocationCode string `json:"location_code"`
	Start        Date   `json:"start_date"`
	End          Date   `json:"end_date"`
}

// Contains reports whether d falls within w, boundaries included.
func (w DivertWindow) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Days returns the number of calendar days covered by w.
func (w DivertWindow) Days() int {
	return w.End.DaysSince(w.Start) + 1
}

// DayVerdict is the classification of one day, either for a single channel
// or rolled up for a location.
type DayVerdict struct {
	Date     Date    `json:"date"`
	Verdict  Verdict `json:"verdict"`
	Ratio    float64 `json:"coverage_ratio"`
	Diverted bool    `json:"divert_overlap"`
}

// GapRun is a closed run of consecutive Warning/Critical days.
type GapRun struct {
	Start  Date `json:"start_date"`
	End    Date `json:"end_date"`
	Length int  `json:"length"`
}

// LocationSummary is the rollup of a verdict sequence over the reporting
// window.
type LocationSummary struct {
	LocationCode string `json:"location_code"`
	Days         int    `json:"days"`
	Good         int    `json:"good"`
	Diverted     int    `json:"diverted"`
	Warning      int    `json:"warning"`
	Critical     int    `json:"critical"`

	// Unevaluated counts window days with no verdict. They count against
	// CompletenessPct.
	Unevaluated     int      `json:"unevaluated"`
	Runs            []GapRun `json:"runs"`
	CompletenessPct float64  `json:"completeness_pct"`
}

// ChannelReport is the per-channel breakdown within a LocationReport.
type ChannelReport struct {
	Channel        string          `json:"channel"`
	Summary        LocationSummary `json:"summary"`
	Days           []DayVerdict    `json:"days"`
	AvgCoveragePct float64         `json:"avg_coverage_pct"`
}

// LocationReport is the full analysis output for one location.
type LocationReport struct {
	LocationCode string          `json:"location_code"`
	WindowStart  Date            `json:"window_start"`
	WindowEnd    Date            `json:"window_end"`
	Summary      LocationSummary `json:"summary"`
	Days         []DayVerdict    `json:"days"`
	Channels     []ChannelReport `json:"channels"`

	// Unevaluated lists window days for which no channel had a valid record.
	Unevaluated []Date `json:"unevaluated,omitempty"`

	// LastDataDate is the most recent window day with any observed file.
	LastDataDate      *Date `json:"last_data_date,omitempty"`
	DaysSinceLastData int   `json:"days_since_last_data"`

	// MissingChannels lists channels below the coverage threshold on more
	// than half of their evaluated days.
	MissingChannels []string `json:"missing_channels,omitempty"`

	// RecentPoorDays counts Warning/Critical location-days among the most
	// recent days of the window.
	RecentPoorDays int `json:"recent_poor_days"`

	CurrentlyDiverted bool           `json:"currently_diverted"`
	DivertWindows     []DivertWindow `json:"divert_windows,omitempty"`
}

// Skip kinds recorded in SkippedInput.Kind.
const (
	SkipExpectedCount = "invalid_expected_count"
	SkipObservedCount = "invalid_observed_count"
	SkipDivertWindow  = "invalid_divert_window"
	SkipMissingRecord = "missing_record"
	SkipCatalog       = "catalog_error"
)

// SkippedInput is one record excluded from analysis, with the reason.
type SkippedInput struct {
	Kind         string `json:"kind"`
	LocationCode string `json:"location_code,omitempty"`
	Channel      string `json:"channel,omitempty"`
	Date         *Date  `json:"date,omitempty"`
	Start        *Date  `json:"start_date,omitempty"`
	End          *Date  `json:"end_date,omitempty"`
	Reason       string `json:"reason"`
}

// AnalysisParams echoes the thresholds a report was produced with.
type AnalysisParams struct {
	CoverageThreshold   float64 `json:"coverage_threshold"`
	GoodThreshold       float64 `json:"good_threshold"`
	ReportingWindowDays int     `json:"reporting_window_days"`
	DivertMergeGapDays  int     `json:"divert_merge_gap_days"`
	DivertPolicy        string  `json:"divert_policy"`
	DivertCoverageFloor float64 `json:"divert_coverage_floor,omitempty"`
}

// Report is the result of one analysis run across all locations.
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	AsOf        Date             `json:"as_of"`
	Params      AnalysisParams   `json:"params"`
	Locations   []LocationReport `json:"locations"`
	Skipped     []SkippedInput   `json:"skipped"`
}
