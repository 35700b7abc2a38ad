package compute

import (
	"fmt"
	"math"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Defaults used when a configuration leaves a parameter unset.
const (
	DefaultCoverageThreshold   = 0.30
	DefaultGoodThreshold       = 1.0
	DefaultReportingWindowDays = 7
	DefaultDivertMergeGapDays  = 1
	DefaultRecentDays          = 3
	DefaultConcurrency         = 4
)

// Divert policies.
const (
	// PolicyMaskAll excuses every shortfall that overlaps a divert window.
	PolicyMaskAll = "mask_all"

	// PolicyFloor excuses an overlapping shortfall only when the ratio is
	// at or above Params.DivertCoverageFloor.
	PolicyFloor = "floor"
)

// Params are the analysis thresholds and window settings for one run.
type Params struct {
	CoverageThreshold   float64
	GoodThreshold       float64
	ReportingWindowDays int
	DivertMergeGapDays  int
	DivertPolicy        string
	DivertCoverageFloor float64

	// RecentDays is the tail of the window counted in
	// LocationReport.RecentPoorDays.
	RecentDays int

	// Concurrency bounds how many locations are fetched at once.
	Concurrency int
}

// DefaultParams returns the stock thresholds.
func DefaultParams() Params {
	return Params{
		CoverageThreshold:   DefaultCoverageThreshold,
		GoodThreshold:       DefaultGoodThreshold,
		ReportingWindowDays: DefaultReportingWindowDays,
		DivertMergeGapDays:  DefaultDivertMergeGapDays,
		DivertPolicy:        PolicyMaskAll,
		RecentDays:          DefaultRecentDays,
		Concurrency:         DefaultConcurrency,
	}
}

// Validate returns a *ConfigError for the first parameter that cannot be
// used.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.CoverageThreshold):
		return &ConfigError{Field: "coverage_threshold", Reason: "must be a number"}
	case math.IsNaN(p.GoodThreshold):
		return &ConfigError{Field: "good_threshold", Reason: "must be a number"}
	case math.IsNaN(p.DivertCoverageFloor):
		return &ConfigError{Field: "divert_coverage_floor", Reason: "must be a number"}
	case p.CoverageThreshold < 0 || p.CoverageThreshold > 1:
		return &ConfigError{Field: "coverage_threshold", Reason: fmt.Sprintf("%v is outside [0, 1]", p.CoverageThreshold)}
	case p.GoodThreshold < 0 || p.GoodThreshold > 1:
		return &ConfigError{Field: "good_threshold", Reason: fmt.Sprintf("%v is outside [0, 1]", p.GoodThreshold)}
	case p.GoodThreshold < p.CoverageThreshold:
		return &ConfigError{Field: "good_threshold", Reason: "must not be below coverage_threshold"}
	case p.ReportingWindowDays <= 0:
		return &ConfigError{Field: "reporting_window_days", Reason: "must be positive"}
	case p.DivertMergeGapDays < 0:
		return &ConfigError{Field: "divert_merge_gap_days", Reason: "must not be negative"}
	case p.RecentDays < 0:
		return &ConfigError{Field: "recent_days", Reason: "must not be negative"}
	case p.Concurrency < 0:
		return &ConfigError{Field: "concurrency", Reason: "must not be negative"}
	}
	switch p.DivertPolicy {
	case "", PolicyMaskAll:
	case PolicyFloor:
		if p.DivertCoverageFloor < 0 || p.DivertCoverageFloor > p.CoverageThreshold {
			return &ConfigError{Field: "divert_coverage_floor", Reason: "must be within [0, coverage_threshold]"}
		}
	default:
		return &ConfigError{Field: "divert_policy", Reason: fmt.Sprintf("unknown policy %q", p.DivertPolicy)}
	}
	return nil
}

// Echo returns the parameters in report form.
func (p Params) Echo() types.AnalysisParams {
	policy := p.DivertPolicy
	if policy == "" {
		policy = PolicyMaskAll
	}
	out := types.AnalysisParams{
		CoverageThreshold:   p.CoverageThreshold,
		GoodThreshold:       p.GoodThreshold,
		ReportingWindowDays: p.ReportingWindowDays,
		DivertMergeGapDays:  p.DivertMergeGapDays,
		DivertPolicy:        policy,
	}
	if policy == PolicyFloor {
		out.DivertCoverageFloor = p.DivertCoverageFloor
	}
	return out
}

// DivertLookup answers whether a location was diverted on a date.
// *divert.Index satisfies it.
type DivertLookup interface {
	Overlaps(location string, d types.Date) bool
}

// Classifier maps coverage ratios to verdicts. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	p       Params
	diverts DivertLookup
}

// NewClassifier validates p and returns a Classifier. diverts may be nil,
// in which case no day is treated as diverted.
func NewClassifier(p Params, diverts DivertLookup) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{p: p, diverts: diverts}, nil
}

// Verdict applies the decision rule. All comparisons are inclusive:
//
//	ratio >= good           → Good
//	diverted (per policy)   → Diverted
//	ratio >= coverage       → Warning
//	otherwise               → Critical
func (c *Classifier) Verdict(ratio float64, diverted bool) types.Verdict {
	switch {
	case ratio >= c.p.GoodThreshold:
		return types.VerdictGood
	case diverted && c.excuses(ratio):
		return types.VerdictDiverted
	case ratio >= c.p.CoverageThreshold:
		return types.VerdictWarning
	default:
		return types.VerdictCritical
	}
}

func (c *Classifier) excuses(ratio float64) bool {
	if c.p.DivertPolicy == PolicyFloor {
		return ratio >= c.p.DivertCoverageFloor
	}
	return true
}

// Classify computes the ratio for day and classifies it. A record with
// invalid counts returns an *InputError and no verdict.
func (c *Classifier) Classify(day types.ChannelDay) (types.DayVerdict, error) {
	ratio, err := Ratio(day.Observed, day.Expected)
	if err != nil {
		return types.DayVerdict{}, &InputError{Record: day, Err: err}
	}
	diverted := c.diverts != nil && c.diverts.Overlaps(day.LocationCode, day.Date)
	return types.DayVerdict{
		Date:     day.Date,
		Verdict:  c.Verdict(ratio, diverted),
		Ratio:    ratio,
		Diverted: diverted,
	}, nil
}
