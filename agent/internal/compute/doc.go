// Package compute turns catalog file counts into coverage verdicts.
//
// coverage.go holds the pure Ratio calculator. classify.go maps a ratio and
// a divert overlap to one of Good, Diverted, Warning or Critical using
// inclusive thresholds:
//
//	ratio >= good_threshold      → Good
//	overlaps a divert window     → Diverted
//	ratio >= coverage_threshold  → Warning
//	otherwise                    → Critical
//
// aggregate.go folds a chronological verdict sequence into a
// LocationSummary with closed Warning/Critical runs and a completeness
// percentage.
//
// engine.go drives one analysis run: it fetches counts per location over a
// bounded worker group, classifies every channel-day and rolls channels up
// into location-days (worst channel wins). The engine keeps no state
// between runs.
package compute
