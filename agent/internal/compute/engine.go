package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hydrowatch/hydrowatch/agent/internal/divert"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// CountSource supplies catalog file counts for one location and channel over
// an inclusive date range. catalog.Source satisfies it.
type CountSource interface {
	Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error)
}

// RunInput is everything that varies between analysis runs.
type RunInput struct {
	// AsOf is the last day of the reporting window.
	AsOf types.Date

	// Events are raw divert intervals from static configuration.
	Events []types.DivertEvent

	// Timeline, when set, contributes the intervals reconstructed from
	// divert notices and the latest switch status per location.
	Timeline *divert.Timeline
}

// Engine runs one coverage analysis per call to Run. It keeps nothing
// between runs; a new Engine is built when configuration changes.
//
// Run is safe for concurrent use.
type Engine struct {
	params Params
	locs   *LocationTable
	src    CountSource
	now    func() time.Time
}

// NewEngine validates p and returns an Engine over locs.
func NewEngine(p Params, locs *LocationTable, src CountSource) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("compute: nil count source")
	}
	if p.Concurrency == 0 {
		p.Concurrency = DefaultConcurrency
	}
	return &Engine{params: p, locs: locs, src: src, now: time.Now}, nil
}

// Params returns the engine's analysis parameters.
func (e *Engine) Params() Params { return e.params }

// Locations returns the engine's location table.
func (e *Engine) Locations() *LocationTable { return e.locs }

// Window returns the inclusive reporting window ending at asOf.
func (e *Engine) Window(asOf types.Date) (from, to types.Date) {
	return asOf.AddDays(-(e.params.ReportingWindowDays - 1)), asOf
}

// Run fetches counts for every configured location, classifies each
// channel-day and folds the verdicts into per-location reports.
//
// Invalid records, rejected divert events and per-channel catalog failures
// are listed in Report.Skipped; they never abort the run. Run only fails
// when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, in RunInput) (*types.Report, error) {
	from, to := e.Window(in.AsOf)

	events := append([]types.DivertEvent(nil), in.Events...)
	if in.Timeline != nil {
		events = append(events, in.Timeline.Events...)
	}
	idx, rejected := divert.NewIndex(events, e.params.DivertMergeGapDays)

	cls, err := NewClassifier(e.params, idx)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	locs := e.locs.Locations()
	results := make([]locationResult, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.params.Concurrency)
	for i, loc := range locs {
		i, loc := i, loc
		g.Go(func() error {
			r, err := e.analyse(gctx, loc, cls, idx, in, from, to)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute: run %s: %w", runID, err)
	}

	report := &types.Report{
		RunID:       runID,
		GeneratedAt: e.now().UTC(),
		AsOf:        in.AsOf,
		Params:      e.params.Echo(),
		Locations:   make([]types.LocationReport, 0, len(locs)),
		Skipped:     []types.SkippedInput{},
	}
	for _, rj := range rejected {
		start, end := rj.Event.Start, rj.Event.End
		report.Skipped = append(report.Skipped, types.SkippedInput{
			Kind:         types.SkipDivertWindow,
			LocationCode: rj.Event.LocationCode,
			Start:        &start,
			End:          &end,
			Reason:       rj.Err.Error(),
		})
	}
	for _, r := range results {
		report.Locations = append(report.Locations, r.report)
		report.Skipped = append(report.Skipped, r.skipped...)
	}

	slog.Info("compute: run complete",
		"run_id", runID,
		"as_of", in.AsOf.String(),
		"locations", len(report.Locations),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

type locationResult struct {
	report  types.LocationReport
	skipped []types.SkippedInput
}

// analyse builds the report for one location. It returns an error only
// when ctx is done.
func (e *Engine) analyse(ctx context.Context, loc Location, cls *Classifier, idx *divert.Index, in RunInput, from, to types.Date) (locationResult, error) {
	window := types.DateRange(from, to)
	var (
		res      locationResult
		perDay   = make(map[types.Date][]types.DayVerdict, len(window))
		lastData types.Date
	)

	for _, ch := range loc.Channels {
		rows, err := e.src.Counts(ctx, loc.Code, ch, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return locationResult{}, ctx.Err()
			}
			slog.Warn("compute: catalog fetch failed",
				"location", loc.Code, "channel", ch, "err", err)
			res.skipped = append(res.skipped, types.SkippedInput{
				Kind:         types.SkipCatalog,
				LocationCode: loc.Code,
				Channel:      ch,
				Reason:       err.Error(),
			})
			res.report.Channels = append(res.report.Channels, channelReport(loc.Code, ch, nil, len(window)))
			continue
		}

		byDate := make(map[types.Date]types.ChannelDay, len(rows))
		for _, r := range rows {
			if _, dup := byDate[r.Date]; !dup {
				r.LocationCode, r.Channel = loc.Code, ch
				byDate[r.Date] = r
			}
		}

		var days []types.DayVerdict
		for _, d := range window {
			row, ok := byDate[d]
			if !ok {
				date := d
				res.skipped = append(res.skipped, types.SkippedInput{
					Kind:         types.SkipMissingRecord,
					LocationCode: loc.Code,
					Channel:      ch,
					Date:         &date,
					Reason:       "no catalog record for date",
				})
				continue
			}
			if row.Observed > 0 && row.Date.After(lastData) {
				lastData = row.Date
			}
			v, err := cls.Classify(row)
			if err != nil {
				slog.Debug("compute: skipping record",
					"location", loc.Code, "channel", ch, "date", d.String(), "err", err)
				date := d
				res.skipped = append(res.skipped, types.SkippedInput{
					Kind:         skipKind(err),
					LocationCode: loc.Code,
					Channel:      ch,
					Date:         &date,
					Reason:       err.Error(),
				})
				continue
			}
			days = append(days, v)
			perDay[d] = append(perDay[d], v)
		}
		res.report.Channels = append(res.report.Channels, channelReport(loc.Code, ch, days, len(window)))
	}

	rep := &res.report
	rep.LocationCode = loc.Code
	rep.WindowStart, rep.WindowEnd = from, to
	rep.Days = []types.DayVerdict{}
	for _, d := range window {
		vs := perDay[d]
		if len(vs) == 0 {
			rep.Unevaluated = append(rep.Unevaluated, d)
			continue
		}
		rep.Days = append(rep.Days, worstOf(vs))
	}
	rep.Summary = AggregateWindow(loc.Code, rep.Days, len(window))

	rep.DaysSinceLastData = -1
	if !lastData.IsZero() {
		ld := lastData
		rep.LastDataDate = &ld
		rep.DaysSinceLastData = in.AsOf.DaysSince(lastData)
	}

	for _, c := range rep.Channels {
		if missingChannel(c, e.params.CoverageThreshold) {
			rep.MissingChannels = append(rep.MissingChannels, c.Channel)
		}
	}

	recentFrom := in.AsOf.AddDays(-(e.params.RecentDays - 1))
	for _, d := range rep.Days {
		if !d.Date.Before(recentFrom) && d.Verdict.Shortfall() {
			rep.RecentPoorDays++
		}
	}

	if in.Timeline != nil {
		rep.CurrentlyDiverted = in.Timeline.Diverted(loc.Code)
	} else {
		rep.CurrentlyDiverted = idx.Overlaps(loc.Code, in.AsOf)
	}
	rep.DivertWindows = idx.Clip(loc.Code, from, to)

	return res, nil
}

func channelReport(location, channel string, days []types.DayVerdict, windowDays int) types.ChannelReport {
	if days == nil {
		days = []types.DayVerdict{}
	}
	cr := types.ChannelReport{
		Channel: channel,
		Summary: AggregateWindow(location, days, windowDays),
		Days:    days,
	}
	if len(days) > 0 {
		var sum float64
		for _, d := range days {
			sum += d.Ratio
		}
		cr.AvgCoveragePct = sum / float64(len(days)) * 100
	}
	return cr
}

// worstOf returns the most severe verdict among one day's channels. The
// ratio reported is the lowest channel ratio.
func worstOf(vs []types.DayVerdict) types.DayVerdict {
	out := vs[0]
	for _, v := range vs[1:] {
		if v.Verdict.Severity() > out.Verdict.Severity() {
			out.Verdict = v.Verdict
		}
		if v.Ratio < out.Ratio {
			out.Ratio = v.Ratio
		}
		out.Diverted = out.Diverted || v.Diverted
	}
	return out
}

// missingChannel reports whether a channel was below threshold on more than
// half of its evaluated days. A channel with no evaluated day is missing.
func missingChannel(c types.ChannelReport, threshold float64) bool {
	if len(c.Days) == 0 {
		return true
	}
	var below int
	for _, d := range c.Days {
		if d.Ratio < threshold {
			below++
		}
	}
	return below*2 > len(c.Days)
}

func skipKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidExpectedCount):
		return types.SkipExpectedCount
	case errors.Is(err, ErrInvalidObservedCount):
		return types.SkipObservedCount
	case errors.Is(err, ErrInvalidDivertWindow):
		return types.SkipDivertWindow
	default:
		return types.SkipMissingRecord
	}
}
