package api

import (
	"log/slog"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/hydrowatch/hydrowatch/pkg/types"
	"github.com/hydrowatch/hydrowatch/server/internal/store"
)

// Gauge names exposed on /metrics.
const (
	metricCompleteness   = "hydrowatch_location_completeness_pct"
	metricDays           = "hydrowatch_location_days"
	metricRecentPoor     = "hydrowatch_location_recent_poor_days"
	metricSinceLastData  = "hydrowatch_location_days_since_last_data"
	metricDiverted       = "hydrowatch_location_currently_diverted"
	metricChannelAvg     = "hydrowatch_channel_avg_coverage_pct"
	metricSkippedInputs  = "hydrowatch_skipped_inputs"
	metricLastRunAsOfSec = "hydrowatch_last_run_as_of_seconds"
)

// metrics returns GET /metrics — live coverage state in the Prometheus text
// exposition format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range BuildMetricFamilies(h.store) {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("api: encode metric family", "name", mf.GetName(), "err", err)
			return
		}
	}
}

// BuildMetricFamilies renders the store's live entries and latest run as
// gauge families, sorted by name.
func BuildMetricFamilies(st *store.Store) []*dto.MetricFamily {
	fams := map[string]*dto.MetricFamily{}
	add := func(name, help string, value float64, labels ...string) {
		mf, ok := fams[name]
		if !ok {
			mf = &dto.MetricFamily{Name: strPtr(name), Help: strPtr(help), Type: dto.MetricType_GAUGE.Enum()}
			fams[name] = mf
		}
		m := &dto.Metric{Gauge: &dto.Gauge{Value: &value}}
		for i := 0; i+1 < len(labels); i += 2 {
			m.Label = append(m.Label, &dto.LabelPair{Name: strPtr(labels[i]), Value: strPtr(labels[i+1])})
		}
		mf.Metric = append(mf.Metric, m)
	}

	for _, e := range st.List() {
		lr := e.Report
		loc := lr.LocationCode
		add(metricCompleteness, "Share of window days that were Good or Diverted.", lr.Summary.CompletenessPct, "location_code", loc)
		for _, v := range []struct {
			verdict types.Verdict
			n       int
		}{
			{types.VerdictGood, lr.Summary.Good},
			{types.VerdictDiverted, lr.Summary.Diverted},
			{types.VerdictWarning, lr.Summary.Warning},
			{types.VerdictCritical, lr.Summary.Critical},
		} {
			add(metricDays, "Window days per verdict.", float64(v.n), "location_code", loc, "verdict", string(v.verdict))
		}
		add(metricRecentPoor, "Warning or Critical days among the most recent days.", float64(lr.RecentPoorDays), "location_code", loc)
		add(metricSinceLastData, "Days since the last archived file; -1 when none in window.", float64(lr.DaysSinceLastData), "location_code", loc)
		add(metricDiverted, "1 when the location's data is currently diverted.", boolGauge(lr.CurrentlyDiverted), "location_code", loc)
		for _, ch := range lr.Channels {
			add(metricChannelAvg, "Mean daily coverage per channel over the window.", ch.AvgCoveragePct, "location_code", loc, "channel", ch.Channel)
		}
	}

	if run, ok := st.LastRun(); ok {
		byKind := map[string]int{}
		for _, s := range run.Skipped {
			byKind[s.Kind]++
		}
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			add(metricSkippedInputs, "Inputs excluded from the latest run, by kind.", float64(byKind[k]), "kind", k)
		}
		add(metricLastRunAsOfSec, "As-of date of the latest accepted run, as a Unix timestamp.", float64(run.AsOf.Time().Unix()))
	}

	names := make([]string, 0, len(fams))
	for n := range fams {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*dto.MetricFamily, 0, len(names))
	for _, n := range names {
		out = append(out, fams[n])
	}
	return out
}

func strPtr(s string) *string { return &s }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
