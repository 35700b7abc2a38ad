package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Archive exporter gauge names.
const (
	// Files archived per location, channel and UTC day.
	metricFilesObserved = "hydrophone_archive_files_observed"

	// Files the exporter expects per day. Optional; estimated when absent.
	metricFilesExpected = "hydrophone_archive_files_expected"
)

// Label names on both gauges.
const (
	labelLocation = "location_code"
	labelChannel  = "channel"
	labelDate     = "date"
)

type promSource struct {
	cfg    config.CatalogConfig
	client *http.Client
}

// Counts reads an archive exporter's text exposition and picks the samples
// for location and channel.
func (s *promSource) Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.cfg.Endpoint)
	if err != nil {
		slog.Warn("catalog: prometheus fetch failed", "location", location, "channel", channel, "err", err)
		return nil, fmt.Errorf("prometheus %s/%s: %w", location, channel, err)
	}

	observed := samplesByDate(mfs[metricFilesObserved], location, channel, from, to)
	expected := samplesByDate(mfs[metricFilesExpected], location, channel, from, to)
	return fill(location, channel, from, to, observed, expected, s.cfg.MinExpected, s.cfg.DefaultExpected), nil
}

// samplesByDate returns the gauge, counter or untyped values of mf whose
// labels match location and channel, keyed by their date label. Returns
// nil if mf is nil (metric not present in the scrape).
func samplesByDate(mf *dto.MetricFamily, location, channel string, from, to types.Date) map[types.Date]int {
	if mf == nil {
		return nil
	}
	out := make(map[types.Date]int)
	for _, m := range mf.GetMetric() {
		labels := labelMap(m)
		if labels[labelLocation] != location || labels[labelChannel] != channel {
			continue
		}
		d, err := types.ParseDate(labels[labelDate])
		if err != nil || d.Before(from) || d.After(to) {
			continue
		}
		var v float64
		switch {
		case m.Gauge != nil:
			v = m.Gauge.GetValue()
		case m.Counter != nil:
			v = m.Counter.GetValue()
		case m.Untyped != nil:
			v = m.Untyped.GetValue()
		}
		out[d] += int(v)
	}
	return out
}

func labelMap(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}
