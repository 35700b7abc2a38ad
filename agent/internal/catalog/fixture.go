package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// fixtureFile is the YAML layout read by LoadFixture:
//
//	series:
//	  - location: CBCH.H1
//	    channel: wav
//	    expected: 12        # optional, estimated when omitted
//	    days:
//	      "2025-07-01": 12
//	      "2025-07-02": 3
type fixtureFile struct {
	Series []fixtureSeries `yaml:"series"`
}

type fixtureSeries struct {
	Location string         `yaml:"location"`
	Channel  string         `yaml:"channel"`
	Expected *int           `yaml:"expected"`
	Days     map[string]int `yaml:"days"`
}

type seriesKey struct{ location, channel string }

type series struct {
	expected *int
	days     map[types.Date]int
}

// Fixture is a Source backed by a static set of counts, for offline runs
// and tests.
type Fixture struct {
	series   map[seriesKey]series
	minimum  int
	fallback int
}

// LoadFixture reads a fixture file.
func LoadFixture(path string, minimum, fallback int) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read file: %w", err)
	}
	var ff fixtureFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("fixture: parse yaml: %w", err)
	}

	f := &Fixture{series: make(map[seriesKey]series), minimum: minimum, fallback: fallback}
	for i, s := range ff.Series {
		if s.Location == "" || s.Channel == "" {
			return nil, fmt.Errorf("fixture: series[%d]: location and channel are required", i)
		}
		days := make(map[types.Date]int, len(s.Days))
		for raw, n := range s.Days {
			d, err := types.ParseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("fixture: series[%d]: %w", i, err)
			}
			days[d] = n
		}
		f.series[seriesKey{s.Location, s.Channel}] = series{expected: s.Expected, days: days}
	}
	return f, nil
}

// Counts returns the fixture's counts; dates and series it does not list
// count as zero files.
func (f *Fixture) Counts(_ context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error) {
	s := f.series[seriesKey{location, channel}]
	var expected map[types.Date]int
	if s.expected != nil {
		expected = make(map[types.Date]int)
		for _, d := range types.DateRange(from, to) {
			expected[d] = *s.expected
		}
	}
	return fill(location, channel, from, to, s.days, expected, f.minimum, f.fallback), nil
}
