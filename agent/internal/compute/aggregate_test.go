package compute

import (
	"reflect"
	"testing"
	"time"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

var (
	G = types.VerdictGood
	D = types.VerdictDiverted
	W = types.VerdictWarning
	C = types.VerdictCritical
)

// seq builds consecutive day verdicts starting 2025-07-01.
func seq(vs ...types.Verdict) []types.DayVerdict {
	start := types.NewDate(2025, time.July, 1)
	out := make([]types.DayVerdict, len(vs))
	for i, v := range vs {
		out[i] = types.DayVerdict{Date: start.AddDays(i), Verdict: v}
	}
	return out
}

func run(start, end, length int) types.GapRun {
	d := types.NewDate(2025, time.July, 1)
	return types.GapRun{Start: d.AddDays(start), End: d.AddDays(end), Length: length}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		days     []types.DayVerdict
		wantRuns []types.GapRun
		wantPct  float64
	}{
		{
			name:     "single run closed by good",
			days:     seq(G, C, C, W, G),
			wantRuns: []types.GapRun{run(1, 3, 3)},
			wantPct:  40,
		},
		{
			name:     "diverted closes a run",
			days:     seq(W, D, C),
			wantRuns: []types.GapRun{run(0, 0, 1), run(2, 2, 1)},
			wantPct:  100.0 / 3,
		},
		{
			name:     "run left open at end of input is closed",
			days:     seq(G, G, W, C),
			wantRuns: []types.GapRun{run(2, 3, 2)},
			wantPct:  50,
		},
		{
			name:     "all good",
			days:     seq(G, G, G),
			wantRuns: []types.GapRun{},
			wantPct:  100,
		},
		{
			name:     "empty window",
			days:     nil,
			wantRuns: []types.GapRun{},
			wantPct:  100,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Aggregate("CBCH.H1", tc.days)
			if s.LocationCode != "CBCH.H1" || s.Days != len(tc.days) {
				t.Errorf("header: got %s/%d", s.LocationCode, s.Days)
			}
			if !reflect.DeepEqual(s.Runs, tc.wantRuns) {
				t.Errorf("runs:\n got %v\nwant %v", s.Runs, tc.wantRuns)
			}
			if !almostEqual(s.CompletenessPct, tc.wantPct, 1e-9) {
				t.Errorf("completeness: got %v, want %v", s.CompletenessPct, tc.wantPct)
			}
			if s.Good+s.Diverted+s.Warning+s.Critical != s.Days {
				t.Errorf("counts do not add up: %+v", s)
			}
		})
	}
}

func TestAggregate_CalendarGapSplitsRun(t *testing.T) {
	days := seq(C, C, C, C)
	days = append(days[:2], days[3:]...) // drop day 2
	s := Aggregate("A", days)
	want := []types.GapRun{run(0, 1, 2), run(3, 3, 1)}
	if !reflect.DeepEqual(s.Runs, want) {
		t.Errorf("runs:\n got %v\nwant %v", s.Runs, want)
	}
}

func TestAggregate_RunLengthsMatchShortfallDays(t *testing.T) {
	vs := []types.Verdict{G, D, W, C}
	for mask := 0; mask < 1<<10; mask++ {
		var in []types.Verdict
		for i := 0; i < 5; i++ {
			in = append(in, vs[(mask>>(2*i))&3])
		}
		s := Aggregate("A", seq(in...))
		var total int
		for _, r := range s.Runs {
			if r.Length != r.End.DaysSince(r.Start)+1 {
				t.Fatalf("%v: run %v has inconsistent length", in, r)
			}
			total += r.Length
		}
		if total != s.Warning+s.Critical {
			t.Fatalf("%v: runs cover %d days, want %d", in, total, s.Warning+s.Critical)
		}
	}
}

func TestAggregateWindow(t *testing.T) {
	tests := []struct {
		name            string
		days            []types.DayVerdict
		window          int
		wantUnevaluated int
		wantPct         float64
	}{
		{"zero-length window", nil, 0, 0, 100},
		{"nothing evaluated", nil, 7, 7, 0},
		{"one good of seven", seq(G), 7, 6, 100.0 / 7},
		{"fully evaluated", seq(G, D, C, G), 4, 0, 75},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := AggregateWindow("A", tc.days, tc.window)
			if s.Unevaluated != tc.wantUnevaluated {
				t.Errorf("unevaluated: got %d, want %d", s.Unevaluated, tc.wantUnevaluated)
			}
			if !almostEqual(s.CompletenessPct, tc.wantPct, 1e-9) {
				t.Errorf("completeness: got %v, want %v", s.CompletenessPct, tc.wantPct)
			}
		})
	}
}
