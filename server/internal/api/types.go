package api

import "github.com/hydrowatch/hydrowatch/pkg/types"

// Location states reported by the API. A location's state is the verdict of
// its most recent evaluated day, or StateNoData when it has none.
const (
	StateGood     = string(types.VerdictGood)
	StateDiverted = string(types.VerdictDiverted)
	StateWarning  = string(types.VerdictWarning)
	StateCritical = string(types.VerdictCritical)
	StateNoData   = "no_data"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State              string  `json:"state"`
	LocationCount      int     `json:"location_count"`
	GoodCount          int     `json:"good_count"`
	DivertedCount      int     `json:"diverted_count"`
	WarningCount       int     `json:"warning_count"`
	CriticalCount      int     `json:"critical_count"`
	NoDataCount        int     `json:"no_data_count"`
	AvgCompletenessPct float64 `json:"avg_completeness_pct"`
	LastRunID          string  `json:"last_run_id,omitempty"`
	LastAsOf           string  `json:"last_as_of,omitempty"`
	LastReceived       string  `json:"last_received,omitempty"` // RFC3339
	SkippedCount       int     `json:"skipped_count"`
}

// LocationResponse is one entry in GET /api/v1/locations.
type LocationResponse struct {
	LocationCode      string                `json:"location_code"`
	State             string                `json:"state"`
	RunID             string                `json:"run_id"`
	AsOf              types.Date            `json:"as_of"`
	WindowStart       types.Date            `json:"window_start"`
	WindowEnd         types.Date            `json:"window_end"`
	Summary           types.LocationSummary `json:"summary"`
	CurrentlyDiverted bool                  `json:"currently_diverted"`
	RecentPoorDays    int                   `json:"recent_poor_days"`
	DaysSinceLastData int                   `json:"days_since_last_data"`
	MissingChannels   []string              `json:"missing_channels"`
	Diagnostics       []DiagnosticHint      `json:"diagnostics"`
	LastSeen          string                `json:"last_seen"` // RFC3339
}

// LocationDetailResponse is the payload for GET /api/v1/locations/{code}.
type LocationDetailResponse struct {
	LocationResponse
	Report types.LocationReport `json:"report"`
}

// SkippedResponse is the payload for GET /api/v1/skipped.
type SkippedResponse struct {
	RunID   string               `json:"run_id,omitempty"`
	AsOf    string               `json:"as_of,omitempty"`
	ByKind  map[string]int       `json:"by_kind"`
	Skipped []types.SkippedInput `json:"skipped"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the body of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Health      HealthResponse     `json:"health"`
	Locations   []LocationResponse `json:"locations"`
	GeneratedAt string             `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
