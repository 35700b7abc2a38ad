package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hydrowatch/hydrowatch/pkg/types"
	"github.com/hydrowatch/hydrowatch/server/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
// It reads coverage state from the report store and returns JSON responses.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given report store and registers all routes.
func New(st *store.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/locations", h.listLocations)
	h.mux.HandleFunc("/api/v1/locations/", h.getLocation) // subtree — extracts {code}
	h.mux.HandleFunc("/api/v1/skipped", h.skipped)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — overall state and per-state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, buildHealth(h.store, h.store.List()))
}

// listLocations returns GET /api/v1/locations — all live locations.
func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toLocationResponses(h.store.List()))
}

// getLocation returns GET /api/v1/locations/{code} — one location's full report.
func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	code := strings.TrimPrefix(r.URL.Path, "/api/v1/locations/")
	if code == "" {
		// Bare /api/v1/locations/ behaves like the list handler.
		h.listLocations(w, r)
		return
	}

	// Stale entries are treated as not found.
	e, ok := h.store.GetLive(code)
	if !ok {
		jsonErr(w, http.StatusNotFound, "location not found")
		return
	}
	jsonResp(w, http.StatusOK, LocationDetailResponse{
		LocationResponse: toLocationResponse(e),
		Report:           e.Report,
	})
}

// skipped returns GET /api/v1/skipped — inputs excluded from the latest run.
func (h *Handler) skipped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := SkippedResponse{ByKind: map[string]int{}, Skipped: []types.SkippedInput{}}
	if run, ok := h.store.LastRun(); ok {
		resp.RunID = run.RunID
		resp.AsOf = run.AsOf.String()
		if run.Skipped != nil {
			resp.Skipped = run.Skipped
		}
		for _, s := range run.Skipped {
			resp.ByKind[s.Kind]++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// snapshot returns GET /api/v1/snapshot — health plus every live location.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the snapshot payload served by /api/v1/snapshot
// and broadcast by the WebSocket hub.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	return SnapshotResponse{
		Health:      buildHealth(st, entries),
		Locations:   toLocationResponses(entries),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// stateRank orders location states for worst-of: no data ranks with
// critical.
func stateRank(state string) int {
	if state == StateNoData {
		return types.VerdictCritical.Severity()
	}
	return types.Verdict(state).Severity()
}

func buildHealth(st *store.Store, entries []*store.Entry) HealthResponse {
	resp := HealthResponse{LocationCount: len(entries)}
	if run, ok := st.LastRun(); ok {
		resp.LastRunID = run.RunID
		resp.LastAsOf = run.AsOf.String()
		resp.LastReceived = run.ReceivedAt.UTC().Format(time.RFC3339)
		resp.SkippedCount = len(run.Skipped)
	}

	if len(entries) == 0 {
		resp.State = "unknown"
		return resp
	}

	var total float64
	worst := StateGood
	for _, e := range entries {
		total += e.Report.Summary.CompletenessPct
		state := locationState(e.Report)
		switch state {
		case StateGood:
			resp.GoodCount++
		case StateDiverted:
			resp.DivertedCount++
		case StateWarning:
			resp.WarningCount++
		case StateCritical:
			resp.CriticalCount++
		default:
			resp.NoDataCount++
		}
		if stateRank(state) > stateRank(worst) {
			worst = state
		}
	}
	if worst == StateNoData {
		worst = StateCritical
	}
	resp.State = worst
	resp.AvgCompletenessPct = total / float64(len(entries))
	return resp
}

func toLocationResponses(entries []*store.Entry) []LocationResponse {
	out := make([]LocationResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLocationResponse(e))
	}
	return out
}

// toLocationResponse maps a store.Entry to its JSON representation.
func toLocationResponse(e *store.Entry) LocationResponse {
	lr := e.Report
	missing := lr.MissingChannels
	if missing == nil {
		missing = []string{}
	}
	return LocationResponse{
		LocationCode:      lr.LocationCode,
		State:             locationState(lr),
		RunID:             e.RunID,
		AsOf:              e.AsOf,
		WindowStart:       lr.WindowStart,
		WindowEnd:         lr.WindowEnd,
		Summary:           lr.Summary,
		CurrentlyDiverted: lr.CurrentlyDiverted,
		RecentPoorDays:    lr.RecentPoorDays,
		DaysSinceLastData: lr.DaysSinceLastData,
		MissingChannels:   missing,
		Diagnostics:       computeDiagnostics(lr),
		LastSeen:          e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
