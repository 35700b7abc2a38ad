package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hydrowatch/hydrowatch/pkg/types"
	"github.com/hydrowatch/hydrowatch/server/internal/store"
)

// maxBodyBytes bounds a single report upload.
const maxBodyBytes = 8 << 20

// Receiver is the HTTP endpoint hydrowatch agents POST reports to.
// It validates each incoming Report and stores it in the report store.
type Receiver struct {
	store    *store.Store
	onReport func(*types.Report)
}

// New creates a Receiver that writes accepted reports to st. onReport, when
// non-nil, is called after each accepted report.
func New(st *store.Store, onReport func(*types.Report)) *Receiver {
	return &Receiver{store: st, onReport: onReport}
}

type ackResponse struct {
	OK      bool   `json:"ok"`
	RunID   string `json:"run_id"`
	Updated int    `json:"updated"`
}

// ServeHTTP accepts POST requests carrying one JSON Report. Malformed or
// invalid reports are answered with 400 so the agent does not retry them.
// Authentication is enforced upstream by the auth middleware.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var rep types.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&rep); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "report too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, "decode report: "+err.Error())
		return
	}
	if err := Validate(&rep); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	n := rc.store.Put(&rep)
	slog.Debug("receiver: report stored",
		"run_id", rep.RunID,
		"as_of", rep.AsOf,
		"locations", len(rep.Locations),
		"updated", n,
		"skipped", len(rep.Skipped),
	)
	if rc.onReport != nil {
		rc.onReport(&rep)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ackResponse{OK: true, RunID: rep.RunID, Updated: n})
}

// Validate checks the structural fields a report must carry before it is
// stored: a run id, an as-of date and unique, non-empty location codes.
func Validate(r *types.Report) error {
	if r.RunID == "" {
		return errors.New("run_id is required")
	}
	if r.AsOf.IsZero() {
		return errors.New("as_of is required")
	}
	seen := make(map[string]struct{}, len(r.Locations))
	for i, lr := range r.Locations {
		if lr.LocationCode == "" {
			return fmt.Errorf("locations[%d].location_code is required", i)
		}
		if _, dup := seen[lr.LocationCode]; dup {
			return fmt.Errorf("locations[%d]: duplicate location %q", i, lr.LocationCode)
		}
		seen[lr.LocationCode] = struct{}{}
	}
	return nil
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
