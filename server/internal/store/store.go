package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Entry is a location report together with the run it came from and the
// time it was last received.
type Entry struct {
	Report    types.LocationReport
	RunID     string
	AsOf      types.Date
	UpdatedAt time.Time
}

// RunInfo describes the most recently accepted analysis run.
type RunInfo struct {
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	AsOf        types.Date           `json:"as_of"`
	Params      types.AnalysisParams `json:"params"`
	Locations   int                  `json:"locations"`
	Skipped     []types.SkippedInput `json:"skipped"`
	ReceivedAt  time.Time            `json:"received_at"`
}

// Store is a thread-safe in-memory report store, keyed by location code.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL. A zero TTL disables eviction.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	last *RunInfo
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores every location report in r and records r as the latest run.
// A location whose stored report has a later as-of date than r keeps it, so
// a delayed retry cannot roll a location back. Put returns the number of
// locations updated. Callers must not modify r after calling Put.
func (s *Store) Put(r *types.Report) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	updated := 0
	for _, lr := range r.Locations {
		if cur, ok := s.data[lr.LocationCode]; ok && cur.AsOf.After(r.AsOf) {
			continue
		}
		s.data[lr.LocationCode] = &Entry{
			Report:    lr,
			RunID:     r.RunID,
			AsOf:      r.AsOf,
			UpdatedAt: now,
		}
		updated++
	}

	if s.last == nil || !s.last.AsOf.After(r.AsOf) {
		s.last = &RunInfo{
			RunID:       r.RunID,
			GeneratedAt: r.GeneratedAt,
			AsOf:        r.AsOf,
			Params:      r.Params,
			Locations:   len(r.Locations),
			Skipped:     r.Skipped,
			ReceivedAt:  now,
		}
	}
	return updated
}

// Get returns the Entry for the given location code and a boolean indicating
// whether an entry was found. The entry may be stale if TTL has elapsed.
func (s *Store) Get(code string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[code]
	return e, ok
}

// GetLive is Get restricted to entries still within the TTL.
func (s *Store) GetLive(code string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[code]
	if !ok || !s.live(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns all live entries sorted by location code. Stale entries that
// have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, s.now()) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Report.LocationCode < out[j].Report.LocationCode })
	return out
}

// LastRun returns the most recently accepted run, if any.
func (s *Store) LastRun() (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunInfo{}, false
	}
	return *s.last, true
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for code, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, code)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled; with a zero TTL it only waits for cancellation.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale location reports", "count", n)
			}
		}
	}
}
