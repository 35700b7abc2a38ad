package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hydrowatch/hydrowatch/server/internal/api"
	"github.com/hydrowatch/hydrowatch/server/internal/store"
)

// Broadcast event names.
const (
	EventSnapshot = "snapshot"
	EventReport   = "report"
)

// Message is the JSON envelope sent to subscribers. Ticks and new
// connections carry EventSnapshot; a broadcast triggered by an accepted
// report carries EventReport and the report's run id.
type Message struct {
	Event string               `json:"event"`
	RunID string               `json:"run_id,omitempty"`
	Data  api.SnapshotResponse `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// Origins are not checked here; the reverse proxy owns CORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub pushes coverage snapshots to WebSocket subscribers.
type Hub struct {
	store    *store.Store
	interval time.Duration
	pending  chan string

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New returns a Hub that reads from st and broadcasts every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		pending:  make(chan string, 1),
		subs:     make(map[*subscriber]struct{}),
	}
}

// Notify asks for a broadcast of the report runID as soon as possible. It
// never blocks: an undelivered run id is replaced by the newer one.
func (h *Hub) Notify(runID string) {
	for {
		select {
		case h.pending <- runID:
			return
		default:
		}
		select {
		case <-h.pending:
		default:
		}
	}
}

// Run broadcasts on every tick and on every Notify until ctx is done, then
// disconnects all subscribers.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return
		case <-tick.C:
			h.publish(EventSnapshot, "")
		case runID := <-h.pending:
			h.publish(EventReport, runID)
		}
	}
}

// ServeHTTP upgrades the request and streams snapshots until the peer goes
// away. An optional location query parameter (comma separated codes) limits
// the locations sent to this subscriber; health always covers every
// location.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := newSubscriber(conn, parseFilter(r.URL.Query().Get("location")))
	if b, err := s.encode(EventSnapshot, "", api.BuildSnapshot(h.store)); err == nil {
		s.offer(b)
	}
	h.add(s)
	defer h.remove(s)
	slog.Debug("ws: subscriber connected", "remote", r.RemoteAddr, "filter", len(s.filter))

	go s.writeLoop()
	s.readLoop()
	slog.Debug("ws: subscriber gone", "remote", r.RemoteAddr)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.out)
}

// publish builds one snapshot and hands it to every subscriber. Unfiltered
// subscribers share a single encoding. A subscriber that is not keeping up
// is disconnected. Sends happen under the read lock so remove cannot close
// a queue mid-send.
func (h *Hub) publish(event, runID string) {
	snap := api.BuildSnapshot(h.store)
	shared, err := json.Marshal(Message{Event: event, RunID: runID, Data: snap})
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		b := shared
		if len(s.filter) > 0 {
			if b, err = s.encode(event, runID, snap); err != nil {
				continue
			}
		}
		if !s.offer(b) {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		slog.Warn("ws: dropping slow subscriber")
		h.remove(s)
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.out)
	}
}
