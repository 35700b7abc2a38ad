package ws

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hydrowatch/hydrowatch/server/internal/api"
)

const (
	writeWait = 10 * time.Second

	// A peer that sends no pong within pongWait is considered dead. Pings go
	// out at 90% of that.
	pongWait   = time.Minute
	pingPeriod = pongWait * 9 / 10

	// outDepth is how many undelivered messages a subscriber may queue.
	outDepth = 16

	// Subscribers only send control frames.
	maxInbound = 512
)

type subscriber struct {
	conn   *websocket.Conn
	out    chan []byte
	filter map[string]struct{}
}

func newSubscriber(conn *websocket.Conn, filter map[string]struct{}) *subscriber {
	return &subscriber{conn: conn, out: make(chan []byte, outDepth), filter: filter}
}

// parseFilter splits a comma separated list of location codes. Empty input
// means no filter.
func parseFilter(raw string) map[string]struct{} {
	var f map[string]struct{}
	for _, code := range strings.Split(raw, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if f == nil {
			f = make(map[string]struct{})
		}
		f[code] = struct{}{}
	}
	return f
}

// encode renders snap for this subscriber, keeping only the locations in its
// filter.
func (s *subscriber) encode(event, runID string, snap api.SnapshotResponse) ([]byte, error) {
	if len(s.filter) > 0 {
		kept := make([]api.LocationResponse, 0, len(s.filter))
		for _, l := range snap.Locations {
			if _, ok := s.filter[l.LocationCode]; ok {
				kept = append(kept, l)
			}
		}
		snap.Locations = kept
	}
	return json.Marshal(Message{Event: event, RunID: runID, Data: snap})
}

// offer queues b without blocking. It reports false when the queue is full.
func (s *subscriber) offer(b []byte) bool {
	select {
	case s.out <- b:
		return true
	default:
		return false
	}
}

// writeLoop forwards queued messages and keeps the connection alive with
// pings. A closed out channel ends the stream with a close frame.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case b, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames until the peer disconnects or stops
// answering pings.
func (s *subscriber) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
