package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hydrowatch/hydrowatch/pkg/types"
	"github.com/hydrowatch/hydrowatch/server/internal/store"
	"github.com/hydrowatch/hydrowatch/server/internal/ws"
)

const tick = 20 * time.Millisecond

// frame is the decoded shape of a hub message.
type frame struct {
	Event string `json:"event"`
	RunID string `json:"run_id"`
	Data  struct {
		GeneratedAt string                 `json:"generated_at"`
		Health      map[string]interface{} `json:"health"`
		Locations   []struct {
			LocationCode string `json:"location_code"`
		} `json:"locations"`
	} `json:"data"`
}

func (f frame) codes() []string {
	out := make([]string, 0, len(f.Data.Locations))
	for _, l := range f.Data.Locations {
		out = append(out, l.LocationCode)
	}
	return out
}

func seeded(codes ...string) *store.Store {
	st := store.New(5 * time.Minute)
	if len(codes) > 0 {
		st.Put(report("run-0", codes...))
	}
	return st
}

func report(runID string, codes ...string) *types.Report {
	r := &types.Report{RunID: runID, AsOf: types.NewDate(2025, time.July, 7)}
	for _, c := range codes {
		r.Locations = append(r.Locations, types.LocationReport{LocationCode: c})
	}
	return r
}

// serve runs hub behind an httptest server and returns its ws:// URL and a
// stop function that cancels Run.
func serve(t *testing.T, hub *ws.Hub) (string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(hub)
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func connect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return f
}

// eventually polls cond for up to a second.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectSendsSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
	}{
		{"empty store", nil},
		{"two locations", []string{"A", "B"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			url, _ := serve(t, ws.New(seeded(tc.codes...), time.Hour))
			f := next(t, connect(t, url))
			if f.Event != ws.EventSnapshot {
				t.Errorf("event: got %q, want snapshot", f.Event)
			}
			if f.Data.GeneratedAt == "" || f.Data.Health == nil {
				t.Errorf("snapshot incomplete: %+v", f.Data)
			}
			if got := len(f.Data.Locations); got != len(tc.codes) {
				t.Errorf("locations: got %d, want %d", got, len(tc.codes))
			}
		})
	}
}

func TestLocationFilter(t *testing.T) {
	url, _ := serve(t, ws.New(seeded("A", "B", "C"), time.Hour))
	f := next(t, connect(t, url+"?location=C,%20A,"))
	if got := f.codes(); len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("filtered locations: got %v, want [A C]", got)
	}
	if f.Data.Health["location_count"] != float64(3) {
		t.Errorf("health should cover all locations, got %v", f.Data.Health["location_count"])
	}
}

func TestTickBroadcastsNewData(t *testing.T) {
	st := seeded()
	url, _ := serve(t, ws.New(st, tick))
	conn := connect(t, url)
	next(t, conn)

	st.Put(report("run-1", "NEW.H1"))

	// A tick may already have been built before Put; allow a few.
	var got []string
	for i := 0; i < 5 && len(got) == 0; i++ {
		got = next(t, conn).codes()
	}
	if len(got) != 1 || got[0] != "NEW.H1" {
		t.Errorf("tick locations: got %v, want [NEW.H1]", got)
	}
}

func TestNotifyBroadcastsReport(t *testing.T) {
	st := seeded()
	hub := ws.New(st, time.Hour)
	url, _ := serve(t, hub)
	conn := connect(t, url+"?location=A")
	next(t, conn)
	eventually(t, "subscriber", func() bool { return hub.Count() == 1 })

	st.Put(report("run-7", "A", "B"))
	hub.Notify("run-7")

	f := next(t, conn)
	if f.Event != ws.EventReport || f.RunID != "run-7" {
		t.Errorf("got event %q run %q, want report run-7", f.Event, f.RunID)
	}
	if got := f.codes(); len(got) != 1 || got[0] != "A" {
		t.Errorf("locations: got %v, want [A]", got)
	}
}

func TestNotifyNeverBlocks(t *testing.T) {
	hub := ws.New(seeded(), time.Hour)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Notify("run")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a running hub")
	}
}

func TestCountTracksSubscribers(t *testing.T) {
	hub := ws.New(seeded(), time.Hour)
	url, _ := serve(t, hub)

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		c := connect(t, url)
		next(t, c)
		conns = append(conns, c)
	}
	eventually(t, "3 subscribers", func() bool { return hub.Count() == 3 })

	conns[0].Close()
	eventually(t, "2 subscribers", func() bool { return hub.Count() == 2 })
}

func TestShutdownDisconnects(t *testing.T) {
	hub := ws.New(seeded(), time.Hour)
	url, stop := serve(t, hub)
	conn := connect(t, url)
	next(t, conn)
	eventually(t, "subscriber", func() bool { return hub.Count() == 1 })

	stop()
	eventually(t, "no subscribers", func() bool { return hub.Count() == 0 })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after shutdown")
	}
}

func TestPlainHTTPRejected(t *testing.T) {
	srv := httptest.NewServer(ws.New(seeded(), tick))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
