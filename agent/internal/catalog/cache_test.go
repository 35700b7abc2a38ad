package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// memKV is an in-memory stand-in for the Redis client.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewSliceResult(nil, m.err)
	}
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			vals[i] = v
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

// countingSource counts calls to an inner fixture.
type countingSource struct {
	calls int
	next  Source
}

func (c *countingSource) Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error) {
	c.calls++
	return c.next.Counts(ctx, location, channel, from, to)
}

func fixtureSource(t *testing.T) Source {
	t.Helper()
	f, err := LoadFixture(writeFixture(t, fixtureYAML), 4, 12)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestCache_ReadThrough(t *testing.T) {
	inner := &countingSource{next: fixtureSource(t)}
	kv := newMemKV()
	c := newCache(inner, kv, time.Hour, "hw")
	c.now = func() time.Time { return time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC) }

	first, err := c.Counts(context.Background(), "CBCH.H1", "wav", jul1, jul3)
	if err != nil {
		t.Fatal(err)
	}
	if len(kv.data) != 3 {
		t.Fatalf("cached keys: got %d, want 3", len(kv.data))
	}
	if ttl := kv.ttls[c.Key("CBCH.H1", "wav", jul1)]; ttl != time.Hour {
		t.Errorf("ttl: got %v", ttl)
	}

	second, err := c.Counts(context.Background(), "CBCH.H1", "wav", jul1, jul3)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("source calls: got %d, want 1", inner.calls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("cached record %d: got %+v, want %+v", i, second[i], first[i])
		}
	}
}

// rangeSource records the ranges it is asked for.
type rangeSource struct {
	next   Source
	ranges [][2]types.Date
}

func (r *rangeSource) Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error) {
	r.ranges = append(r.ranges, [2]types.Date{from, to})
	return r.next.Counts(ctx, location, channel, from, to)
}

func TestCache_WindowEndingTodayFetchesOnlyToday(t *testing.T) {
	inner := &rangeSource{next: fixtureSource(t)}
	kv := newMemKV()
	c := newCache(inner, kv, time.Hour, "hw")
	c.now = func() time.Time { return time.Date(2025, 7, 3, 8, 0, 0, 0, time.UTC) }

	first, err := c.Counts(context.Background(), "CBCH.H1", "flac", jul1, jul3)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.data[c.Key("CBCH.H1", "flac", jul3)]; ok {
		t.Error("today's partial count was cached")
	}
	if len(kv.data) != 2 {
		t.Errorf("cached keys: got %d, want 2", len(kv.data))
	}

	for i := 0; i < 2; i++ {
		again, err := c.Counts(context.Background(), "CBCH.H1", "flac", jul1, jul3)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("records: got %d, want %d", len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Errorf("record %d: got %+v, want %+v (same as uncached read)", j, again[j], first[j])
			}
		}
	}

	want := [][2]types.Date{{jul1, jul3}, {jul3, jul3}, {jul3, jul3}}
	if len(inner.ranges) != len(want) {
		t.Fatalf("source ranges: got %v, want %v", inner.ranges, want)
	}
	for i := range want {
		if inner.ranges[i] != want[i] {
			t.Errorf("source range %d: got %v, want %v", i, inner.ranges[i], want[i])
		}
	}
}

func TestCache_FetchesOnlyGaps(t *testing.T) {
	inner := &rangeSource{next: fixtureSource(t)}
	kv := newMemKV()
	c := newCache(inner, kv, time.Hour, "hw")
	c.now = func() time.Time { return time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC) }

	jul2 := jul1.AddDays(1)
	if _, err := c.Counts(context.Background(), "CBCH.H1", "wav", jul2, jul2); err != nil {
		t.Fatal(err)
	}
	got, err := c.Counts(context.Background(), "CBCH.H1", "wav", jul1, jul3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1].Observed != 3 || got[0].Expected != 10 {
		t.Errorf("merged records: %+v", got)
	}
	want := [][2]types.Date{{jul2, jul2}, {jul1, jul1}, {jul3, jul3}}
	if len(inner.ranges) != len(want) {
		t.Fatalf("source ranges: got %v, want %v", inner.ranges, want)
	}
	for i := range want {
		if inner.ranges[i] != want[i] {
			t.Errorf("source range %d: got %v, want %v", i, inner.ranges[i], want[i])
		}
	}
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	inner := &countingSource{next: fixtureSource(t)}
	kv := newMemKV()
	kv.err = errors.New("connection refused")
	c := newCache(inner, kv, time.Hour, "hw")

	got, err := c.Counts(context.Background(), "CBCH.H1", "wav", jul1, jul3)
	if err != nil {
		t.Fatalf("Counts should succeed without Redis: %v", err)
	}
	if len(got) != 3 || inner.calls != 1 {
		t.Errorf("got %d records after %d calls", len(got), inner.calls)
	}
}

func TestCache_Key(t *testing.T) {
	c := newCache(nil, newMemKV(), time.Hour, "hw")
	if got := c.Key("CBCH.H1", "wav", jul1); got != "hw:counts:CBCH.H1:wav:2025-07-01" {
		t.Errorf("Key: got %q", got)
	}
}
