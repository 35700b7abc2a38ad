package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// kv is the subset of the Redis client the cache uses.
type kv interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// cachedCount is the value stored per key.
type cachedCount struct {
	Observed  int  `json:"o"`
	Expected  int  `json:"e"`
	Estimated bool `json:"est,omitempty"`
}

// Cache is a read-through Redis cache in front of another Source. Cached
// days are served from Redis and only the uncached stretches of a range are
// fetched from the wrapped source. The current UTC day is never stored
// because files are still arriving, so a window ending today costs one fetch
// of today. Estimated expected counts are recomputed over the merged window,
// which keeps results identical to an uncached read. Redis failures degrade
// to uncached reads.
type Cache struct {
	next     Source
	rdb      kv
	ttl      time.Duration
	prefix   string
	minimum  int
	fallback int
	now      func() time.Time
}

// NewRedisCache wraps next with a cache on the Redis server in cfg.Cache.
func NewRedisCache(next Source, cfg config.CatalogConfig) (*Cache, func() error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password(),
		DB:       cfg.Cache.DB,
	})
	c := newCache(next, rdb, cfg.Cache.TTL, cfg.Cache.Prefix)
	c.minimum, c.fallback = cfg.MinExpected, cfg.DefaultExpected
	return c, rdb.Close
}

func newCache(next Source, rdb kv, ttl time.Duration, prefix string) *Cache {
	return &Cache{
		next:     next,
		rdb:      rdb,
		ttl:      ttl,
		prefix:   prefix,
		minimum:  config.DefaultMinExpected,
		fallback: config.DefaultExpectedFiles,
		now:      time.Now,
	}
}

// Key returns the Redis key for one channel-day.
func (c *Cache) Key(location, channel string, d types.Date) string {
	return fmt.Sprintf("%s:counts:%s:%s:%s", c.prefix, location, channel, d)
}

func (c *Cache) Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error) {
	days := types.DateRange(from, to)
	if len(days) == 0 {
		return c.next.Counts(ctx, location, channel, from, to)
	}

	byDate := c.lookup(ctx, location, channel, days)
	hits := len(byDate)
	if hits == len(days) {
		return c.assemble(days, byDate, true), nil
	}

	for _, sp := range gaps(days, byDate) {
		rows, err := c.next.Counts(ctx, location, channel, sp.from, sp.to)
		if err != nil {
			return nil, err
		}
		c.store(ctx, rows)
		for _, r := range rows {
			if _, ok := byDate[r.Date]; !ok {
				byDate[r.Date] = r
			}
		}
	}
	return c.assemble(days, byDate, hits > 0), nil
}

// lookup returns the cached records for days. A Redis failure is logged and
// treated as an empty cache.
func (c *Cache) lookup(ctx context.Context, location, channel string, days []types.Date) map[types.Date]types.ChannelDay {
	out := make(map[types.Date]types.ChannelDay, len(days))
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = c.Key(location, channel, d)
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Warn("catalog: cache read failed", "location", location, "channel", channel, "err", err)
		return out
	}

	for i, v := range vals {
		s, ok := v.(string) // misses come back as nil
		if !ok || i >= len(days) {
			continue
		}
		var cc cachedCount
		if err := json.Unmarshal([]byte(s), &cc); err != nil {
			continue
		}
		out[days[i]] = types.ChannelDay{
			LocationCode: location,
			Channel:      channel,
			Date:         days[i],
			Observed:     cc.Observed,
			Expected:     cc.Expected,
			Estimated:    cc.Estimated,
		}
	}
	return out
}

// assemble orders the records of days. When merged is set the records came
// from more than one read, so estimated expected counts are recomputed over
// the whole range.
func (c *Cache) assemble(days []types.Date, byDate map[types.Date]types.ChannelDay, merged bool) []types.ChannelDay {
	out := make([]types.ChannelDay, 0, len(days))
	counts := make([]int, 0, len(days))
	for _, d := range days {
		r, ok := byDate[d]
		if !ok {
			continue
		}
		out = append(out, r)
		counts = append(counts, r.Observed)
	}
	if !merged {
		return out
	}
	estimate := EstimateExpected(counts, c.minimum, c.fallback)
	for i := range out {
		if out[i].Estimated {
			out[i].Expected = estimate
		}
	}
	return out
}

type span struct{ from, to types.Date }

// gaps returns the maximal runs of days missing from have.
func gaps(days []types.Date, have map[types.Date]types.ChannelDay) []span {
	var (
		out  []span
		open bool
	)
	for _, d := range days {
		if _, ok := have[d]; ok {
			open = false
			continue
		}
		if open {
			out[len(out)-1].to = d
			continue
		}
		out = append(out, span{from: d, to: d})
		open = true
	}
	return out
}

func (c *Cache) store(ctx context.Context, days []types.ChannelDay) {
	today := types.DateOf(c.now())
	for _, d := range days {
		if !d.Date.Before(today) {
			continue
		}
		data, err := json.Marshal(cachedCount{Observed: d.Observed, Expected: d.Expected, Estimated: d.Estimated})
		if err != nil {
			continue
		}
		if err := c.rdb.Set(ctx, c.Key(d.LocationCode, d.Channel, d.Date), data, c.ttl).Err(); err != nil {
			slog.Warn("catalog: cache write failed", "location", d.LocationCode, "channel", d.Channel, "err", err)
			return
		}
	}
}
