package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// maxPages bounds how many "next" links one listing follows.
const maxPages = 50

// fileNameDate matches the YYYYMMDD stamp in archive file names such as
// ICLISTENHF1234_20250701T000000.000Z.wav.
var fileNameDate = regexp.MustCompile(`(\d{8})`)

// oncListing is the JSON shape of an archive file listing. Files may be
// plain names or objects depending on returnOptions.
type oncListing struct {
	Files []json.RawMessage `json:"files"`
	Next  *struct {
		URL string `json:"url"`
	} `json:"next"`
}

type oncFile struct {
	Filename string `json:"filename"`
	DateFrom string `json:"dateFrom"`
}

type oncSource struct {
	cfg    config.CatalogConfig
	client *http.Client
}

// Counts lists the archive files for location with extension channel and
// buckets them per UTC day. The expected count is estimated from the
// window.
func (s *oncSource) Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("onc: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("locationCode", location)
	q.Set("extension", channel)
	q.Set("dateFrom", from.Time().Format("2006-01-02T15:04:05.000Z"))
	q.Set("dateTo", to.Time().Add(24*time.Hour-time.Millisecond).Format("2006-01-02T15:04:05.000Z"))
	q.Set("returnOptions", "all")
	u.RawQuery = q.Encode()

	observed := make(map[types.Date]int)
	next := u.String()
	for page := 0; next != "" && page < maxPages; page++ {
		listing, err := s.fetch(ctx, next)
		if err != nil {
			slog.Warn("catalog: onc listing failed", "location", location, "channel", channel, "err", err)
			return nil, fmt.Errorf("onc %s/%s: %w", location, channel, err)
		}
		for _, raw := range listing.Files {
			name, d, ok := fileDate(raw)
			if !ok {
				continue
			}
			if ext := strings.TrimPrefix(path.Ext(name), "."); ext != "" && !strings.EqualFold(ext, channel) {
				continue
			}
			if d.Before(from) || d.After(to) {
				continue
			}
			observed[d]++
		}
		next = ""
		if listing.Next != nil {
			next = listing.Next.URL
		}
	}

	return fill(location, channel, from, to, observed, nil, s.cfg.MinExpected, s.cfg.DefaultExpected), nil
}

func (s *oncSource) fetch(ctx context.Context, rawURL string) (*oncListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var l oncListing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &l, nil
}

// fileDate extracts the file name and UTC day of one listing entry. The
// entry's dateFrom wins over the date stamped in the name.
func fileDate(raw json.RawMessage) (string, types.Date, bool) {
	var f oncFile
	if err := json.Unmarshal(raw, &f.Filename); err != nil {
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", types.Date{}, false
		}
	}

	if f.DateFrom != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.DateFrom); err == nil {
			return f.Filename, types.DateOf(t), true
		}
	}
	m := fileNameDate.FindString(f.Filename)
	if m == "" {
		return f.Filename, types.Date{}, false
	}
	t, err := time.Parse("20060102", m)
	if err != nil {
		return f.Filename, types.Date{}, false
	}
	return f.Filename, types.DateOf(t), true
}
