package catalog

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Source returns per-day file counts for one location and channel over an
// inclusive date range. Every date in the range gets a record; days without
// files have Observed == 0.
type Source interface {
	Counts(ctx context.Context, location, channel string, from, to types.Date) ([]types.ChannelDay, error)
}

// New returns the Source for the given catalog configuration, wrapped in a
// Redis cache when one is configured. The returned close function releases
// the cache connection and is never nil.
func New(cfg config.CatalogConfig) (Source, func() error, error) {
	noop := func() error { return nil }

	var src Source
	switch cfg.Type {
	case config.CatalogONC, config.CatalogPrometheus:
		client, err := buildHTTPClient(cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("catalog %q: build http client: %w", cfg.Type, err)
		}
		if cfg.Type == config.CatalogONC {
			src = &oncSource{cfg: cfg, client: client}
		} else {
			src = &promSource{cfg: cfg, client: client}
		}
	case config.CatalogFixture:
		f, err := LoadFixture(cfg.FixturePath, cfg.MinExpected, cfg.DefaultExpected)
		if err != nil {
			return nil, noop, err
		}
		src = f
	default:
		return nil, noop, fmt.Errorf("catalog: unsupported type %q", cfg.Type)
	}

	if cfg.Cache.Addr == "" {
		return src, noop, nil
	}
	c, closeFn := NewRedisCache(src, cfg)
	return c, closeFn, nil
}

// authRoundTripper injects authentication into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		header := t.auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	case "token":
		// ONC web services take the token as a query parameter.
		req = req.Clone(req.Context())
		param := t.auth.Param
		if param == "" {
			param = "token"
		}
		q := req.URL.Query()
		q.Set(param, t.auth.Token())
		req.URL.RawQuery = q.Encode()
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the catalog's auth and TLS
// settings.
func buildHTTPClient(cfg config.CatalogConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: cfg.Timeout,
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// EstimateExpected derives a channel's expected daily file count from the
// observed counts of a window: the median of the non-zero days, floored at
// minimum. A window with no files at all yields fallback.
func EstimateExpected(counts []int, minimum, fallback int) int {
	var nonZero []int
	for _, c := range counts {
		if c > 0 {
			nonZero = append(nonZero, c)
		}
	}
	if len(nonZero) == 0 {
		return fallback
	}
	sort.Ints(nonZero)
	median := nonZero[len(nonZero)/2]
	if median < minimum {
		return minimum
	}
	return median
}

// fill turns per-date counts into one record per date of the range. Dates
// absent from expected get the estimate from EstimateExpected.
func fill(location, channel string, from, to types.Date, observed map[types.Date]int, expected map[types.Date]int, minimum, fallback int) []types.ChannelDay {
	days := types.DateRange(from, to)
	counts := make([]int, 0, len(days))
	for _, d := range days {
		counts = append(counts, observed[d])
	}
	estimate := EstimateExpected(counts, minimum, fallback)

	out := make([]types.ChannelDay, 0, len(days))
	for i, d := range days {
		exp, ok := expected[d]
		if !ok {
			exp = estimate
		}
		out = append(out, types.ChannelDay{
			LocationCode: location,
			Channel:      channel,
			Date:         d,
			Observed:     counts[i],
			Expected:     exp,
			Estimated:    !ok,
		})
	}
	return out
}
