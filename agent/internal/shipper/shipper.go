package shipper

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// ReportsPath is the server route reports are POSTed to.
	ReportsPath = "/api/v1/reports"
)

// Shipper buffers reports and POSTs them to hydrowatch-server as JSON.
// Ship() is non-blocking; when the buffer is full the oldest report is evicted.
// Run() must be called in a goroutine to drain the buffer and retry failures.
type Shipper struct {
	cfg    config.AgentConfig
	url    string
	client *http.Client
	buf    chan *types.Report

	// backoffBase overrides backoffInitial in tests.
	backoffBase time.Duration
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) (*Shipper, error) {
	client, err := buildClient(cfg.ServerAuth)
	if err != nil {
		return nil, fmt.Errorf("shipper: %w", err)
	}
	return &Shipper{
		cfg:         cfg,
		url:         strings.TrimRight(cfg.ServerEndpoint, "/") + ReportsPath,
		client:      client,
		buf:         make(chan *types.Report, cfg.BufferSize),
		backoffBase: backoffInitial,
	}, nil
}

// Ship enqueues a report. If the buffer is full the oldest entry is evicted
// to make room.
func (s *Shipper) Ship(r *types.Report) {
	select {
	case s.buf <- r:
	default:
		// Buffer full: drop the oldest report, keep the newest.
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest report",
				"run_id", old.RunID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- r
	}
}

// Run drains the buffer, posting reports to the server in order. A report
// that fails with a transient error (transport failure, 5xx) is retried with
// truncated exponential backoff; a permanent error (4xx) discards it.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.backoffBase)

	for {
		var r *types.Report
		select {
		case <-ctx.Done():
			return
		case r = <-s.buf:
		}

		for {
			err := s.send(ctx, r)
			if err == nil {
				slog.Debug("shipper: report delivered", "run_id", r.RunID, "endpoint", s.url)
				bo.reset()
				break
			}
			if ctx.Err() != nil {
				return
			}
			var perm *permanentError
			if errors.As(err, &perm) {
				slog.Error("shipper: permanent send error, discarding report",
					"run_id", r.RunID, "err", err)
				break
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.url, "run_id", r.RunID, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// permanentError marks a send failure that retrying cannot fix.
type permanentError struct {
	status int
	body   string
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("server rejected report: status %d: %s", e.status, e.body)
}

func (s *Shipper) send(ctx context.Context, r *types.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return &permanentError{body: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &permanentError{body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	switch a := s.cfg.ServerAuth; a.Mode {
	case "apikey":
		header := a.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, a.Key())
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.Token())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// buildClient returns an HTTP client carrying the mTLS client certificate
// when the server auth mode asks for one.
func buildClient(auth config.AuthConfig) (*http.Client, error) {
	if auth.Mode != "mtls" {
		return &http.Client{}, nil
	}
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}, nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
