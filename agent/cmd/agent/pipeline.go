package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hydrowatch/hydrowatch/agent/internal/catalog"
	"github.com/hydrowatch/hydrowatch/agent/internal/compute"
	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/agent/internal/divert"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// pipeline is the analysis stack built from one config generation. It is
// replaced wholesale on hot reload; a replaced pipeline is closed once the
// runs still using it have finished.
type pipeline struct {
	cfg      config.AgentConfig
	engine   *compute.Engine
	closeSrc func() error

	mu      sync.Mutex
	running int
	retired bool
}

func buildPipeline(a config.AgentConfig) (*pipeline, error) {
	locs, err := compute.NewLocationTable(a.Locations)
	if err != nil {
		return nil, err
	}
	src, closeSrc, err := catalog.New(a.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	eng, err := compute.NewEngine(a.Analysis.Params(), locs, src)
	if err != nil {
		_ = closeSrc()
		return nil, err
	}
	return &pipeline{cfg: a, engine: eng, closeSrc: closeSrc}, nil
}

// analyse runs one report for asOf. Configured divert events are always
// applied; notices are read from the notice directory when one is set. An
// unreadable notice directory is logged and the run continues without it.
func (p *pipeline) analyse(ctx context.Context, asOf types.Date) (*types.Report, error) {
	in := compute.RunInput{AsOf: asOf, Events: p.cfg.Diverts.StaticEvents()}

	if dir := p.cfg.Diverts.NoticesDir; dir != "" {
		var since types.Date
		if n := p.cfg.Diverts.LookbackDays; n > 0 {
			since = asOf.AddDays(-n)
		}
		notices, err := divert.LoadNoticeDir(dir, since.Time())
		if err != nil {
			slog.Warn("divert notices unavailable", "dir", dir, "err", err)
		} else {
			tl := divert.Reconstruct(notices, p.engine.Locations(), asOf)
			if len(tl.Unmapped) > 0 {
				slog.Warn("divert notices name unknown sites", "sites", tl.Unmapped)
			}
			in.Timeline = &tl
		}
	}

	return p.engine.Run(ctx, in)
}

// acquire marks a run as using p. It returns false once p is retired.
func (p *pipeline) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retired {
		return false
	}
	p.running++
	return true
}

// release ends a run started with acquire.
func (p *pipeline) release() {
	p.mu.Lock()
	p.running--
	done := p.retired && p.running == 0
	p.mu.Unlock()
	if done {
		p.close()
	}
}

// retire stops new runs on p and closes it when the last one finishes.
func (p *pipeline) retire() {
	p.mu.Lock()
	if p.retired {
		p.mu.Unlock()
		return
	}
	p.retired = true
	done := p.running == 0
	p.mu.Unlock()
	if done {
		p.close()
	}
}

func (p *pipeline) close() {
	if err := p.closeSrc(); err != nil {
		slog.Warn("closing catalog source", "err", err)
	}
}
