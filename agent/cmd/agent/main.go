package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/agent/internal/shipper"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one analysis, print the report as JSON and exit")
	asOfFlag := flag.String("as-of", "", "analysis date (YYYY-MM-DD); defaults to today (UTC)")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	// Logs go to stderr so -once output on stdout stays clean JSON.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("hydrowatch-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"locations", len(cfg.Agent.Locations),
		"catalog", cfg.Agent.Catalog.Type,
		"analysis_interval", cfg.Agent.AnalysisInterval,
	)

	asOf := func() types.Date { return types.DateOf(time.Now()) }
	if *asOfFlag != "" {
		d, err := types.ParseDate(*asOfFlag)
		if err != nil {
			slog.Error("invalid -as-of", "err", err)
			os.Exit(2)
		}
		asOf = func() types.Date { return d }
	}

	p, err := buildPipeline(cfg.Agent)
	if err != nil {
		slog.Error("failed to build analysis pipeline", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		report, err := p.analyse(ctx, asOf())
		p.close()
		if err != nil {
			slog.Error("analysis failed", "err", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			slog.Error("writing report", "err", err)
			os.Exit(1)
		}
		return
	}

	var current atomic.Pointer[pipeline]
	current.Store(p)

	// Watch config for hot-reload. The new pipeline takes effect on the next
	// run; server and Kafka settings are read once at startup.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			np, err := buildPipeline(updated.Agent)
			if err != nil {
				slog.Error("config reload rejected", "err", err)
				return
			}
			if old := current.Swap(np); old != nil {
				old.retire()
			}
			slog.Info("config hot-reloaded", "locations", len(updated.Agent.Locations))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var ship *shipper.Shipper
	if cfg.Agent.ServerEndpoint != "" {
		ship, err = shipper.New(cfg.Agent)
		if err != nil {
			slog.Error("failed to build shipper", "err", err)
			os.Exit(1)
		}
		go ship.Run(ctx)
	} else {
		slog.Warn("no server_endpoint configured; reports are logged only")
	}

	var sink *shipper.KafkaSink
	if k := cfg.Agent.Publish.Kafka; k.Enabled() {
		sink = shipper.NewKafkaSink(k)
		defer sink.Close()
		slog.Info("kafka summary sink enabled", "brokers", k.Brokers, "topic", k.Topic)
	}

	runOnce := func() {
		p := current.Load()
		for !p.acquire() {
			if ctx.Err() != nil {
				return
			}
			p = current.Load()
		}
		report, err := p.analyse(ctx, asOf())
		p.release()
		if err != nil {
			slog.Warn("analysis run failed", "err", err)
			return
		}
		if ship != nil {
			ship.Ship(report)
		}
		if sink != nil {
			if err := sink.Publish(ctx, report); err != nil {
				slog.Warn("kafka publish failed", "run_id", report.RunID, "err", err)
			}
		}
		slog.Debug("analysis shipped", "run_id", report.RunID, "locations", len(report.Locations))
	}

	// Analysis loop: run at startup, then every AnalysisInterval.
	go func() {
		runOnce()
		ticker := time.NewTicker(cfg.Agent.AnalysisInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
				ticker.Reset(current.Load().cfg.AnalysisInterval)
			}
		}
	}()

	<-ctx.Done()
	current.Load().retire()
	slog.Info("hydrowatch-agent shutting down")
}
