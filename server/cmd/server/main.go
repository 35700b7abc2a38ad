package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydrowatch/hydrowatch/pkg/types"
	"github.com/hydrowatch/hydrowatch/server/internal/api"
	"github.com/hydrowatch/hydrowatch/server/internal/auth"
	"github.com/hydrowatch/hydrowatch/server/internal/config"
	"github.com/hydrowatch/hydrowatch/server/internal/receiver"
	"github.com/hydrowatch/hydrowatch/server/internal/store"
	"github.com/hydrowatch/hydrowatch/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("hydrowatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"report_ttl", cfg.Server.Report.TTL,
		"stream_interval", cfg.Server.StreamInterval,
	)
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.Key() == "" {
		slog.Warn("auth mode apikey but key is empty; all report uploads will be rejected",
			"key_env", cfg.Server.Auth.KeyEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Report store with background TTL eviction.
	st := store.New(cfg.Server.Report.TTL)
	go st.Run(ctx)

	// WebSocket hub — broadcasts the snapshot every stream_interval and
	// after each accepted report.
	hub := ws.New(st, cfg.Server.StreamInterval)
	go hub.Run(ctx)

	requireKey := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	rec := receiver.New(st, func(r *types.Report) { hub.Notify(r.RunID) })

	// Combined HTTP server: report receiver + REST API + WebSocket hub on HTTPPort.
	// Only the receiver is authenticated; the read API is meant for dashboards.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/v1/reports", requireKey(rec))
	apiHandler := api.New(st)
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", apiHandler)
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("hydrowatch-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
