// Package main runs the token feed service:
// - Scheduler: fetch -> merge -> cache -> detect -> publish every REFRESH_INTERVAL
// - HTTP: /api/tokens, /health, /ws, /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-token-feed/internal/api"
	"solana-token-feed/internal/app"
	"solana-token-feed/internal/config"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/pipeline"
	"solana-token-feed/internal/publish"
	"solana-token-feed/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before reading the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format).
		With().Str("service", "solana-token-feed").Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closer, err := app.Store(cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := store.Ping(ctx); err != nil {
		// The cache degrades to misses; the service still runs.
		logger.Warn().Err(err).Msg("cache not reachable at startup")
	}

	engine, err := app.Engine(cfg, logger)
	if err != nil {
		return err
	}

	hub := publish.NewHub(publish.WithLogger(logger))
	defer hub.Close()

	p, err := pipeline.New(pipeline.Options{
		Adapters:     app.Adapters(cfg, logger),
		Engine:       engine,
		Store:        store,
		Detector:     app.Detector(cfg),
		Publisher:    hub,
		CacheTTL:     cfg.CacheTTL(),
		DefaultLimit: cfg.Pagination.DefaultLimit,
		MaxLimit:     cfg.Pagination.MaxLimit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ws := publish.DefaultWSConfig()
	ws.AllowedOrigin = cfg.AllowedOrigin
	srv := &http.Server{
		Addr: cfg.ListenAddr(),
		Handler: api.NewServer(api.Options{
			Pipeline:      p,
			Hub:           hub,
			AllowedOrigin: cfg.AllowedOrigin,
			RatePerSecond: cfg.RateLimit.RequestsPerSecond,
			RateBurst:     cfg.RateLimit.Burst,
			WS:            ws,
			Logger:        logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched := scheduler.New(p, cfg.RefreshInterval(), logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received signal, initiating graceful shutdown")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Second signal forces exit.
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("received second signal, forcing exit")
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("scheduler did not stop in time")
	}
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	return runErr
}
