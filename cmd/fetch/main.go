// Package main runs one fetch and merge against the live sources and prints
// the projected listing as JSON. Nothing is cached or published.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-token-feed/internal/app"
	"solana-token-feed/internal/config"
	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/pipeline"
	"solana-token-feed/internal/storage/memory"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file")
	period := flag.String("period", "", "Change window: 1h, 24h, 7d (empty for all)")
	sortKey := flag.String("sort", "", "Sort key: volume, priceChange, marketCap")
	limit := flag.Int("limit", 0, "Max tokens (0 for DEFAULT_LIMIT)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so stdout stays valid JSON.
	logger := observability.NewLoggerTo(os.Stderr, cfg.Log.Level, "console")

	q := domain.QuerySpec{Limit: *limit}
	if q.Period, err = domain.ParsePeriod(*period); err != nil {
		logger.Fatal().Err(err).Msg("bad --period")
	}
	if q.SortKey, err = domain.ParseSortKey(*sortKey); err != nil {
		logger.Fatal().Err(err).Msg("bad --sort")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	engine, err := app.Engine(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build merge engine")
	}

	p, err := pipeline.New(pipeline.Options{
		Adapters:     app.Adapters(cfg, logger),
		Engine:       engine,
		Store:        memory.NewSnapshotStore(),
		Detector:     app.Detector(cfg),
		DefaultLimit: cfg.Pagination.DefaultLimit,
		MaxLimit:     cfg.Pagination.MaxLimit,
		FetchTimeout: *timeout,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}

	proj, err := p.Query(ctx, q)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(proj); err != nil {
		logger.Fatal().Err(err).Msg("encode output")
	}
}
