// Package scheduler triggers pipeline cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/pipeline"
)

// Runner runs one cycle.
type Runner interface {
	RunCycle(ctx context.Context, trigger string) (*domain.Snapshot, error)
}

// Scheduler runs a cycle at Start and then every interval. A tick that
// fires while a cycle is still running is skipped.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a scheduler. Intervals under one second are raised to one second.
func New(runner Runner, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start runs the startup cycle in the background and then arms the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.run(runCtx, pipeline.TriggerSchedule)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule cycle: %w", err)
	}

	s.cron = c
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, pipeline.TriggerStartup)
		if runCtx.Err() == nil {
			c.Start()
		}
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// Stop cancels in-flight work and waits for the running cycle to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, c := s.cancel, s.cron
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-c.Stop().Done()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if _, err := s.runner.RunCycle(ctx, trigger); err != nil {
		if errors.Is(err, pipeline.ErrNoData) || errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("cycle failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
