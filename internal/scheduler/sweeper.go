package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultSweepInterval = 60 * time.Second
	defaultSweepTimeout  = 30 * time.Second
)

// SweepFunc performs one pass of stale session recovery.
type SweepFunc func(ctx context.Context) error

// Sweeper runs a SweepFunc on a fixed interval. Overlapping runs are
// skipped, never queued.
type Sweeper struct {
	sweep    SweepFunc
	cron     *cron.Cron
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	started bool
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTimeout bounds a single pass.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSweeper(sweep SweepFunc, opts ...Option) *Sweeper {
	s := &Sweeper{
		sweep:    sweep,
		interval: defaultSweepInterval,
		timeout:  defaultSweepTimeout,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(
			cron.WithLogger(cron.DiscardLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}
	return s
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if s.sweep == nil {
		return errors.New("scheduler: sweep func not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("call sweep failed", "err", err)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true
	s.log.Info("call sweep scheduled", "interval", s.interval.String())
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish or ctx
// to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single pass synchronously.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if s.sweep == nil {
		return errors.New("scheduler: sweep func not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sweep(ctx)
}
