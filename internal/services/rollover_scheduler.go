package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bills/internal/metrics"
)

// RolloverSchedulerConfig holds configuration for the rollover scheduler
type RolloverSchedulerConfig struct {
	// Interval is how often the current month is checked (default: 1h)
	Interval time.Duration

	// Now returns the instant whose month is processed (default: time.Now)
	Now func() time.Time
}

// DefaultRolloverSchedulerConfig returns sensible defaults
func DefaultRolloverSchedulerConfig() RolloverSchedulerConfig {
	return RolloverSchedulerConfig{
		Interval: time.Hour,
		Now:      time.Now,
	}
}

// RolloverScheduler runs the RolloverProcessor on start and then on every tick.
type RolloverScheduler struct {
	processor *RolloverProcessor
	config    RolloverSchedulerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    int
}

func NewRolloverScheduler(processor *RolloverProcessor, config RolloverSchedulerConfig) *RolloverScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultRolloverSchedulerConfig().Interval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RolloverScheduler{processor: processor, config: config}
}

// Start begins the processing loop. Returns an error if already running.
func (s *RolloverScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("rollover scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Rollover scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or ctx to expire.
func (s *RolloverScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		slog.InfoContext(ctx, "Rollover scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Rollover scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Done is closed once the loop has exited.
func (s *RolloverScheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

func (s *RolloverScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many rollovers were attempted.
func (s *RolloverScheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *RolloverScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Process immediately on startup
	s.runOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RolloverScheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	if _, err := s.processor.ProcessMonth(ctx, s.config.Now()); err != nil {
		metrics.RolloverRuns.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "Month rollover failed", "error", err)
		return
	}
	metrics.RolloverRuns.WithLabelValues("ok").Inc()
}
