package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPollInterval is the scheduler period when none is configured.
const DefaultPollInterval = 30 * time.Second

// syncer is the part of *Engine the scheduler drives.
type syncer interface {
	SyncAll(ctx context.Context) (*Report, error)
	SyncChanges(ctx context.Context) (*Report, error)
	FlushPending(ctx context.Context) (*FlushReport, error)
	FetchSettings(ctx context.Context) (map[string]any, error)
}

// Scheduler runs one full sync and a settings fetch at startup, then a
// delta sync followed by a flush of pending writes on every tick.
type Scheduler struct {
	engine   syncer
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler for engine. A non-positive interval
// means DefaultPollInterval.
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	return newScheduler(engine, interval, logger)
}

func newScheduler(engine syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{engine: engine, interval: interval, logger: logger}
}

// Run blocks until ctx is canceled. Startup failures are logged and the
// loop starts anyway, serving whatever data is already loaded.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Duration("poll_interval", s.interval))

	s.startup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) startup(ctx context.Context) {
	if err := guarded("full sync", func() error {
		_, err := s.engine.SyncAll(ctx)
		return err
	}); err != nil {
		s.logger.Warn("startup full sync failed", slog.String("error", err.Error()))
	}

	if err := guarded("settings fetch", func() error {
		_, err := s.engine.FetchSettings(ctx)
		return err
	}); err != nil {
		s.logger.Warn("startup settings fetch failed", slog.String("error", err.Error()))
	}
}

// tick runs one delta sync and one flush. The flush runs even when the
// delta sync failed or found nothing.
func (s *Scheduler) tick(ctx context.Context) {
	err := guarded("delta sync", func() error {
		_, err := s.engine.SyncChanges(ctx)
		return err
	})

	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Debug("delta sync skipped, another sync is running")
	case err != nil && ctx.Err() == nil:
		s.logger.Warn("delta sync failed", slog.String("error", err.Error()))
	}

	var report *FlushReport

	err = guarded("flush", func() error {
		var ferr error
		report, ferr = s.engine.FlushPending(ctx)

		return ferr
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("flush failed", slog.String("error", err.Error()))
	}

	if report != nil && (report.Sent > 0 || report.Remaining > 0) {
		s.logger.Info("pending writes flushed",
			slog.Int("sent", report.Sent),
			slog.Int("rejected", report.Rejected),
			slog.Int("held", report.Held),
			slog.Int("remaining", report.Remaining),
		)
	}
}

// guarded runs fn, turning a panic into an error so one bad tick never
// takes the loop down.
func guarded(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync: panic in %s: %v", name, r)
		}
	}()

	return fn()
}
