// Package scheduler runs the recurring sweeps that delete expired chat sessions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job names
const (
	JobDaily  = "daily"
	JobHourly = "hourly"
)

const defaultRunTimeout = 5 * time.Minute

// Cleaner deletes expired sessions. *service.ChatService implements it.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Locker guards a sweep so one replica runs it per tick. *redis.Locker implements it.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// CleanupScheduler runs the daily and hourly sweeps. A failed sweep is logged
// and the schedule carries on.
type CleanupScheduler struct {
	cleaner Cleaner
	cfg     config.CleanupConfig
	locker  Locker
	metrics *metrics.Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewCleanupScheduler creates a scheduler. locker and m may be nil.
func NewCleanupScheduler(cleaner Cleaner, cfg config.CleanupConfig, locker Locker, m *metrics.Metrics) *CleanupScheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.RunTimeout
	}
	return &CleanupScheduler{
		cleaner: cleaner,
		cfg:     cfg,
		locker:  locker,
		metrics: m,
	}
}

// Start registers both jobs and starts the cron loop. Calling Start on a
// running scheduler does nothing. Jobs stop receiving work once ctx is done.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	jobs := []struct {
		name     string
		schedule string
	}{
		{JobDaily, s.cfg.DailySchedule},
		{JobHourly, s.cfg.HourlySchedule},
	}
	for _, j := range jobs {
		name := j.name
		if _, err := c.AddFunc(j.schedule, func() { s.run(runCtx, name) }); err != nil {
			cancel()
			return fmt.Errorf("invalid %s cleanup schedule %q: %w", name, j.schedule, err)
		}
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true

	log.Info().
		Str("daily", s.cfg.DailySchedule).
		Str("hourly", s.cfg.HourlySchedule).
		Dur("run_timeout", s.cfg.RunTimeout).
		Msg("Cleanup scheduler started")

	return nil
}

// Stop halts scheduling and waits for in-flight sweeps to finish
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()

	<-c.Stop().Done()
	cancel()

	log.Info().Msg("Cleanup scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done
func (s *CleanupScheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// IsRunning reports whether the cron loop is active
func (s *CleanupScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce performs a single sweep for job outside the schedule
func (s *CleanupScheduler) RunOnce(ctx context.Context, job string) {
	s.run(ctx, job)
}

func (s *CleanupScheduler) run(ctx context.Context, job string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	logger := log.With().Str("job", job).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Cleanup sweep panicked")
			s.metrics.CleanupRun(job, 0, fmt.Errorf("panic: %v", r))
		}
	}()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "cleanup:"+job, s.cfg.LockTTL)
		if err != nil {
			// sweeps are idempotent, so run without the lock
			logger.Warn().Err(err).Msg("Cleanup lock unavailable, sweeping anyway")
		} else if !ok {
			logger.Debug().Msg("Cleanup sweep held by another instance, skipping")
			return
		} else {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Msg("Failed to release cleanup lock")
				}
			}()
		}
	}

	start := time.Now()
	deleted, err := s.cleaner.CleanupExpired(ctx)
	s.metrics.CleanupRun(job, deleted, err)
	if err != nil {
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("Cleanup sweep failed")
		return
	}

	logger.Info().
		Int64("deleted", deleted).
		Dur("took", time.Since(start)).
		Msg("Cleanup sweep finished")
}
