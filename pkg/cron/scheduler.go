// Package cron runs the mailbox poll on a fixed interval using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one poll cycle.
type Job interface {
	RunOnce(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) RunOnce(ctx context.Context) error { return f(ctx) }

// Scheduler runs a job every interval. A cycle never overlaps the previous
// one; a tick that arrives while a cycle is running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	ctx   context.Context
	entry cron.EntryID
}

// NewScheduler creates a scheduler for job.
func NewScheduler(job Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:     c,
		job:      job,
		interval: interval,
		timeout:  30 * time.Minute,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// WithTimeout bounds a single cycle.
func (s *Scheduler) WithTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Start registers the job, starts the ticker and triggers the first cycle
// immediately. Cycles stop receiving new work once ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", s.interval)
	}
	s.ctx = ctx

	id, err := s.cron.AddJob(fmt.Sprintf("@every %s", s.interval), cron.FuncJob(s.runCycle))
	if err != nil {
		return fmt.Errorf("failed to schedule poll: %w", err)
	}
	s.entry = id

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("interval", s.interval.String()),
		slog.Int("jobs", len(s.cron.Entries())),
	)

	s.RunNow()
	return nil
}

// Stop stops the ticker. The returned context is done once the running cycle
// has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a cycle outside the schedule. It is skipped when a cycle is
// already running.
func (s *Scheduler) RunNow() {
	entry := s.cron.Entry(s.entry)
	if !entry.Valid() {
		return
	}
	go entry.WrappedJob.Run()
}

func (s *Scheduler) runCycle() {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.job.RunOnce(ctx); err != nil {
		s.logger.Error("poll cycle failed",
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}
	s.logger.Debug("poll cycle completed", slog.Duration("elapsed", time.Since(start)))
}
