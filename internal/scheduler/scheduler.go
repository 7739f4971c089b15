// Package scheduler runs periodic resync jobs (notification polling, feed
// refresh) next to the live channel.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]cron.EntryID
	base context.Context
}

// New returns a scheduler in the given timezone. An empty timezone means
// local time. Each run gets timeout (default one minute).
func New(timezone string, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
		}
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{
		cron:    c,
		log:     log.With("component", "scheduler"),
		timeout: timeout,
		jobs:    make(map[string]cron.EntryID),
		base:    context.Background(),
	}, nil
}

// AddJob registers job under a cron schedule such as "*/5 * * * *" or
// "@every 30s". A job still running when its next tick fires is skipped.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() { _ = s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = id
	s.mu.Unlock()
	s.log.Info("added job", "job", name, "schedule", schedule)
	return nil
}

// Every is AddJob with a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	return s.AddJob(name, "@every "+interval.String(), job)
}

// Start runs jobs in the background until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	s.log.Debug("starting")
	s.cron.Start()
	context.AfterFunc(ctx, func() { s.cron.Stop() })
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Debug("stopping")
	return s.cron.Stop()
}

// RunNow executes job immediately on the caller's goroutine, with the same
// timeout and logging as a scheduled run.
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) error {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Warn("job failed", "job", name, "err", err)
		return err
	}
	s.log.Debug("job completed", "job", name, "took", time.Since(start))
	return nil
}
