// Package scheduler runs the recurring maintenance jobs: nightly usage
// counter resets, change-log pruning, and store compaction.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/store"
)

// DefaultChangeRetention is how long change-log entries are kept before
// the nightly prune removes them.
const DefaultChangeRetention = 90 * 24 * time.Hour

// Job is one recurring maintenance task.
type Job struct {
	Name     string
	CronExpr string
	Run      func(ctx context.Context) error

	schedule cron.Schedule
	nextRun  time.Time
}

// Scheduler ticks every minute and runs whichever jobs are due.
type Scheduler struct {
	store    store.Store
	logger   *slog.Logger
	parser   cron.Parser
	interval time.Duration

	mu     sync.Mutex
	jobs   []*Job
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a scheduler pre-loaded with the standard maintenance
// jobs for the given store.
func NewScheduler(s store.Store, retention time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if retention <= 0 {
		retention = DefaultChangeRetention
	}

	sched := &Scheduler{
		store:    s,
		logger:   logger,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval: 60 * time.Second,
		inflight: make(map[string]struct{}),
	}

	jobs := []*Job{
		{
			Name:     "usage_reset",
			CronExpr: "0 0 * * *",
			Run: func(ctx context.Context) error {
				return s.ResetUsage(ctx, license.DailyActions...)
			},
		},
		{
			Name:     "changelog_prune",
			CronExpr: "30 2 * * *",
			Run: func(ctx context.Context) error {
				pruned, err := s.PruneChanges(ctx, time.Now().UTC().Add(-retention))
				if err != nil {
					return err
				}
				if pruned > 0 {
					logger.Info("pruned change log", "entries", pruned)
				}
				return nil
			},
		},
		{
			Name:     "vacuum",
			CronExpr: "0 3 * * 0",
			Run:      s.Vacuum,
		},
	}

	for _, j := range jobs {
		if err := sched.AddJob(j); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// AddJob registers an extra job. The first run is the next time the cron
// expression fires after now.
func (s *Scheduler) AddJob(j *Job) error {
	schedule, err := s.parser.Parse(j.CronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q for job %q: %w", j.CronExpr, j.Name, err)
	}
	j.schedule = schedule
	j.nextRun = schedule.Next(time.Now().UTC())

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()
	return nil
}

// Start launches the background loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.loop(schedCtx, done)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now().UTC())
		}
	}
}

// tick runs every due job and advances its next-run time.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			j.nextRun = j.schedule.Next(now)
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if !s.tryAcquire(j.Name) {
			continue // previous run still going
		}
		s.logger.Info("running maintenance job", "job", j.Name)
		if err := j.Run(ctx); err != nil {
			s.logger.Error("maintenance job failed", "job", j.Name, "error", err)
		}
		s.release(j.Name)
	}
}

// tryAcquire returns true and marks the job in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// NextRun returns when the named job will fire next. Zero time if unknown.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Name == name {
			return j.nextRun
		}
	}
	return time.Time{}
}

// Stop gracefully shuts down the scheduler. The mutex is released before
// waiting for the loop to drain: a tick in progress needs it to scan the
// job list, so holding it here would deadlock the shutdown.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	s.logger.Info("scheduler stopped")
	return nil
}
