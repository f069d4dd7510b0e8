// Package scheduler runs the harvest on a cron schedule inside `serve`.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"igharvest/pkg/logger"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	timezone *time.Location
	logger   logger.Logger

	mu     sync.Mutex
	jobs   map[string]cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler with the given timezone. Overlapping runs of
// the same job are skipped.
func New(timezone string, log logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "scheduler")

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		timezone: loc,
		logger:   log,
		jobs:     make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// AddJob adds a job with a cron schedule, e.g. "0 6 * * *" for 06:00 daily
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, job); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.InfoWithFields("Added job", map[string]interface{}{
		"job":      name,
		"schedule": schedule,
		"timezone": s.timezone.String(),
	})
	return nil
}

func (s *Scheduler) run(name string, job Job) error {
	log := s.logger.WithField("job", name)
	log.Info("Starting job")
	start := time.Now()

	if err := job(s.ctx); err != nil {
		return err
	}
	log.WithField("duration", time.Since(start)).Info("Job completed")
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.WithField("job", name).Info("Removed job")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	logger.LogComponentStart(s.logger, "scheduler", map[string]interface{}{"jobs": len(s.jobs)})
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to
// expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		logger.LogComponentStop(s.logger, "scheduler", "stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// RunNow immediately executes a job outside the schedule
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
	}
	return infos
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.DebugWithFields(msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).ErrorWithFields(msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
