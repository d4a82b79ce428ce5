package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a scheduled task
type Job func(ctx context.Context) error

// Scheduler runs named cron jobs in UTC
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	timeout time.Duration
	logger  *logrus.Logger
}

// New creates a scheduler. Jobs get timeout as their context deadline; zero means none.
func New(timeout time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		jobs:    make(map[string]cron.EntryID),
		timeout: timeout,
		logger:  logger,
	}
}

// AddJob registers job under name. Registering an existing name replaces it.
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() {
		if err := s.run(name, job); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"schedule": spec,
	}).Info("Scheduled job")
	return nil
}

// RunNow executes a registered-style job immediately
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := s.jobContext()
	defer cancel()

	start := time.Now()
	err := job(ctx)
	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"duration": time.Since(start),
	}).Debug("Job finished")
	return err
}

// Has reports whether a job with this name is registered
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Next returns the next run time of a job
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context done when running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
