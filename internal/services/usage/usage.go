package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/scheduler"
	"github.com/sirupsen/logrus"
)

const (
	HourKey = "hourly_count"
	DayKey  = "daily_count"
	LifeKey = "lifetime_count"

	// ResetJobName is the scheduled job that clears the hourly counter
	ResetJobName = "reset_hourly_counter"
	// ResetSchedule fires every hour on the hour
	ResetSchedule = "0 * * * *"
)

// KV is the subset of storage the counters need
type KV interface {
	GetInt(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key, value string) error
	IncrBy(ctx context.Context, delta int64, keys ...string) ([]int64, error)
}

// JobScheduler registers recurring jobs
type JobScheduler interface {
	AddJob(name, spec string, job scheduler.Job) error
}

// Store keeps the hourly, daily and lifetime API call counters
type Store struct {
	kv     KV
	logger *logrus.Logger
	now    func() time.Time
}

// NewStore creates a counter store
func NewStore(kv KV, logger *logrus.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, for tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Install registers the hourly reset job
func (s *Store) Install(sched JobScheduler) error {
	if err := sched.AddJob(ResetJobName, ResetSchedule, s.ResetHourly); err != nil {
		return fmt.Errorf("was not able to schedule %s: %w", ResetJobName, err)
	}
	return nil
}

// Increment adds one to all three counters in a single atomic step
func (s *Store) Increment(ctx context.Context) error {
	if _, err := s.kv.IncrBy(ctx, 1, HourKey, DayKey, LifeKey); err != nil {
		return fmt.Errorf("had a problem updating counters: %w", err)
	}
	return nil
}

// Query reads the counters; missing keys read as 0
func (s *Store) Query(ctx context.Context) (models.UsageCounters, error) {
	var c models.UsageCounters
	var err error

	if c.Hourly, err = s.kv.GetInt(ctx, HourKey); err != nil {
		return c, err
	}
	if c.Daily, err = s.kv.GetInt(ctx, DayKey); err != nil {
		return c, err
	}
	if c.Lifetime, err = s.kv.GetInt(ctx, LifeKey); err != nil {
		return c, err
	}
	return c, nil
}

// IsAboveLimit reports whether both the hourly and the daily count exceed their maximum.
// Exceeding only one of them does not block.
func (s *Store) IsAboveLimit(ctx context.Context, maxDay, maxHour int) (bool, error) {
	hourly, err := s.kv.GetInt(ctx, HourKey)
	if err != nil {
		return false, err
	}
	daily, err := s.kv.GetInt(ctx, DayKey)
	if err != nil {
		return false, err
	}
	return hourly > maxHour && daily > maxDay, nil
}

// ResetHourly zeroes the hourly counter, and the daily one at UTC hour 0
func (s *Store) ResetHourly(ctx context.Context) error {
	if err := s.kv.Set(ctx, HourKey, "0"); err != nil {
		return err
	}
	s.logger.Info("Reset hourly usage counter")

	if s.now().UTC().Hour() == 0 {
		if err := s.kv.Set(ctx, DayKey, "0"); err != nil {
			return err
		}
		s.logger.Info("Reset daily usage counter")
	}
	return nil
}

// ResetAll zeroes the hourly and daily counters. Lifetime is kept.
func (s *Store) ResetAll(ctx context.Context) error {
	for _, key := range []string{HourKey, DayKey} {
		if err := s.kv.Set(ctx, key, strconv.Itoa(0)); err != nil {
			return err
		}
	}
	return nil
}
