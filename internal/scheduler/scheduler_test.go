package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hello-drektopia/redditbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJobReplacesExisting(t *testing.T) {
	s := New(time.Second, logger.NewNop())

	job := func(ctx context.Context) error { return nil }
	require.NoError(t, s.AddJob("reset_hourly_counter", "0 * * * *", job))
	require.NoError(t, s.AddJob("reset_hourly_counter", "0 * * * *", job))

	assert.True(t, s.Has("reset_hourly_counter"))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(time.Second, logger.NewNop())
	err := s.AddJob("bad", "not a cron", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.False(t, s.Has("bad"))
}

func TestRunNowPassesDeadline(t *testing.T) {
	s := New(time.Second, logger.NewNop())
	boom := errors.New("boom")

	err := s.RunNow("x", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunNowWithoutTimeout(t *testing.T) {
	s := New(0, logger.NewNop())

	err := s.RunNow("x", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestNextIsOnTheHour(t *testing.T) {
	s := New(time.Second, logger.NewNop())
	require.NoError(t, s.AddJob("hourly", "0 * * * *", func(ctx context.Context) error { return nil }))
	s.Start()
	defer s.Stop()

	next, ok := s.Next("hourly")
	require.True(t, ok)
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 0, next.Second())
}
