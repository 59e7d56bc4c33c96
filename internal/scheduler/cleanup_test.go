package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/metrics"
	redisrepo "github.com/Rrens/practice-chat/internal/repository/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	calls atomic.Int64
	fail  atomic.Bool
	block chan struct{}
}

func (c *fakeCleaner) CleanupExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if c.fail.Load() {
		return 0, errors.New("database unavailable")
	}
	return 2, nil
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, name, ttl)
	release, _ := args.Get(0).(func(context.Context) error)
	return release, args.Bool(1), args.Error(2)
}

func testConfig() config.CleanupConfig {
	return config.CleanupConfig{
		Enabled:        true,
		DailySchedule:  "0 0 * * *",
		HourlySchedule: "0 * * * *",
		RunTimeout:     time.Second,
		LockTTL:        time.Minute,
	}
}

func TestCleanupScheduler_StartStop(t *testing.T) {
	s := NewCleanupScheduler(&fakeCleaner{}, testConfig(), nil, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	// second start is a no-op
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestCleanupScheduler_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.HourlySchedule = "every hour please"
	s := NewCleanupScheduler(&fakeCleaner{}, cfg, nil, nil)

	err := s.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestCleanupScheduler_RunsOnSchedule(t *testing.T) {
	cleaner := &fakeCleaner{}
	cleaner.fail.Store(true)

	cfg := testConfig()
	cfg.HourlySchedule = "@every 1s"
	s := NewCleanupScheduler(cleaner, cfg, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// failing sweeps do not stop the schedule
	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, s.IsRunning())
}

func TestCleanupScheduler_StopWaitsForRunningSweep(t *testing.T) {
	cleaner := &fakeCleaner{block: make(chan struct{})}

	cfg := testConfig()
	cfg.DailySchedule = "@every 1s"
	cfg.RunTimeout = 10 * time.Second
	s := NewCleanupScheduler(cleaner, cfg, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return cleaner.calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(cleaner.block)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
}

func TestCleanupScheduler_Run(t *testing.T) {
	s := NewCleanupScheduler(&fakeCleaner{}, testConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.IsRunning, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.IsRunning())
}

func TestCleanupScheduler_RunOnce(t *testing.T) {
	t.Run("records metrics", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		m := metrics.New()
		s := NewCleanupScheduler(cleaner, testConfig(), nil, m)

		s.RunOnce(context.Background(), JobDaily)
		assert.Equal(t, int64(1), cleaner.calls.Load())
	})

	t.Run("error is swallowed", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		cleaner.fail.Store(true)
		s := NewCleanupScheduler(cleaner, testConfig(), nil, nil)

		assert.NotPanics(t, func() { s.RunOnce(context.Background(), JobHourly) })
		assert.Equal(t, int64(1), cleaner.calls.Load())
	})

	t.Run("skipped when lock is held elsewhere", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		locker := new(MockLocker)
		locker.On("TryLock", mock.Anything, "cleanup:hourly", time.Minute).Return(nil, false, nil)
		s := NewCleanupScheduler(cleaner, testConfig(), locker, nil)

		s.RunOnce(context.Background(), JobHourly)
		assert.Equal(t, int64(0), cleaner.calls.Load())
		locker.AssertExpectations(t)
	})

	t.Run("lock error falls back to sweeping", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		locker := new(MockLocker)
		locker.On("TryLock", mock.Anything, "cleanup:daily", time.Minute).Return(nil, false, errors.New("redis down"))
		s := NewCleanupScheduler(cleaner, testConfig(), locker, nil)

		s.RunOnce(context.Background(), JobDaily)
		assert.Equal(t, int64(1), cleaner.calls.Load())
	})
}

func TestCleanupScheduler_RedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisrepo.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer client.Close()
	locker := redisrepo.NewLocker(client)

	// another replica holds the hourly lock
	release, ok, err := locker.TryLock(context.Background(), "cleanup:hourly", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	cleaner := &fakeCleaner{}
	s := NewCleanupScheduler(cleaner, testConfig(), locker, nil)

	s.RunOnce(context.Background(), JobHourly)
	assert.Equal(t, int64(0), cleaner.calls.Load())

	require.NoError(t, release(context.Background()))

	s.RunOnce(context.Background(), JobHourly)
	assert.Equal(t, int64(1), cleaner.calls.Load())
	assert.False(t, mr.Exists("chat:lock:cleanup:hourly"))
}
