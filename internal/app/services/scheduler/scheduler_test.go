package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/pkg/logger"
)

var ref = time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)

func newTestScheduler() *Scheduler {
	s := New(logger.New(logger.LoggingConfig{Output: "discard"}))
	s.WithClock(func() time.Time { return ref })
	return s
}

func TestSchedules(t *testing.T) {
	every := Every(6 * time.Hour)
	assert.Equal(t, ref.Add(6*time.Hour), every.Next(ref))

	daily, err := DailyAt(2, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC), daily.Next(ref).UTC())
	early := time.Date(2024, 3, 1, 1, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC), daily.Next(early).UTC())

	hourly, err := Parse("@hourly")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), hourly.Next(ref).UTC())

	expr, err := Parse("0 */6 * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), expr.Next(ref).UTC())

	_, err = DailyAt(24, 0)
	assert.Error(t, err)
	_, err = Parse("not a schedule")
	assert.Error(t, err)
	_, err = Parse("")
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestScheduler()
	noop := func(context.Context) error { return nil }

	assert.True(t, service.IsValidationError(s.Register(Task{Schedule: Every(time.Hour), Run: noop})))
	assert.True(t, service.IsValidationError(s.Register(Task{Name: "a", Run: noop})))
	assert.True(t, service.IsValidationError(s.Register(Task{Name: "a", Schedule: Every(time.Hour)})))

	require.NoError(t, s.Register(Task{Name: "a", Schedule: Every(time.Hour), Run: noop}))
	assert.True(t, service.IsConflict(s.Register(Task{Name: "a", Schedule: Every(time.Hour), Run: noop})))
	assert.Equal(t, []string{"a"}, s.TaskNames())
}

func TestStartStopTasks(t *testing.T) {
	s := newTestScheduler()
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Register(Task{Name: TaskCartAbandonment, Schedule: Every(6 * time.Hour), Run: noop}))
	require.NoError(t, s.Register(Task{Name: TaskEmailHealthCheck, Schedule: Every(time.Hour), Run: noop}))

	status := s.Status()
	assert.False(t, status[TaskCartAbandonment].Scheduled)
	assert.Nil(t, status[TaskCartAbandonment].NextRun)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	status = s.Status()
	require.True(t, status[TaskCartAbandonment].Scheduled)
	require.NotNil(t, status[TaskCartAbandonment].NextRun)
	assert.Equal(t, ref.Add(6*time.Hour), *status[TaskCartAbandonment].NextRun)

	require.NoError(t, s.StopTask(TaskCartAbandonment))
	status = s.Status()
	assert.False(t, status[TaskCartAbandonment].Scheduled)
	assert.True(t, status[TaskEmailHealthCheck].Scheduled)

	require.NoError(t, s.StartTask(TaskCartAbandonment))
	assert.True(t, s.Status()[TaskCartAbandonment].Scheduled)

	s.StopAll()
	for _, st := range s.Status() {
		assert.False(t, st.Scheduled)
	}

	assert.True(t, service.IsNotFound(s.StartTask("missing")))
	assert.True(t, service.IsNotFound(s.StopTask("missing")))
	assert.True(t, service.IsNotFound(s.RunNow(context.Background(), "missing")))
}

func TestRunNowRecordsOutcome(t *testing.T) {
	s := newTestScheduler()
	fail := true
	require.NoError(t, s.Register(Task{
		Name:     TaskCleanup,
		Schedule: Every(time.Hour),
		Run: func(context.Context) error {
			if fail {
				return errors.New("database unavailable")
			}
			return nil
		},
	}))

	err := s.RunNow(context.Background(), TaskCleanup)
	require.Error(t, err)
	st := s.Status()[TaskCleanup]
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, "database unavailable", st.LastError)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, ref, *st.LastRun)

	fail = false
	require.NoError(t, s.RunNow(context.Background(), TaskCleanup))
	st = s.Status()[TaskCleanup]
	assert.Equal(t, 2, st.Runs)
	assert.Empty(t, st.LastError)
}

func TestPanickingTaskIsRecovered(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(Task{
		Name:     "boom",
		Schedule: Every(time.Hour),
		Run:      func(context.Context) error { panic("nil map") },
	}))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	err := s.RunNow(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	st := s.Status()["boom"]
	assert.False(t, st.Running)
	assert.True(t, st.Scheduled, "a failing task stays scheduled")
}

func TestTaskNeverOverlapsItself(t *testing.T) {
	s := newTestScheduler()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register(Task{
		Name:     "slow",
		Schedule: Every(time.Hour),
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	assert.True(t, s.Status()["slow"].Running)
	assert.True(t, service.IsConflict(s.RunNow(context.Background(), "slow")))

	st := s.tasks["slow"]
	s.fire(st)
	assert.Equal(t, 0, s.Status()["slow"].Runs, "scheduled firing skipped while running")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.Status()["slow"].Runs)
	assert.False(t, s.Status()["slow"].Running)
}

func TestCronFiresScheduledTask(t *testing.T) {
	s := New(logger.New(logger.LoggingConfig{Output: "discard"}))
	var runs atomic.Int32
	require.NoError(t, s.Register(Task{
		Name:     "tick",
		Schedule: Every(time.Second),
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStopCancelsRunningTasks(t *testing.T) {
	s := newTestScheduler()
	started := make(chan struct{})
	require.NoError(t, s.Register(Task{
		Name:     "long",
		Schedule: Every(time.Hour),
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start(context.Background()))

	go s.fire(s.tasks["long"])
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Status()["long"].Running)
}

func TestStartTaskRequiresRunningScheduler(t *testing.T) {
	s := newTestScheduler()
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Register(Task{Name: TaskCleanup, Schedule: Every(time.Hour), Run: noop}))

	err := s.StartTask(TaskCleanup)
	assert.True(t, service.IsConflict(err), "got %v", err)
	assert.False(t, s.Status()[TaskCleanup].Scheduled)
	assert.Nil(t, s.Status()[TaskCleanup].NextRun)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Status()[TaskCleanup].Scheduled, "stop unschedules every task")
	assert.True(t, service.IsConflict(s.StartTask(TaskCleanup)))
}

func TestStartRespectsEarlierStopTask(t *testing.T) {
	s := newTestScheduler()
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Register(Task{Name: TaskCartAbandonment, Schedule: Every(time.Hour), Run: noop}))
	require.NoError(t, s.Register(Task{Name: TaskEmailHealthCheck, Schedule: Every(time.Hour), Run: noop}))

	require.NoError(t, s.StopTask(TaskCartAbandonment))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	status := s.Status()
	assert.False(t, status[TaskCartAbandonment].Scheduled)
	assert.True(t, status[TaskEmailHealthCheck].Scheduled)

	require.NoError(t, s.StartTask(TaskCartAbandonment))
	assert.True(t, s.Status()[TaskCartAbandonment].Scheduled)

	// A restart keeps tasks stopped by StopAll stopped.
	s.StopAll()
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	for name, st := range s.Status() {
		assert.False(t, st.Scheduled, name)
	}
}

func TestFireAfterStopIsSkipped(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int32
	require.NoError(t, s.Register(Task{
		Name:     "late",
		Schedule: Every(time.Hour),
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	s.fire(s.tasks["late"])
	assert.Zero(t, runs.Load())
	assert.Equal(t, 0, s.Status()["late"].Runs)
}
