package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/metrics"
	"github.com/R3E-Network/storefront/internal/app/system"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Task names used by the storefront.
const (
	TaskCartAbandonment  = "cartAbandonment"
	TaskCleanup          = "cleanup"
	TaskEmailHealthCheck = "emailHealthCheck"
)

// Task is a named unit of recurring work.
type Task struct {
	Name     string
	Schedule cron.Schedule
	Run      func(ctx context.Context) error
}

// TaskStatus reports the state of one task.
type TaskStatus struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	Scheduled bool       `json:"scheduled"`
	Runs      int        `json:"runs"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
}

type taskState struct {
	Task
	entryID   cron.EntryID
	scheduled bool
	// stopped holds an explicit StopTask across scheduler restarts.
	stopped bool
	running bool
	runs      int
	lastRun   time.Time
	lastErr   error
}

var _ system.Service = (*Scheduler)(nil)

// Scheduler runs named tasks on cron schedules. A task never overlaps itself;
// a firing that arrives while the previous run is still executing is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	tasks   map[string]*taskState
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New creates a scheduler with no tasks.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		log:     log,
		now:     time.Now,
		tasks:   make(map[string]*taskState),
		baseCtx: context.Background(),
	}
}

// WithClock overrides the time source used for status reporting.
func (s *Scheduler) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register adds a task. Once the scheduler is started, new tasks are
// scheduled immediately.
func (s *Scheduler) Register(task Task) error {
	task.Name = strings.TrimSpace(task.Name)
	if task.Name == "" {
		return service.RequiredError("name")
	}
	if task.Schedule == nil {
		return service.RequiredError("schedule")
	}
	if task.Run == nil {
		return service.RequiredError("run")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.Name]; exists {
		return service.NewConflictError("task %q already registered", task.Name)
	}
	st := &taskState{Task: task}
	s.tasks[task.Name] = st
	if s.started {
		s.scheduleLocked(st)
	}
	return nil
}

func (s *Scheduler) Name() string { return "scheduler" }

// Start schedules every registered task and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.started = true
	count := 0
	for _, st := range s.tasks {
		if st.stopped {
			continue
		}
		s.scheduleLocked(st)
		count++
	}
	s.mu.Unlock()

	s.cron.Start()
	s.log.WithField("tasks", count).Info("scheduler started")
	return nil
}

// Stop halts the cron runner, cancels running tasks and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil
	for _, st := range s.tasks {
		s.unscheduleLocked(st)
	}
	s.mu.Unlock()

	s.cron.Stop()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("scheduler stopped")
	return nil
}

// StartTask schedules a registered task. It fails with a conflict while the
// scheduler itself is not running, since nothing would fire the task.
func (s *Scheduler) StartTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[name]
	if !ok {
		return service.NewNotFoundError("task", name)
	}
	if !s.started {
		return service.NewConflictError("scheduler is not running; task %q cannot be started", name)
	}
	st.stopped = false
	s.scheduleLocked(st)
	return nil
}

// StopTask unschedules a task. A run in progress is allowed to finish.
func (s *Scheduler) StopTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[name]
	if !ok {
		return service.NewNotFoundError("task", name)
	}
	st.stopped = true
	s.unscheduleLocked(st)
	return nil
}

// StopAll unschedules every task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.tasks {
		st.stopped = true
		s.unscheduleLocked(st)
	}
	s.log.Info("all scheduled tasks stopped")
}

// RunNow executes a task immediately and returns its error. It fails with a
// conflict if the task is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return service.NewNotFoundError("task", name)
	}
	if st.running {
		s.mu.Unlock()
		return service.NewConflictError("task %q is already running", name)
	}
	st.running = true
	tracked := s.started
	if tracked {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if tracked {
		defer s.wg.Done()
	}
	return s.execute(ctx, st)
}

// Status returns the state of every task keyed by name.
func (s *Scheduler) Status() map[string]TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[string]TaskStatus, len(s.tasks))
	for name, st := range s.tasks {
		status := TaskStatus{
			Name:      name,
			Running:   st.running,
			Scheduled: st.scheduled,
			Runs:      st.runs,
		}
		if !st.lastRun.IsZero() {
			last := st.lastRun
			status.LastRun = &last
		}
		if st.lastErr != nil {
			status.LastError = st.lastErr.Error()
		}
		if st.scheduled {
			next := st.Schedule.Next(now)
			status.NextRun = &next
		}
		out[name] = status
	}
	return out
}

// TaskNames lists registered tasks in name order.
func (s *Scheduler) TaskNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) scheduleLocked(st *taskState) {
	if st.scheduled {
		return
	}
	st.entryID = s.cron.Schedule(st.Schedule, cron.FuncJob(func() { s.fire(st) }))
	st.scheduled = true
	s.log.WithField("task", st.Name).Debug("task scheduled")
}

func (s *Scheduler) unscheduleLocked(st *taskState) {
	if !st.scheduled {
		return
	}
	s.cron.Remove(st.entryID)
	st.scheduled = false
	st.entryID = 0
	s.log.WithField("task", st.Name).Debug("task unscheduled")
}

// fire is the cron callback. It skips the run when the task is still busy or
// the scheduler is stopping; Stop may already be waiting on wg.
func (s *Scheduler) fire(st *taskState) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	if st.running {
		s.mu.Unlock()
		s.log.WithField("task", st.Name).Warn("task still running; skipping scheduled run")
		return
	}
	st.running = true
	ctx := s.baseCtx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	_ = s.execute(ctx, st)
}

// execute runs the task with panic recovery and records the outcome. The
// caller must have set st.running.
func (s *Scheduler) execute(ctx context.Context, st *taskState) (err error) {
	start := time.Now()
	startedAt := s.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", st.Name, r)
		}
		elapsed := time.Since(start)
		metrics.RecordTaskRun(st.Name, elapsed, err == nil)

		s.mu.Lock()
		st.running = false
		st.runs++
		st.lastRun = startedAt
		st.lastErr = err
		s.mu.Unlock()

		entry := s.log.WithField("task", st.Name).WithField("duration", elapsed.String())
		if err != nil {
			entry.WithError(err).Error("scheduled task failed")
			return
		}
		entry.Debug("scheduled task completed")
	}()

	return st.Run(ctx)
}
