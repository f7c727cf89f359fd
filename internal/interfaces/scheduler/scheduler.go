package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrAlreadyRunning = errors.New("job is already running")
	ErrUnknownJob     = errors.New("unknown job")
)

// ScheduleTime represents a specific time of day when a job should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// CronSpec returns the daily cron expression for the time.
func (st ScheduleTime) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", st.Minute, st.Hour)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Specs turns HH:MM times into cron specs. A non-empty cronSpec wins.
func Specs(times []string, cronSpec string) ([]string, error) {
	if cronSpec != "" {
		return []string{cronSpec}, nil
	}
	specs := make([]string, 0, len(times))
	for _, t := range times {
		st, err := ParseScheduleTime(t)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", t, err)
		}
		specs = append(specs, st.CronSpec())
	}
	if len(specs) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}
	return specs, nil
}

// Locker guards a job across processes. Leases expire after ttl so a crashed
// holder does not block the job forever.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// RunFunc is the body of a recurring job.
type RunFunc func(ctx context.Context) error

type task struct {
	name    string
	run     RunFunc
	entries []cron.EntryID
	mu      sync.Mutex
}

// Config holds scheduler settings.
type Config struct {
	Location *time.Location
	// Locker is optional. Without it only the in-process lock applies.
	Locker   Locker
	LeaseTTL time.Duration
}

// Scheduler runs named jobs on cron schedules. A job never overlaps itself:
// a trigger that finds it running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	tasks    map[string]*task
	locker   Locker
	leaseTTL time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Register jobs before Start.
func NewScheduler(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{logger})),
		tasks:    make(map[string]*task),
		locker:   cfg.Locker,
		leaseTTL: ttl,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a job with one or more standard cron specs.
func (s *Scheduler) Register(name string, specs []string, run RunFunc) error {
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	t := &task{name: name, run: run}
	for _, spec := range specs {
		id, err := s.cron.AddFunc(spec, func() {
			if err := s.execute(t); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				s.logger.Error("scheduled job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
		t.entries = append(t.entries, id)
	}
	s.tasks[name] = t
	s.logger.Info("job registered", "job", name, "schedules", specs)
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, name := range s.Jobs() {
		s.logger.Info("job scheduled", "job", name, "next_run", s.NextRun(name))
	}
}

// Trigger starts a job in the background. It returns ErrAlreadyRunning when
// the job holds its lock.
func (s *Scheduler) Trigger(name string) error {
	return s.TriggerWith(name, nil)
}

// TriggerWith starts run in the background under the named job's lock, so
// an ad-hoc variant of a job never overlaps the scheduled one. A nil run
// uses the registered body.
func (s *Scheduler) TriggerWith(name string, run RunFunc) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if run == nil {
		run = t.run
	}

	release, err := s.acquire(s.ctx, t)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		if err := s.runTask(t.name, run); err != nil {
			s.logger.Error("triggered job failed", "job", name, "error", err)
		}
	}()
	return nil
}

// RunNow runs a job synchronously under its lock.
func (s *Scheduler) RunNow(name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(t)
}

func (s *Scheduler) execute(t *task) error {
	release, err := s.acquire(s.ctx, t)
	if err != nil {
		return err
	}
	defer release()
	return s.runTask(t.name, t.run)
}

func (s *Scheduler) runTask(name string, run RunFunc) error {
	start := time.Now()
	s.logger.InfoContext(s.ctx, "job started", "job", name)
	err := run(s.ctx)
	s.logger.InfoContext(s.ctx, "job finished", "job", name, "duration", time.Since(start), "error", err)
	return err
}

// acquire takes the in-process lock and then the shared lease.
func (s *Scheduler) acquire(ctx context.Context, t *task) (func(), error) {
	if !t.mu.TryLock() {
		s.logger.Warn("job still running, skipping trigger", "job", t.name)
		return nil, ErrAlreadyRunning
	}
	if s.locker == nil {
		return t.mu.Unlock, nil
	}

	ok, err := s.locker.Acquire(ctx, t.name, s.leaseTTL)
	if err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire lease for %s: %w", t.name, err)
	}
	if !ok {
		t.mu.Unlock()
		s.logger.Warn("job lease held by another instance, skipping trigger", "job", t.name)
		return nil, ErrAlreadyRunning
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, t.name); err != nil {
			s.logger.Error("failed to release job lease", "job", t.name, "error", err)
		}
		t.mu.Unlock()
	}, nil
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the job's next scheduled time, zero before Start.
func (s *Scheduler) NextRun(name string) time.Time {
	t, ok := s.tasks[name]
	if !ok {
		return time.Time{}
	}
	var next time.Time
	for _, id := range t.entries {
		n := s.cron.Entry(id).Next
		if !n.IsZero() && (next.IsZero() || n.Before(next)) {
			next = n
		}
	}
	return next
}

// Shutdown stops the schedules, cancels running jobs and waits for them up
// to timeout.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.logger.Info("scheduler shutting down")

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(timeout):
		s.logger.Warn("timeout waiting for running jobs to stop")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
