// Package scheduler drives the periodic maintenance jobs: consolidation
// sweep, embedding-cache cleanup, fact-importance rescoring, and
// expired-fact purge. Each task runs on its own interval timer with a
// running guard, run/error counters, and manual trigger support.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTaskRunning is returned when a manual trigger targets a task that
	// is already in flight.
	ErrTaskRunning = errors.New("task is already running")
	// ErrUnknownTask is returned for task names the scheduler does not own.
	ErrUnknownTask = errors.New("unknown task")
)

// Canonical task names.
const (
	TaskConsolidationSweep = "consolidation_sweep"
	TaskCacheCleanup       = "cache_cleanup"
	TaskImportanceRescore  = "importance_rescore"
	TaskExpiredFactPurge   = "expired_fact_purge"
)

// TaskFunc is one maintenance job body.
type TaskFunc func() error

type task struct {
	name string
	fn   TaskFunc

	mu         sync.Mutex
	interval   time.Duration
	running    bool
	lastRun    time.Time
	nextRun    time.Time
	runCount   int64
	errorCount int64

	reset chan struct{} // signals an interval change to the timer loop
}

// TaskStats is the per-task slice of GetStats.
type TaskStats struct {
	Name       string `json:"name"`
	IntervalMS int64  `json:"intervalMs"`
	LastRun    *int64 `json:"lastRun,omitempty"`
	NextRun    *int64 `json:"nextRun,omitempty"`
	Running    bool   `json:"running"`
	RunCount   int64  `json:"runCount"`
	ErrorCount int64  `json:"errorCount"`
}

// Stats is the scheduler's observability surface.
type Stats struct {
	Started       bool        `json:"started"`
	UptimeSeconds int64       `json:"uptimeSeconds"`
	Tasks         []TaskStats `json:"tasks"`
	TotalRuns     int64       `json:"totalRuns"`
	TotalErrors   int64       `json:"totalErrors"`
}

// Scheduler owns the four maintenance timers. Task state is in-memory only
// and rebuilt at process start.
type Scheduler struct {
	mu        sync.Mutex
	tasks     map[string]*task
	order     []string
	stop      chan struct{}
	wg        sync.WaitGroup
	started   bool
	startedAt time.Time
	enabled   bool
	logger    *slog.Logger
}

func New(enabled bool, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tasks:   make(map[string]*task),
		enabled: enabled,
		logger:  logger,
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return
	}
	s.tasks[name] = &task{
		name:     name,
		fn:       fn,
		interval: interval,
		reset:    make(chan struct{}, 1),
	}
	s.order = append(s.order, name)
}

// Start launches one timer loop per registered task. No-op when disabled in
// config or already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.started {
		return
	}
	s.started = true
	s.startedAt = time.Now()
	s.stop = make(chan struct{})

	for _, name := range s.order {
		t := s.tasks[name]
		t.mu.Lock()
		t.nextRun = time.Now().Add(t.interval)
		t.mu.Unlock()

		s.wg.Add(1)
		go s.loop(t)
	}
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels all live timers. Counters persist in memory until the next
// Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(t *task) {
	defer s.wg.Done()
	timer := time.NewTimer(t.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(t.currentInterval())
		case <-timer.C:
			s.runTask(t)
			timer.Reset(t.currentInterval())
		}
	}
}

// runTask executes one tick and reports whether it ran. A task already in
// flight is skipped entirely, never queued; the check and the claim happen
// under one lock so two callers can never both pass. Timestamps are
// recomputed after every attempt regardless of outcome.
func (s *Scheduler) runTask(t *task) bool {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		s.logger.Warn("task still running, skipping tick", "task", t.name)
		return false
	}
	t.running = true
	t.mu.Unlock()

	start := time.Now()
	err := t.fn()

	t.mu.Lock()
	t.running = false
	t.lastRun = start
	t.nextRun = time.Now().Add(t.interval)
	t.runCount++
	if err != nil {
		t.errorCount++
	}
	t.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled task failed", "task", t.name, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		s.logger.Info("scheduled task complete", "task", t.name,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return true
}

// TriggerTask runs a task immediately. Triggering a task that is already
// running is a reported error, not silently ignored.
func (s *Scheduler) TriggerTask(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	if !s.runTask(t) {
		return fmt.Errorf("%w: %s", ErrTaskRunning, name)
	}
	return nil
}

// UpdateTaskInterval changes a task's interval and reschedules its timer.
func (s *Scheduler) UpdateTaskInterval(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	s.mu.Lock()
	t, ok := s.tasks[name]
	started := s.started
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	t.mu.Lock()
	t.interval = interval
	t.nextRun = time.Now().Add(interval)
	t.mu.Unlock()

	if started {
		select {
		case t.reset <- struct{}{}:
		default:
		}
	}
	return nil
}

// GetStats reports uptime, per-task state, and aggregate totals.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	started := s.started
	startedAt := s.startedAt
	names := make([]string, len(s.order))
	copy(names, s.order)
	s.mu.Unlock()

	stats := Stats{Started: started}
	if started {
		stats.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	sort.Strings(names)
	for _, name := range names {
		s.mu.Lock()
		t := s.tasks[name]
		s.mu.Unlock()

		t.mu.Lock()
		ts := TaskStats{
			Name:       t.name,
			IntervalMS: t.interval.Milliseconds(),
			Running:    t.running,
			RunCount:   t.runCount,
			ErrorCount: t.errorCount,
		}
		if !t.lastRun.IsZero() {
			v := t.lastRun.Unix()
			ts.LastRun = &v
		}
		if !t.nextRun.IsZero() {
			v := t.nextRun.Unix()
			ts.NextRun = &v
		}
		t.mu.Unlock()

		stats.Tasks = append(stats.Tasks, ts)
		stats.TotalRuns += ts.RunCount
		stats.TotalErrors += ts.ErrorCount
	}
	return stats
}

func (t *task) currentInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}
