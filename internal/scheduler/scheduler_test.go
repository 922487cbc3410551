package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerTask(t *testing.T) {
	t.Run("runs the task synchronously", func(t *testing.T) {
		s := New(true, testLogger())
		ran := 0
		s.Register("demo", time.Hour, func() error {
			ran++
			return nil
		})

		if err := s.TriggerTask("demo"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ran != 1 {
			t.Fatalf("expected 1 run, got %d", ran)
		}

		stats := s.GetStats()
		if stats.Tasks[0].RunCount != 1 {
			t.Fatalf("expected runCount 1, got %d", stats.Tasks[0].RunCount)
		}
		if stats.Tasks[0].LastRun == nil || stats.Tasks[0].NextRun == nil {
			t.Fatal("expected lastRun and nextRun set after a run")
		}
	})

	t.Run("unknown task is an error", func(t *testing.T) {
		s := New(true, testLogger())
		if err := s.TriggerTask("nope"); !errors.Is(err, ErrUnknownTask) {
			t.Fatalf("expected ErrUnknownTask, got %v", err)
		}
	})

	t.Run("triggering a running task errors without queuing", func(t *testing.T) {
		s := New(true, testLogger())
		release := make(chan struct{})
		started := make(chan struct{})
		s.Register("slow", time.Hour, func() error {
			close(started)
			<-release
			return nil
		})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.TriggerTask("slow")
		}()
		<-started

		err := s.TriggerTask("slow")
		if !errors.Is(err, ErrTaskRunning) {
			t.Fatalf("expected ErrTaskRunning, got %v", err)
		}

		close(release)
		wg.Wait()

		stats := s.GetStats()
		if stats.Tasks[0].RunCount != 1 {
			t.Fatalf("rejected trigger must not queue a second run, runCount %d", stats.Tasks[0].RunCount)
		}
	})

	t.Run("concurrent triggers run exactly once", func(t *testing.T) {
		s := New(true, testLogger())
		release := make(chan struct{})
		s.Register("slow", time.Hour, func() error {
			<-release
			return nil
		})

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() { errs <- s.TriggerTask("slow") }()
		}

		// The winner blocks inside the task, so the first error to arrive
		// must be the loser's ErrTaskRunning, not a silent second run.
		if err := <-errs; !errors.Is(err, ErrTaskRunning) {
			t.Fatalf("expected ErrTaskRunning from the losing trigger, got %v", err)
		}
		close(release)
		if err := <-errs; err != nil {
			t.Fatalf("winning trigger should succeed, got %v", err)
		}

		if got := s.GetStats().Tasks[0].RunCount; got != 1 {
			t.Fatalf("expected exactly one run, got %d", got)
		}
	})

	t.Run("failures count separately", func(t *testing.T) {
		s := New(true, testLogger())
		s.Register("flaky", time.Hour, func() error {
			return errors.New("boom")
		})

		if err := s.TriggerTask("flaky"); err != nil {
			t.Fatalf("trigger itself should succeed even when the task fails: %v", err)
		}

		stats := s.GetStats()
		if stats.Tasks[0].RunCount != 1 || stats.Tasks[0].ErrorCount != 1 {
			t.Fatalf("expected runCount 1 / errorCount 1, got %d / %d",
				stats.Tasks[0].RunCount, stats.Tasks[0].ErrorCount)
		}
	})
}

func TestStartStop(t *testing.T) {
	t.Run("disabled scheduler never starts", func(t *testing.T) {
		s := New(false, testLogger())
		s.Register("demo", time.Hour, func() error { return nil })
		s.Start()
		if s.GetStats().Started {
			t.Fatal("disabled scheduler must not start")
		}
	})

	t.Run("interval tick fires the task", func(t *testing.T) {
		s := New(true, testLogger())
		done := make(chan struct{}, 4)
		s.Register("fast", 5*time.Millisecond, func() error {
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		})

		s.Start()
		defer s.Stop()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task never fired")
		}
	})

	t.Run("stop is idempotent and halts timers", func(t *testing.T) {
		s := New(true, testLogger())
		s.Register("demo", time.Hour, func() error { return nil })
		s.Start()
		s.Stop()
		s.Stop()
		if s.GetStats().Started {
			t.Fatal("expected stopped state")
		}

		// Counters survive a stop.
		if err := s.TriggerTask("demo"); err != nil {
			t.Fatalf("manual trigger after stop: %v", err)
		}
		if s.GetStats().Tasks[0].RunCount != 1 {
			t.Fatal("expected counters preserved across stop")
		}
	})
}

func TestUpdateTaskInterval(t *testing.T) {
	s := New(true, testLogger())
	s.Register("demo", time.Hour, func() error { return nil })

	if err := s.UpdateTaskInterval("demo", 30*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.GetStats().Tasks[0].IntervalMS; got != (30 * time.Minute).Milliseconds() {
		t.Fatalf("expected 30m interval, got %dms", got)
	}

	if err := s.UpdateTaskInterval("demo", 0); err == nil {
		t.Fatal("expected error for non-positive interval")
	}
	if err := s.UpdateTaskInterval("nope", time.Minute); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestGetStats(t *testing.T) {
	s := New(true, testLogger())
	s.Register("b-task", time.Hour, func() error { return nil })
	s.Register("a-task", time.Hour, func() error { return errors.New("x") })

	_ = s.TriggerTask("a-task")
	_ = s.TriggerTask("b-task")
	_ = s.TriggerTask("b-task")

	stats := s.GetStats()
	if len(stats.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(stats.Tasks))
	}
	// Sorted by name for stable output.
	if stats.Tasks[0].Name != "a-task" || stats.Tasks[1].Name != "b-task" {
		t.Fatalf("expected name-sorted tasks, got %s, %s", stats.Tasks[0].Name, stats.Tasks[1].Name)
	}
	if stats.TotalRuns != 3 || stats.TotalErrors != 1 {
		t.Fatalf("expected totals 3/1, got %d/%d", stats.TotalRuns, stats.TotalErrors)
	}
}
