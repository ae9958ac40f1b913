package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockSweeper records sweep calls
type mockSweeper struct {
	mu     sync.Mutex
	calls  int
	ttls   []time.Duration
	closed int
	err    error
}

func (m *mockSweeper) SweepIdleSessions(ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.ttls = append(m.ttls, ttl)
	return m.closed, m.err
}

func (m *mockSweeper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestNew(t *testing.T) {
	sweeper := &mockSweeper{}

	s, err := New(sweeper, time.Hour, "@every 15m")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.sweeper != sweeper {
		t.Error("scheduler.sweeper not set correctly")
	}
	if s.Running() {
		t.Error("scheduler should not be running initially")
	}
	if len(s.jobs) != 1 || s.jobs[0].name != "sweep" {
		t.Errorf("jobs = %+v, want the sweep job", s.jobs)
	}
}

func TestCronExpressionParsing(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"*/15 * * * *", false},
		{"0 3 * * *", false},
		{"@hourly", false},
		{"@every 15m", false},
		{"0 0 * * * *", true}, // seconds field not accepted
		{"not a schedule", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := New(&mockSweeper{}, time.Hour, tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(&mockSweeper{}, time.Hour, "@every 15m")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Start()
	if !s.Running() {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	next := s.NextRun("sweep")
	if next.IsZero() || next.Before(time.Now()) {
		t.Errorf("NextRun(sweep) = %v, want a future time", next)
	}
	if !s.NextRun("unknown").IsZero() {
		t.Error("NextRun(unknown) should be zero")
	}

	s.Stop()
	if s.Running() {
		t.Error("scheduler should not be running after Stop")
	}
	if !s.NextRun("sweep").IsZero() {
		t.Error("NextRun should be zero when stopped")
	}

	// Double stop should be safe
	s.Stop()
}

func TestSweepNow(t *testing.T) {
	sweeper := &mockSweeper{closed: 2}
	s, _ := New(sweeper, 30*time.Minute, "@every 15m")

	s.SweepNow()

	if sweeper.callCount() != 1 {
		t.Fatalf("sweep calls = %d, want 1", sweeper.callCount())
	}
	if sweeper.ttls[0] != 30*time.Minute {
		t.Errorf("ttl = %v, want 30m", sweeper.ttls[0])
	}

	// Errors are logged, not propagated.
	sweeper.err = errors.New("database is locked")
	s.SweepNow()
	if sweeper.callCount() != 2 {
		t.Errorf("sweep calls = %d, want 2", sweeper.callCount())
	}
}

func TestAddJob_Runs(t *testing.T) {
	s, _ := New(&mockSweeper{}, time.Hour, "@every 15m")

	ran := make(chan struct{}, 1)
	if err := s.AddJob("tick", "@every 1s", func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	if err := s.AddJob("bad", "every tuesday", func(context.Context) {}); err == nil {
		t.Error("AddJob should reject an invalid schedule")
	}
}

func TestAddJob_WhileRunning(t *testing.T) {
	s, _ := New(&mockSweeper{}, time.Hour, "@every 15m")
	s.Start()
	defer s.Stop()

	if err := s.AddJob("late", "@hourly", func(context.Context) {}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	if s.NextRun("late").IsZero() {
		t.Error("job added while running was not scheduled")
	}
}

func TestGracefulShutdown(t *testing.T) {
	s, _ := New(&mockSweeper{}, time.Hour, "@every 15m")

	started := make(chan struct{})
	finished := make(chan struct{})
	s.AddJob("slow", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
			return
		}
		<-ctx.Done()
		close(finished)
	})

	s.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	s.Stop()

	select {
	case <-finished:
	default:
		t.Error("Stop returned before the running job finished")
	}
}
