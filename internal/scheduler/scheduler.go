package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper discards workspaces idle for longer than ttl
type Sweeper interface {
	SweepIdleSessions(ttl time.Duration) (int, error)
}

// job is a named housekeeping task
type job struct {
	name string
	spec string
	run  func(ctx context.Context)
	id   cron.EntryID
}

// Scheduler runs housekeeping jobs on cron schedules
type Scheduler struct {
	sweeper    Sweeper
	sessionTTL time.Duration
	parser     cron.Parser

	mu      sync.RWMutex
	jobs    []*job
	running bool
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc // Cancel function for running jobs
}

// New creates a scheduler whose "sweep" job closes sessions idle for longer
// than sessionTTL on sweepSpec (standard five-field cron or a descriptor such
// as "@every 15m").
func New(sweeper Sweeper, sessionTTL time.Duration, sweepSpec string) (*Scheduler, error) {
	s := &Scheduler{
		sweeper:    sweeper,
		sessionTTL: sessionTTL,
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if err := s.AddJob("sweep", sweepSpec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// AddJob registers a job. Jobs added while running are scheduled immediately.
func (s *Scheduler) AddJob(name, spec string, run func(ctx context.Context)) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &job{name: name, spec: spec, run: run}
	s.jobs = append(s.jobs, j)
	if s.running {
		return s.schedule(j)
	}
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	logger := cron.PrintfLogger(log.Default())
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	// Create cancellable context for all spawned jobs
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, j := range s.jobs {
		if err := s.schedule(j); err != nil {
			// Specs were validated in AddJob.
			log.Printf("scheduler: %v", err)
		}
	}

	s.cron.Start()
	s.running = true
}

// Stop stops the scheduler and waits for running jobs to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false

	// Cancel all running job contexts
	s.cancel()
	done := s.cron.Stop()
	s.mu.Unlock()

	<-done.Done()
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the next activation of the named job, or the zero time
// when the scheduler is stopped or the job is unknown.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	for _, j := range s.jobs {
		if j.name == name {
			return s.cron.Entry(j.id).Next
		}
	}
	return time.Time{}
}

// schedule must be called with s.mu held and the scheduler started.
func (s *Scheduler) schedule(j *job) error {
	ctx := s.ctx
	id, err := s.cron.AddFunc(j.spec, func() {
		if ctx.Err() != nil {
			return
		}
		j.run(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", j.name, err)
	}
	j.id = id
	return nil
}

// SweepNow runs the idle session sweep immediately.
func (s *Scheduler) SweepNow() {
	s.sweep(context.Background())
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.sweeper.SweepIdleSessions(s.sessionTTL)
	if err != nil {
		log.Printf("scheduler: idle session sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: closed %d idle session(s)", n)
	}
}
