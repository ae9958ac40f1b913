package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State of the simulator
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

const (
	// DefaultInterval is the delay between two checkpoints.
	DefaultInterval = time.Second

	// DefaultAnalysisTimeout bounds the Analyzer call at the final checkpoint.
	DefaultAnalysisTimeout = 30 * time.Second
)

// Event is emitted for every applied checkpoint and every state transition.
type Event struct {
	RunID    uint64
	State    State
	Progress int
	Findings []Finding // StateComplete only
	Err      *Error    // StateFailed only
}

// Snapshot is a point-in-time copy of the simulator state. Findings are the
// results of the last completed run.
type Snapshot struct {
	RunID    uint64
	State    State
	Progress int
	Findings []Finding
	Err      *Error
}

// Options configures a Simulator. Zero values pick the defaults.
type Options struct {
	Checkpoints     Checkpoints
	Interval        time.Duration
	Analyzer        Analyzer
	AnalysisTimeout time.Duration
	Clock           clockwork.Clock

	// OnEvent is called with the simulator lock held, so observers see one
	// ordered stream. It must not call back into the Simulator.
	OnEvent func(Event)
}

// Simulator drives one scan at a time through its checkpoints.
type Simulator struct {
	checkpoints     Checkpoints
	interval        time.Duration
	analyzer        Analyzer
	analysisTimeout time.Duration
	clock           clockwork.Clock
	onEvent         func(Event)

	mu       sync.Mutex
	state    State
	progress int
	runID    uint64
	findings []Finding
	lastErr  *Error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an idle simulator.
func New(opts Options) (*Simulator, error) {
	if opts.Checkpoints == nil {
		opts.Checkpoints = DefaultCheckpoints
	}
	if err := opts.Checkpoints.Validate(); err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Analyzer == nil {
		opts.Analyzer = StubAnalyzer{}
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	done := make(chan struct{})
	close(done)

	return &Simulator{
		checkpoints:     append(Checkpoints(nil), opts.Checkpoints...),
		interval:        opts.Interval,
		analyzer:        opts.Analyzer,
		analysisTimeout: opts.AnalysisTimeout,
		clock:           opts.Clock,
		onEvent:         opts.OnEvent,
		state:           StateIdle,
		done:            done,
	}, nil
}

// Start begins a new run over files. It fails with ErrNoFiles when files is
// empty and with ErrAlreadyRunning while another run is in progress; in both
// cases nothing is scheduled.
func (s *Simulator) Start(files []File, cfg Config) (uint64, error) {
	if len(files) == 0 {
		return 0, ErrNoFiles
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return 0, ErrAlreadyRunning
	}

	s.runID++
	runID := s.runID
	s.state = StateRunning
	s.progress = 0
	s.lastErr = nil

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go s.run(ctx, runID, s.clock.Now(), append([]File(nil), files...), cfg.Clone(), done)

	return runID, nil
}

// Cancel stops the current run and returns to Idle. Results of earlier runs
// are left untouched. It reports whether a run was cancelled.
func (s *Simulator) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return false
	}

	s.cancel()
	s.cancel = nil
	s.state = StateIdle
	s.progress = 0
	s.emit(Event{RunID: s.runID, State: StateIdle})
	return true
}

// Close cancels any run and waits for its goroutine to exit.
func (s *Simulator) Close() {
	s.Cancel()
	<-s.Done()
}

// Snapshot returns a copy of the current state.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		RunID:    s.runID,
		State:    s.state,
		Progress: s.progress,
		Findings: cloneFindings(s.findings),
		Err:      s.lastErr,
	}
}

// Done returns a channel closed when the goroutine of the latest run exits.
// It is already closed when no run was ever started.
func (s *Simulator) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Checkpoints returns the configured checkpoint sequence.
func (s *Simulator) Checkpoints() Checkpoints {
	return append(Checkpoints(nil), s.checkpoints...)
}

// Interval returns the delay between two checkpoints.
func (s *Simulator) Interval() time.Duration {
	return s.interval
}

func (s *Simulator) run(ctx context.Context, runID uint64, start time.Time, files []File, cfg Config, done chan struct{}) {
	defer close(done)

	last := len(s.checkpoints) - 1
	for i, value := range s.checkpoints {
		if i > 0 && !s.waitUntil(ctx, start.Add(time.Duration(i)*s.interval)) {
			return
		}
		if i == last {
			break
		}
		if !s.advance(runID, value) {
			return
		}
	}

	findings, err := s.analyze(ctx, files, cfg)
	s.finish(runID, findings, err)
}

// waitUntil blocks until deadline on the simulator clock. It returns false
// when the run was cancelled first.
func (s *Simulator) waitUntil(ctx context.Context, deadline time.Time) bool {
	d := deadline.Sub(s.clock.Now())
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return ctx.Err() == nil
	}
}

// advance applies one checkpoint if runID is still the live run.
func (s *Simulator) advance(runID uint64, value int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID != runID || s.state != StateRunning {
		return false
	}
	if value < s.progress {
		value = s.progress
	}
	s.progress = value
	s.emit(Event{RunID: runID, State: StateRunning, Progress: value})
	return true
}

func (s *Simulator) analyze(ctx context.Context, files []File, cfg Config) ([]Finding, error) {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The deadline runs on the simulator clock. The timer is stopped on
	// return so no waiter outlives the analysis.
	timeout := fmt.Errorf("analysis exceeded %s: %w", s.analysisTimeout, context.DeadlineExceeded)
	timer := s.clock.AfterFunc(s.analysisTimeout, func() { cancel(timeout) })
	defer timer.Stop()

	findings, err := s.analyzer.Analyze(actx, files, cfg)
	if err != nil {
		if errors.Is(context.Cause(actx), timeout) {
			return findings, &Error{Kind: KindAnalysisTimeout, Err: timeout}
		}
		return findings, err
	}
	if err := validateFindings(findings); err != nil {
		return nil, &Error{Kind: KindInternal, Err: err}
	}
	return findings, nil
}

// finish commits the final checkpoint and the findings in one transition.
func (s *Simulator) finish(runID uint64, findings []Finding, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID != runID || s.state != StateRunning {
		return
	}

	s.cancel()
	s.cancel = nil

	if err != nil {
		se := asScanError(err, cloneFindings(findings))
		s.state = StateFailed
		s.lastErr = se
		s.emit(Event{RunID: runID, State: StateFailed, Progress: s.progress, Err: se})
		return
	}

	s.findings = cloneFindings(findings)
	s.progress = s.checkpoints[len(s.checkpoints)-1]
	s.state = StateComplete
	s.emit(Event{RunID: runID, State: StateComplete, Progress: s.progress, Findings: cloneFindings(s.findings)})
}

func (s *Simulator) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func validateFindings(findings []Finding) error {
	seen := make(map[string]bool, len(findings))
	for i, f := range findings {
		if f.ID == "" {
			return fmt.Errorf("finding %d has no id", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate finding id %q", f.ID)
		}
		seen[f.ID] = true
		if !f.Severity.Valid() {
			return fmt.Errorf("finding %q has unknown severity %q", f.ID, f.Severity)
		}
		if f.Confidence < 0 || f.Confidence > 100 {
			return fmt.Errorf("finding %q confidence out of range: %d", f.ID, f.Confidence)
		}
	}
	return nil
}

func cloneFindings(in []Finding) []Finding {
	if in == nil {
		return nil
	}
	return append([]Finding(nil), in...)
}
