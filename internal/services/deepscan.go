package services

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lyallcooper/legalreview/internal/db"
	"github.com/lyallcooper/legalreview/internal/report"
	"github.com/lyallcooper/legalreview/internal/scan"
	"github.com/lyallcooper/legalreview/internal/types"
)

var (
	// ErrNoResults is returned by exports before any scan completed.
	ErrNoResults = errors.New("no completed scan results")

	// ErrFileIndex is returned when removing a file that does not exist.
	ErrFileIndex = errors.New("no file at index")
)

// subscriber wraps a channel with safe close handling
type subscriber struct {
	mu     sync.Mutex
	ch     chan *types.ScanProgress
	closed bool
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (sub *subscriber) send(progress *types.ScanProgress) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- progress:
		return true
	default:
		return false
	}
}

// DeepScanOptions configures the simulator of every session
type DeepScanOptions struct {
	Checkpoints     scan.Checkpoints
	Interval        time.Duration
	AnalysisTimeout time.Duration
	Analyzer        scan.Analyzer
	Clock           clockwork.Clock
}

// session is the in-memory half of a workspace: its simulator and the
// mapping from simulator runs to stored scan runs.
type session struct {
	id  string
	sim *scan.Simulator

	// startMu serializes StartScan so the next simulator run id is known
	// before Start is called.
	startMu sync.Mutex

	runsMu  sync.Mutex
	runs    map[uint64]int64 // simulator run id -> db scan run id
	lastRun int64
}

func (s *session) bind(simRun uint64, dbRun int64) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.runs[simRun] = dbRun
}

func (s *session) lookup(simRun uint64) (int64, bool) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	id, ok := s.runs[simRun]
	return id, ok
}

func (s *session) unbind(simRun uint64) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	delete(s.runs, simRun)
}

func (s *session) setLastRun(id int64) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.lastRun = id
}

func (s *session) getLastRun() int64 {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	return s.lastRun
}

// DeepScan owns the deep-scan workspace of every browser session
type DeepScan struct {
	db   *db.DB
	opts DeepScanOptions

	mu       sync.Mutex
	sessions map[string]*session

	// SSE subscribers
	subMu       sync.RWMutex
	subscribers map[string][]*subscriber
}

// NewDeepScan creates the service. Runs left running by a previous process
// are marked cancelled.
func NewDeepScan(database *db.DB, opts DeepScanOptions) (*DeepScan, error) {
	if opts.Checkpoints == nil {
		opts.Checkpoints = scan.DefaultCheckpoints
	}
	if err := opts.Checkpoints.Validate(); err != nil {
		return nil, err
	}
	if opts.Analyzer == nil {
		opts.Analyzer = scan.StubAnalyzer{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	n, err := database.MarkInterruptedRuns()
	if err != nil {
		return nil, fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if n > 0 {
		log.Printf("deepscan: marked %d interrupted run(s) cancelled", n)
	}

	return &DeepScan{
		db:          database,
		opts:        opts,
		sessions:    make(map[string]*session),
		subscribers: make(map[string][]*subscriber),
	}, nil
}

// Touch records activity on a session, creating it on first use.
func (d *DeepScan) Touch(sessionID string) error {
	if _, err := d.db.TouchSession(sessionID, d.opts.Clock.Now()); err != nil {
		return err
	}
	_, err := d.session(sessionID)
	return err
}

// session returns the live session, creating it (and its store row) if needed.
func (d *DeepScan) session(id string) (*session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sess, ok := d.sessions[id]; ok {
		return sess, nil
	}

	if _, err := d.db.GetSession(id); errors.Is(err, db.ErrNotFound) {
		if _, err := d.db.TouchSession(id, d.opts.Clock.Now()); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	sess := &session{id: id, runs: make(map[uint64]int64)}
	sim, err := scan.New(scan.Options{
		Checkpoints:     d.opts.Checkpoints,
		Interval:        d.opts.Interval,
		Analyzer:        d.opts.Analyzer,
		AnalysisTimeout: d.opts.AnalysisTimeout,
		Clock:           d.opts.Clock,
		OnEvent: func(ev scan.Event) {
			d.handleEvent(sess, ev)
		},
	})
	if err != nil {
		return nil, err
	}
	sess.sim = sim
	d.sessions[id] = sess
	return sess, nil
}

// AddFiles appends files to the session's selection. Files with unsupported
// extensions are skipped; the returned error joins one ErrUnsupportedFile
// per rejected file while the accepted ones are still stored.
func (d *DeepScan) AddFiles(sessionID string, files []scan.File) error {
	if _, err := d.session(sessionID); err != nil {
		return err
	}

	var accepted []db.UploadedFile
	var rejected []error
	for _, f := range files {
		if err := scan.ValidateFileName(f.Name); err != nil {
			rejected = append(rejected, err)
			continue
		}
		accepted = append(accepted, db.UploadedFile{Name: f.Name, Size: f.Size})
	}

	if err := d.db.AddUploadedFiles(sessionID, accepted); err != nil {
		return fmt.Errorf("failed to store files: %w", err)
	}
	return errors.Join(rejected...)
}

// RemoveFile drops the file at index from the selection.
func (d *DeepScan) RemoveFile(sessionID string, index int) error {
	err := d.db.RemoveUploadedFile(sessionID, index)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w %d", ErrFileIndex, index)
	}
	return err
}

// Files returns the session's selection in order.
func (d *DeepScan) Files(sessionID string) ([]scan.File, error) {
	stored, err := d.db.ListUploadedFiles(sessionID)
	if err != nil {
		return nil, err
	}
	files := make([]scan.File, len(stored))
	for i, f := range stored {
		files[i] = scan.File{Name: f.Name, Size: f.Size}
	}
	return files, nil
}

// SetConfig replaces the session's scan configuration. Unknown flags are
// rejected and flags missing from cfg are stored as enabled.
func (d *DeepScan) SetConfig(sessionID string, cfg scan.Config) error {
	for flag := range cfg {
		if _, err := scan.ParseFlag(string(flag)); err != nil {
			return err
		}
	}
	if _, err := d.session(sessionID); err != nil {
		return err
	}

	stored := make(map[string]bool, len(scan.Flags))
	for flag, enabled := range cfg.Clone() {
		stored[string(flag)] = enabled
	}
	return d.db.UpdateSessionConfig(sessionID, stored)
}

// Config returns the session's scan configuration.
func (d *DeepScan) Config(sessionID string) (scan.Config, error) {
	s, err := d.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	cfg := make(scan.Config, len(s.Config))
	for name, enabled := range s.Config {
		if flag, err := scan.ParseFlag(name); err == nil {
			cfg[flag] = enabled
		}
	}
	return cfg.Clone(), nil
}

// StartScan starts a deep scan over the session's current files.
func (d *DeepScan) StartScan(sessionID string) (*db.ScanRun, error) {
	sess, err := d.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.startMu.Lock()
	defer sess.startMu.Unlock()

	snap := sess.sim.Snapshot()
	if snap.State == scan.StateRunning {
		return nil, scan.ErrAlreadyRunning
	}

	files, err := d.Files(sessionID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, scan.ErrNoFiles
	}
	cfg, err := d.Config(sessionID)
	if err != nil {
		return nil, err
	}

	runFiles := make([]db.RunFile, len(files))
	for i, f := range files {
		runFiles[i] = db.RunFile{Name: f.Name, Size: f.Size}
	}
	stored := make(map[string]bool, len(cfg))
	for flag, enabled := range cfg {
		stored[string(flag)] = enabled
	}

	run, err := d.db.CreateScanRun(sessionID, runFiles, stored)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan run: %w", err)
	}

	// Only StartScan starts the simulator and it holds startMu, so the run
	// about to start gets the next id.
	next := snap.RunID + 1
	sess.bind(next, run.ID)

	simRun, err := sess.sim.Start(files, cfg)
	if err != nil {
		sess.unbind(next)
		if delErr := d.db.DeleteScanRun(run.ID); delErr != nil {
			log.Printf("deepscan: failed to delete rejected run %d: %v", run.ID, delErr)
		}
		return nil, err
	}
	if simRun != next {
		// Cannot happen while StartScan is the only caller of Start.
		log.Printf("deepscan: session %s: expected run %d, simulator started %d", sessionID, next, simRun)
	}
	sess.setLastRun(run.ID)

	log.Printf("deepscan: session %s started run %d (%d files)", sessionID, run.ID, len(files))
	return run, nil
}

// CancelScan stops the session's running scan. It reports whether a scan
// was running.
func (d *DeepScan) CancelScan(sessionID string) bool {
	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return sess.sim.Cancel()
}

// StatusError describes why the last run failed
type StatusError struct {
	Kind    scan.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// Status is a snapshot of a session's workspace
type Status struct {
	State       scan.State   `json:"state"`
	Progress    int          `json:"progress"`
	RunID       int64        `json:"runId,omitempty"`
	Files       []scan.File  `json:"files"`
	Config      scan.Config  `json:"config"`
	ResultCount int          `json:"resultCount"`
	Error       *StatusError `json:"error,omitempty"`
}

// Running reports whether a scan is in progress.
func (s *Status) Running() bool {
	return s.State == scan.StateRunning
}

// Status returns the session's current workspace state.
func (d *DeepScan) Status(sessionID string) (*Status, error) {
	sess, err := d.session(sessionID)
	if err != nil {
		return nil, err
	}

	files, err := d.Files(sessionID)
	if err != nil {
		return nil, err
	}
	cfg, err := d.Config(sessionID)
	if err != nil {
		return nil, err
	}
	results, err := d.LatestResults(sessionID)
	if err != nil {
		return nil, err
	}

	snap := sess.sim.Snapshot()
	status := &Status{
		State:       snap.State,
		Progress:    snap.Progress,
		RunID:       sess.getLastRun(),
		Files:       files,
		Config:      cfg,
		ResultCount: len(results),
	}
	if snap.State == scan.StateFailed && snap.Err != nil {
		status.Error = &StatusError{Kind: snap.Err.Kind, Message: snap.Err.Error()}
	}
	return status, nil
}

// LatestResults returns the findings of the session's latest completed run,
// or nil when no run completed yet.
func (d *DeepScan) LatestResults(sessionID string) ([]scan.Finding, error) {
	_, findings, err := d.latestCompleted(sessionID)
	if errors.Is(err, ErrNoResults) {
		return nil, nil
	}
	return findings, err
}

func (d *DeepScan) latestCompleted(sessionID string) (*db.ScanRun, []scan.Finding, error) {
	run, err := d.db.GetLatestCompletedRun(sessionID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, ErrNoResults
	}
	if err != nil {
		return nil, nil, err
	}

	stored, err := d.db.ListScanResults(run.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(stored) == 0 {
		return nil, nil, ErrNoResults
	}

	findings := make([]scan.Finding, len(stored))
	for i, r := range stored {
		findings[i] = scan.Finding{
			ID:          r.FindingID,
			Category:    r.Category,
			Severity:    scan.Severity(r.Severity),
			Title:       r.Title,
			Description: r.Description,
			Location:    r.Location,
			Suggestion:  r.Suggestion,
			Confidence:  r.Confidence,
		}
	}
	return run, findings, nil
}

// ExportReport renders the latest completed run in format. It returns
// ErrNoResults until a run has completed.
func (d *DeepScan) ExportReport(sessionID string, format report.Format, w io.Writer) error {
	run, findings, err := d.latestCompleted(sessionID)
	if err != nil {
		return err
	}

	files := make([]scan.File, len(run.Files))
	for i, f := range run.Files {
		files[i] = scan.File{Name: f.Name, Size: f.Size}
	}
	generatedAt := run.StartedAt
	if run.CompletedAt != nil {
		generatedAt = *run.CompletedAt
	}

	return report.Write(w, format, report.Build(files, findings, generatedAt))
}

// handleEvent records a simulator event on the stored run and fans it out.
// It runs under the simulator lock.
func (d *DeepScan) handleEvent(sess *session, ev scan.Event) {
	runID, ok := sess.lookup(ev.RunID)
	if !ok {
		return
	}

	progress := &types.ScanProgress{RunID: runID, Progress: ev.Progress}

	switch ev.State {
	case scan.StateRunning:
		progress.Status = string(db.ScanRunStatusRunning)
		if err := d.db.UpdateScanRunProgress(runID, ev.Progress); err != nil {
			log.Printf("deepscan: run %d: failed to record progress: %v", runID, err)
		}

	case scan.StateComplete:
		progress.Status = string(db.ScanRunStatusCompleted)
		progress.ResultCount = len(ev.Findings)
		if err := d.db.CreateScanResults(runID, toResults(ev.Findings, false)); err != nil {
			log.Printf("deepscan: run %d: failed to store results: %v", runID, err)
		}
		if err := d.db.CompleteScanRun(runID, db.ScanRunStatusCompleted, ev.Progress, nil, nil); err != nil {
			log.Printf("deepscan: run %d: failed to complete: %v", runID, err)
		}
		log.Printf("deepscan: run %d completed with %d findings", runID, len(ev.Findings))

	case scan.StateFailed:
		progress.Status = string(db.ScanRunStatusFailed)
		kind := string(scan.KindInternal)
		msg := "scan failed"
		if ev.Err != nil {
			kind = string(ev.Err.Kind)
			msg = ev.Err.Error()
			if err := d.db.CreateScanResults(runID, toResults(ev.Err.Partial, true)); err != nil {
				log.Printf("deepscan: run %d: failed to store partial results: %v", runID, err)
			}
		}
		progress.ErrorKind = kind
		progress.Error = msg
		if err := d.db.CompleteScanRun(runID, db.ScanRunStatusFailed, ev.Progress, &kind, &msg); err != nil {
			log.Printf("deepscan: run %d: failed to record failure: %v", runID, err)
		}
		log.Printf("deepscan: run %d failed: %s", runID, msg)

	case scan.StateIdle:
		progress.Status = string(db.ScanRunStatusCancelled)
		msg := "Scan cancelled"
		if err := d.db.CompleteScanRun(runID, db.ScanRunStatusCancelled, ev.Progress, nil, &msg); err != nil {
			log.Printf("deepscan: run %d: failed to record cancel: %v", runID, err)
		}
	}

	d.broadcast(sess.id, progress)

	if progress.Finished() {
		sess.unbind(ev.RunID)
		d.closeSubscribers(sess.id)
	}
}

func toResults(findings []scan.Finding, partial bool) []db.ScanResult {
	results := make([]db.ScanResult, len(findings))
	for i, f := range findings {
		results[i] = db.ScanResult{
			FindingID:   f.ID,
			Category:    f.Category,
			Severity:    string(f.Severity),
			Title:       f.Title,
			Description: f.Description,
			Location:    f.Location,
			Suggestion:  f.Suggestion,
			Confidence:  f.Confidence,
			Partial:     partial,
		}
	}
	return results
}

// Subscribe subscribes to progress updates of a session's scans
func (d *DeepScan) Subscribe(sessionID string) chan *types.ScanProgress {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanProgress, 10),
	}
	d.subscribers[sessionID] = append(d.subscribers[sessionID], sub)
	return sub.ch
}

// Unsubscribe removes a subscriber
func (d *DeepScan) Unsubscribe(sessionID string, ch chan *types.ScanProgress) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	subs := d.subscribers[sessionID]
	for i, sub := range subs {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			d.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	// Clean up if no more subscribers
	if len(d.subscribers[sessionID]) == 0 {
		delete(d.subscribers, sessionID)
	}
}

// broadcast sends progress to all subscribers
func (d *DeepScan) broadcast(sessionID string, progress *types.ScanProgress) {
	d.subMu.RLock()
	// Make a copy of the slice to avoid holding lock during send
	subs := make([]*subscriber, len(d.subscribers[sessionID]))
	copy(subs, d.subscribers[sessionID])
	d.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(progress)
	}
}

// closeSubscribers closes all subscriber channels of a session
func (d *DeepScan) closeSubscribers(sessionID string) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for _, sub := range d.subscribers[sessionID] {
		sub.close()
	}
	delete(d.subscribers, sessionID)
}

// CloseSession cancels the session's scan and discards its workspace,
// results included.
func (d *DeepScan) CloseSession(sessionID string) error {
	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	delete(d.sessions, sessionID)
	d.mu.Unlock()

	if ok {
		sess.sim.Close()
	}
	d.closeSubscribers(sessionID)
	return d.db.DeleteSession(sessionID)
}

// SweepIdleSessions closes sessions not seen within ttl and returns how many
// were closed.
func (d *DeepScan) SweepIdleSessions(ttl time.Duration) (int, error) {
	ids, err := d.db.ListIdleSessions(d.opts.Clock.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		if err := d.CloseSession(id); err != nil {
			log.Printf("deepscan: failed to close idle session %s: %v", id, err)
			continue
		}
		closed++
	}
	return closed, nil
}

// Shutdown cancels every running scan.
func (d *DeepScan) Shutdown() {
	d.mu.Lock()
	sessions := make([]*session, 0, len(d.sessions))
	for _, sess := range d.sessions {
		sessions = append(sessions, sess)
	}
	d.mu.Unlock()

	for _, sess := range sessions {
		sess.sim.Close()
	}
}
