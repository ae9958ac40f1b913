package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Session queries

// TouchSession creates the session if needed and records activity on it at
// the given time
func (db *DB) TouchSession(id string, at time.Time) (*Session, error) {
	now := at.UTC()
	_, err := db.Exec(`
		INSERT INTO sessions (id, created_at, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		id, now, now,
	)
	if err != nil {
		return nil, err
	}
	return db.GetSession(id)
}

// GetSession retrieves a session by ID
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var configJSON string

	err := db.QueryRow(`
		SELECT id, config, created_at, last_seen_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &configJSON, &s.CreatedAt, &s.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	s.Config = decodeConfig(configJSON)
	return &s, nil
}

// UpdateSessionConfig stores the scan configuration flags of a session
func (db *DB) UpdateSessionConfig(id string, config map[string]bool) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}

	result, err := db.Exec(`UPDATE sessions SET config = ? WHERE id = ?`, string(configJSON), id)
	if err != nil {
		return err
	}
	return requireRow(result, "session", id)
}

// DeleteSession removes a session together with its files, runs and results
func (db *DB) DeleteSession(id string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// ListIdleSessions returns the IDs of sessions not seen since before
func (db *DB) ListIdleSessions(before time.Time) ([]string, error) {
	rows, err := db.Query(`
		SELECT id FROM sessions WHERE last_seen_at < ? ORDER BY last_seen_at`,
		before.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountSessions returns the number of live sessions
func (db *DB) CountSessions() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// UploadedFile queries

// AddUploadedFiles appends files to the session's list
func (db *DB) AddUploadedFiles(sessionID string, files []UploadedFile) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO uploaded_files (session_id, name, size, created_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, f := range files {
		if _, err := stmt.Exec(sessionID, f.Name, f.Size, now); err != nil {
			return fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
	}

	return tx.Commit()
}

// ListUploadedFiles returns the session's files in selection order
func (db *DB) ListUploadedFiles(sessionID string) ([]*UploadedFile, error) {
	rows, err := db.Query(`
		SELECT id, session_id, name, size, created_at
		FROM uploaded_files WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*UploadedFile
	for rows.Next() {
		var f UploadedFile
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Name, &f.Size, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// RemoveUploadedFile removes the file at index (0-based, selection order)
func (db *DB) RemoveUploadedFile(sessionID string, index int) error {
	if index < 0 {
		return fmt.Errorf("file %d: %w", index, ErrNotFound)
	}

	result, err := db.Exec(`
		DELETE FROM uploaded_files WHERE id = (
			SELECT id FROM uploaded_files WHERE session_id = ?
			ORDER BY id LIMIT 1 OFFSET ?
		)`, sessionID, index)
	if err != nil {
		return err
	}
	return requireRow(result, "file", index)
}

// ScanRun queries

const scanRunColumns = `id, session_id, status, progress, file_count, files, config,
	started_at, completed_at, error_kind, error_message`

// CreateScanRun creates a new running scan run
func (db *DB) CreateScanRun(sessionID string, files []RunFile, config map[string]bool) (*ScanRun, error) {
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, err
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	result, err := db.Exec(`
		INSERT INTO scan_runs (session_id, status, file_count, files, config, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, ScanRunStatusRunning, len(files), string(filesJSON), string(configJSON), time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScanRun(id)
}

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id int64) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id)
	run, err := scanScanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan run %d: %w", id, ErrNotFound)
	}
	return run, err
}

// ListScanRuns returns a session's runs, newest first
func (db *DB) ListScanRuns(sessionID string, limit int) ([]*ScanRun, error) {
	rows, err := db.Query(`SELECT `+scanRunColumns+`
		FROM scan_runs WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLatestCompletedRun returns the session's most recent completed run
func (db *DB) GetLatestCompletedRun(sessionID string) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+`
		FROM scan_runs WHERE session_id = ? AND status = ?
		ORDER BY id DESC LIMIT 1`, sessionID, ScanRunStatusCompleted)
	run, err := scanScanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("completed run for session %s: %w", sessionID, ErrNotFound)
	}
	return run, err
}

// UpdateScanRunProgress records the latest applied checkpoint
func (db *DB) UpdateScanRunProgress(id int64, progress int) error {
	_, err := db.Exec(`UPDATE scan_runs SET progress = ? WHERE id = ? AND status = ?`,
		progress, id, ScanRunStatusRunning)
	return err
}

// CompleteScanRun moves a running scan run to a terminal status
func (db *DB) CompleteScanRun(id int64, status ScanRunStatus, progress int, errorKind, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET status = ?, progress = ?, completed_at = ?, error_kind = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		status, progress, time.Now().UTC(), errorKind, errorMsg, id, ScanRunStatusRunning,
	)
	return err
}

// DeleteScanRun removes a scan run and its results
func (db *DB) DeleteScanRun(id int64) error {
	_, err := db.Exec(`DELETE FROM scan_runs WHERE id = ?`, id)
	return err
}

// MarkInterruptedRuns cancels runs left running by a previous process
func (db *DB) MarkInterruptedRuns() (int64, error) {
	msg := "interrupted by restart"
	result, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE status = ?`,
		ScanRunStatusCancelled, time.Now().UTC(), msg, ScanRunStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRun(row rowScanner) (*ScanRun, error) {
	var r ScanRun
	var filesJSON, configJSON string
	var completedAt sql.NullTime
	var errorKind, errorMsg sql.NullString

	err := row.Scan(&r.ID, &r.SessionID, &r.Status, &r.Progress, &r.FileCount,
		&filesJSON, &configJSON, &r.StartedAt, &completedAt, &errorKind, &errorMsg)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(filesJSON), &r.Files)
	r.Config = decodeConfig(configJSON)

	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorKind.Valid {
		r.ErrorKind = &errorKind.String
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// ScanResult queries

// CreateScanResults stores the findings of a run in order
func (db *DB) CreateScanResults(runID int64, results []ScanResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scan_results (scan_run_id, finding_id, category, severity, title,
			description, location, suggestion, confidence, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(runID, r.FindingID, r.Category, r.Severity, r.Title,
			r.Description, r.Location, r.Suggestion, r.Confidence, r.Partial); err != nil {
			return fmt.Errorf("failed to store finding %s: %w", r.FindingID, err)
		}
	}

	return tx.Commit()
}

// ListScanResults returns a run's findings in the order they were produced
func (db *DB) ListScanResults(runID int64) ([]*ScanResult, error) {
	rows, err := db.Query(`
		SELECT id, scan_run_id, finding_id, category, severity, title,
			description, location, suggestion, confidence, partial
		FROM scan_results WHERE scan_run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ScanResult
	for rows.Next() {
		var r ScanResult
		if err := rows.Scan(&r.ID, &r.ScanRunID, &r.FindingID, &r.Category, &r.Severity, &r.Title,
			&r.Description, &r.Location, &r.Suggestion, &r.Confidence, &r.Partial); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func decodeConfig(s string) map[string]bool {
	config := make(map[string]bool)
	json.Unmarshal([]byte(s), &config)
	return config
}

func requireRow(result sql.Result, what string, key any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, key, ErrNotFound)
	}
	return nil
}
