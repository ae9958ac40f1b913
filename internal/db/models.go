package db

import (
	"time"
)

// Session is one browser's deep-scan workspace
type Session struct {
	ID         string
	Config     map[string]bool // flag name -> enabled
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// UploadedFile is a file selected for scanning. Only the name and size are kept.
type UploadedFile struct {
	ID        int64
	SessionID string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// ScanRunStatus represents the status of a scan run
type ScanRunStatus string

const (
	ScanRunStatusRunning   ScanRunStatus = "running"
	ScanRunStatusCompleted ScanRunStatus = "completed"
	ScanRunStatusFailed    ScanRunStatus = "failed"
	ScanRunStatusCancelled ScanRunStatus = "cancelled"
)

// RunFile is the name and size of a file as it was when the run started
type RunFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ScanRun represents a single execution of a deep scan
type ScanRun struct {
	ID           int64
	SessionID    string
	Status       ScanRunStatus
	Progress     int
	FileCount    int
	Files        []RunFile
	Config       map[string]bool
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorKind    *string
	ErrorMessage *string
}

// Finished reports whether the run reached a terminal status
func (r *ScanRun) Finished() bool {
	return r.Status != ScanRunStatusRunning
}

// ScanResult is one stored finding of a run
type ScanResult struct {
	ID          int64
	ScanRunID   int64
	FindingID   string
	Category    string
	Severity    string
	Title       string
	Description string
	Location    string
	Suggestion  string
	Confidence  int
	Partial     bool // kept from a failed run
}
