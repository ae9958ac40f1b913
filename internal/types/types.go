package types

// ScanProgress represents deep-scan progress for SSE updates
type ScanProgress struct {
	RunID       int64  `json:"runId"`
	Status      string `json:"status"` // running, completed, failed, cancelled
	Progress    int    `json:"progress"`
	ResultCount int    `json:"resultCount,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Finished reports whether this is the last update of a run
func (p *ScanProgress) Finished() bool {
	return p.Status != "running"
}
