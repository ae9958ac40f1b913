package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lyallcooper/legalreview/internal/scan"
	"github.com/lyallcooper/legalreview/internal/types"
)

// DeepScanSSE streams the session's scan progress. The stream ends after
// the terminal event of the current run, or right after the initial state
// when no scan is running.
func (h *Handler) DeepScanSSE(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the state so no event is missed
	updates := h.deepScan.Subscribe(id)
	defer h.deepScan.Unsubscribe(id, updates)

	status, err := h.deepScan.Status(id)
	if err != nil {
		h.sendEvent(w, flusher, "error", fmt.Sprintf(`{"error":%q}`, err.Error()))
		return
	}

	initial := &types.ScanProgress{
		RunID:       status.RunID,
		Status:      progressStatus(status.State),
		Progress:    status.Progress,
		ResultCount: status.ResultCount,
	}
	if status.Error != nil {
		initial.ErrorKind = string(status.Error.Kind)
		initial.Error = status.Error.Message
	}
	h.sendProgress(w, flusher, initial)
	if !status.Running() {
		h.sendEvent(w, flusher, "complete", fmt.Sprintf(`{"status":%q}`, initial.Status))
		return
	}

	// Listen for updates
	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				// Channel closed, send complete event
				h.sendEvent(w, flusher, "complete", `{"status":"closed"}`)
				return
			}
			h.sendProgress(w, flusher, update)
			if update.Finished() {
				h.sendEvent(w, flusher, "complete", fmt.Sprintf(`{"status":%q}`, update.Status))
				return
			}
		}
	}
}

// progressStatus names a simulator state the way run updates do
func progressStatus(state scan.State) string {
	if state == scan.StateComplete {
		return "completed"
	}
	return string(state)
}

func (h *Handler) sendProgress(w http.ResponseWriter, flusher http.Flusher, progress *types.ScanProgress) {
	jsonData, _ := json.Marshal(progress)
	h.sendEvent(w, flusher, "progress", string(jsonData))
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
