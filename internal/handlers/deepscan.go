package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/lyallcooper/legalreview/internal/report"
	"github.com/lyallcooper/legalreview/internal/review"
	"github.com/lyallcooper/legalreview/internal/scan"
	"github.com/lyallcooper/legalreview/internal/services"
)

const deepScanPath = "/deep-scan"

// DeepScanPage handles GET /deep-scan
func (h *Handler) DeepScanPage(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	status, err := h.deepScan.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	findings, err := h.deepScan.LatestResults(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tab := review.ParseResultTab(r.URL.Query().Get("tab"))
	summary := report.Summarize(findings)

	data := DeepScanData{
		Page:            h.page(w, r, "Deep Scan"),
		Status:          status,
		Panel:           review.ResultsPanel(status.Running(), len(findings), len(status.Files)),
		Files:           toFileViews(status.Files),
		Flags:           toFlagViews(status.Config),
		Tabs:            toTabViews(findings, tab),
		Tab:             tab,
		Findings:        review.FilterFindings(findings, tab),
		Summary:         summary,
		Severities:      toSeverityCounts(summary),
		Recommendations: review.KeyRecommendations,
		Accept:          strings.Join(scan.AllowedExtensions, ","),
		MaxUpload:       h.cfg.MaxUploadSize,
		Interval:        h.cfg.CheckpointInterval.Milliseconds(),
	}

	h.render(w, "deep_scan.html", data)
}

// DeepScanStatus handles GET /deep-scan/status
func (h *Handler) DeepScanStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deepScan.Status(sessionID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// UploadFiles handles POST /deep-scan/files. Parts are read to learn their
// size and then discarded; only names and sizes are kept.
func (h *Handler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "Expected a multipart upload", http.StatusBadRequest)
		return
	}

	var files []scan.File
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.uploadError(w, r, err)
			return
		}

		name := part.FileName()
		if part.FormName() != "files" || name == "" {
			part.Close()
			continue
		}

		n, err := io.Copy(io.Discard, part)
		part.Close()
		if err != nil {
			h.uploadError(w, r, err)
			return
		}
		files = append(files, scan.File{Name: filepath.Base(name), Size: n})
	}

	if len(files) == 0 {
		redirectWithError(w, r, deepScanPath, "No files selected")
		return
	}

	if err := h.deepScan.AddFiles(sessionID(r), files); err != nil {
		if errors.Is(err, scan.ErrUnsupportedFile) {
			redirectWithError(w, r, deepScanPath, rejectedMessage(err))
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, deepScanPath, http.StatusSeeOther)
}

func (h *Handler) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		redirectWithError(w, r, deepScanPath, "Upload exceeds "+humanize.Bytes(uint64(maxErr.Limit)))
		return
	}
	http.Error(w, "Upload failed: "+err.Error(), http.StatusBadRequest)
}

// rejectedMessage flattens the joined rejection errors into one line
func rejectedMessage(err error) string {
	return "Skipped " + strings.ReplaceAll(err.Error(), "\n", "; ")
}

// RemoveFile handles POST /deep-scan/files/{index}/remove
func (h *Handler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		http.Error(w, "Invalid file index", http.StatusBadRequest)
		return
	}

	if err := h.deepScan.RemoveFile(sessionID(r), index); err != nil {
		if errors.Is(err, services.ErrFileIndex) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, deepScanPath, http.StatusSeeOther)
}

// UpdateConfig handles POST /deep-scan/config. Every flag is a checkbox, so
// a flag missing from the form is disabled.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := make(scan.Config, len(scan.Flags))
	for _, f := range scan.Flags {
		cfg[f] = r.PostForm.Get(string(f)) != ""
	}

	if err := h.deepScan.SetConfig(sessionID(r), cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	redirectWithSuccess(w, r, deepScanPath, "Configuration saved")
}

// StartScan handles POST /deep-scan/start
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	_, err := h.deepScan.StartScan(sessionID(r))
	switch {
	case errors.Is(err, scan.ErrNoFiles):
		redirectWithError(w, r, deepScanPath, "Add at least one contract before scanning")
		return
	case errors.Is(err, scan.ErrAlreadyRunning):
		redirectWithError(w, r, deepScanPath, "A scan is already in progress")
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, deepScanPath, http.StatusSeeOther)
}

// CancelScan handles POST /deep-scan/cancel
func (h *Handler) CancelScan(w http.ResponseWriter, r *http.Request) {
	if !h.deepScan.CancelScan(sessionID(r)) {
		redirectWithError(w, r, deepScanPath, "No scan is running")
		return
	}
	http.Redirect(w, r, deepScanPath, http.StatusSeeOther)
}

// ExportResults handles GET /deep-scan/export?format=json|csv|text
func (h *Handler) ExportResults(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(report.FormatJSON)
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Render fully before writing so failures still get a proper status.
	var buf bytes.Buffer
	if err := h.deepScan.ExportReport(sessionID(r), format, &buf); err != nil {
		if errors.Is(err, services.ErrNoResults) {
			http.Error(w, "No completed scan to export", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="deep-scan-report%s"`, format.Extension()))
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("handlers: export: %v", err)
	}
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path, msg string) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

func redirectWithSuccess(w http.ResponseWriter, r *http.Request, path, msg string) {
	http.Redirect(w, r, path+"?success="+url.QueryEscape(msg), http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: encode response: %v", err)
	}
}
