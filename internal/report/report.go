// Package report renders the findings of a completed deep scan as JSON, CSV
// or plain text.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/lyallcooper/legalreview/internal/review"
	"github.com/lyallcooper/legalreview/internal/scan"
)

// ErrUnknownFormat is returned for formats other than json, csv and text.
var ErrUnknownFormat = errors.New("unknown report format")

// Format of a rendered report
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// ParseFormat accepts json, csv and text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type used when serving the report.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// Extension is the file extension of a download, dot included.
func (f Format) Extension() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

// Summary aggregates the findings of a report
type Summary struct {
	Total             int                   `json:"total"`
	HighPriority      int                   `json:"highPriority"`
	BySeverity        map[scan.Severity]int `json:"bySeverity"`
	AverageConfidence float64               `json:"averageConfidence"`
}

// Report is a completed scan ready to render
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Files       []scan.File    `json:"files"`
	Findings    []scan.Finding `json:"findings"`
	Summary     Summary        `json:"summary"`
}

// Build assembles a report. Findings are ordered by severity, then by
// confidence (highest first); the input slices are not modified.
func Build(files []scan.File, findings []scan.Finding, generatedAt time.Time) *Report {
	sorted := append([]scan.Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Severity.Rank(), sorted[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	return &Report{
		GeneratedAt: generatedAt.UTC(),
		Files:       append([]scan.File(nil), files...),
		Findings:    sorted,
		Summary:     Summarize(findings),
	}
}

// Summarize counts findings per severity.
func Summarize(findings []scan.Finding) Summary {
	s := Summary{
		Total:             len(findings),
		HighPriority:      review.HighPriorityCount(findings),
		BySeverity:        make(map[scan.Severity]int),
		AverageConfidence: review.AverageConfidence(findings),
	}
	for _, f := range findings {
		s.BySeverity[f.Severity]++
	}
	return s
}

// Writer is implemented by each output format.
type Writer interface {
	WriteHeader(r *Report) error
	WriteFinding(f *scan.Finding) error
	WriteFooter(s Summary) error
}

// NewWriter returns the writer for format, writing to w.
func NewWriter(format Format, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return &JSONWriter{w: w}, nil
	case FormatCSV:
		return NewCSVWriter(w), nil
	case FormatText:
		return &TextWriter{w: w}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Write renders r in format.
func Write(w io.Writer, format Format, r *Report) error {
	rw, err := NewWriter(format, w)
	if err != nil {
		return err
	}
	if err := rw.WriteHeader(r); err != nil {
		return err
	}
	for i := range r.Findings {
		if err := rw.WriteFinding(&r.Findings[i]); err != nil {
			return err
		}
	}
	return rw.WriteFooter(r.Summary)
}
