package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/lyallcooper/legalreview/internal/scan"
)

// CSVWriter writes one row per finding.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a CSV output writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) WriteHeader(_ *Report) error {
	return c.w.Write([]string{"id", "severity", "category", "title", "description", "location", "suggestion", "confidence"})
}

func (c *CSVWriter) WriteFinding(f *scan.Finding) error {
	return c.w.Write([]string{
		f.ID,
		string(f.Severity),
		f.Category,
		f.Title,
		f.Description,
		f.Location,
		f.Suggestion,
		strconv.Itoa(f.Confidence),
	})
}

func (c *CSVWriter) WriteFooter(_ Summary) error {
	c.w.Flush()
	return c.w.Error()
}
