package report

import (
	"encoding/json"
	"io"

	"github.com/lyallcooper/legalreview/internal/scan"
)

// JSONWriter writes the whole report as one indented JSON document.
type JSONWriter struct {
	w      io.Writer
	report Report
}

func (j *JSONWriter) WriteHeader(r *Report) error {
	j.report = Report{GeneratedAt: r.GeneratedAt, Files: r.Files}
	if j.report.Files == nil {
		j.report.Files = []scan.File{}
	}
	j.report.Findings = []scan.Finding{}
	return nil
}

func (j *JSONWriter) WriteFinding(f *scan.Finding) error {
	j.report.Findings = append(j.report.Findings, *f)
	return nil
}

func (j *JSONWriter) WriteFooter(s Summary) error {
	j.report.Summary = s
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(j.report)
}
