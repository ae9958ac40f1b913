package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/legalreview/internal/scan"
)

// TextWriter writes a human-readable report for the terminal.
type TextWriter struct {
	w io.Writer
}

func (t *TextWriter) WriteHeader(r *Report) error {
	if _, err := fmt.Fprintf(t.w, "Deep scan report (%s)\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")); err != nil {
		return err
	}
	for _, f := range r.Files {
		if _, err := fmt.Fprintf(t.w, "  %s (%s)\n", f.Name, humanize.Bytes(uint64(f.Size))); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(t.w)
	return err
}

func (t *TextWriter) WriteFinding(f *scan.Finding) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%-8s] %s (%s, %d%% confidence)\n", strings.ToUpper(string(f.Severity)), f.Title, f.Category, f.Confidence)
	fmt.Fprintf(&b, "           %s\n", f.Description)
	fmt.Fprintf(&b, "           Location: %s\n", f.Location)
	if f.Suggestion != "" {
		fmt.Fprintf(&b, "           Suggestion: %s\n", f.Suggestion)
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *TextWriter) WriteFooter(s Summary) error {
	_, err := fmt.Fprintf(t.w, "\n%d issues found | %d high priority | %.0f%% average confidence\n",
		s.Total, s.HighPriority, s.AverageConfidence)
	return err
}
