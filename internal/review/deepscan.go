package review

import (
	"github.com/lyallcooper/legalreview/internal/scan"
)

// ResultTab is a tab of the deep-scan results card
type ResultTab string

const (
	TabAll      ResultTab = "all"
	TabCritical ResultTab = "critical"
	TabHigh     ResultTab = "high"
	TabSummary  ResultTab = "summary"
)

// ResultTabs lists the tabs in display order
var ResultTabs = []ResultTab{TabAll, TabCritical, TabHigh, TabSummary}

// ParseResultTab maps an unknown or empty tab to TabAll.
func ParseResultTab(s string) ResultTab {
	for _, t := range ResultTabs {
		if string(t) == s {
			return t
		}
	}
	return TabAll
}

// Label is the tab caption.
func (t ResultTab) Label() string {
	switch t {
	case TabCritical:
		return "Critical"
	case TabHigh:
		return "High Risk"
	case TabSummary:
		return "Summary"
	}
	return "All Issues"
}

// FilterFindings returns the findings listed under tab. The summary tab
// lists none.
func FilterFindings(findings []scan.Finding, tab ResultTab) []scan.Finding {
	switch tab {
	case TabAll:
		return findings
	case TabSummary:
		return nil
	}

	var out []scan.Finding
	for _, f := range findings {
		if string(f.Severity) == string(tab) {
			out = append(out, f)
		}
	}
	return out
}

// HighPriorityCount counts critical and high findings.
func HighPriorityCount(findings []scan.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity.HighPriority() {
			n++
		}
	}
	return n
}

// AverageConfidence is the mean confidence of findings, 0 when empty.
func AverageConfidence(findings []scan.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}
	total := 0
	for _, f := range findings {
		total += f.Confidence
	}
	return float64(total) / float64(len(findings))
}

// KeyRecommendations is the advice block of the summary tab.
var KeyRecommendations = []string{
	"Address unlimited liability exposure immediately",
	"Add GDPR compliance clauses for EU operations",
	"Negotiate more favorable payment terms",
	"Limit indemnification scope to reduce risk",
}

// PanelState selects what the results area of the deep-scan page shows
type PanelState string

const (
	PanelScanning PanelState = "scanning"
	PanelResults  PanelState = "results"
	PanelReady    PanelState = "ready"
	PanelEmpty    PanelState = "empty"
)

// ResultsPanel decides the results area: the progress card while running,
// results once there are any, otherwise a prompt depending on whether files
// have been chosen.
func ResultsPanel(running bool, resultCount, fileCount int) PanelState {
	switch {
	case running:
		return PanelScanning
	case resultCount > 0:
		return PanelResults
	case fileCount > 0:
		return PanelReady
	}
	return PanelEmpty
}
