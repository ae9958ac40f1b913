package handlers

import (
	"github.com/lyallcooper/legalreview/internal/report"
	"github.com/lyallcooper/legalreview/internal/review"
	"github.com/lyallcooper/legalreview/internal/scan"
	"github.com/lyallcooper/legalreview/internal/services"
)

// View model structs for templates.
// These are separate from service types to allow formatting and presentation logic.

// Page holds the fields every page template reads
type Page struct {
	Title     string
	Nav       []review.NavItem
	CSRFToken string
	Version   string
	Error     string
	Success   string
}

// ReviewData holds data for the review workspace template
type ReviewData struct {
	Page
	Outline  []review.Section
	Counts   review.OutlineCounts
	Query    string
	Document review.Document
	Context  review.ContextPanel
	Footer   review.Footer
}

// DeepScanData holds data for the deep-scan template
type DeepScanData struct {
	Page
	Status          *services.Status
	Panel           review.PanelState
	Files           []FileView
	Flags           []FlagView
	Tabs            []TabView
	Tab             review.ResultTab
	Findings        []scan.Finding
	Summary         report.Summary
	Severities      []SeverityCount
	Recommendations []string
	Accept          string
	MaxUpload       int64
	Interval        int64 // milliseconds between checkpoints
}

// SeverityCount is a line of the summary tab
type SeverityCount struct {
	Severity scan.Severity
	Count    int
}

// FileView is a row of the selected files list
type FileView struct {
	Index int
	Name  string
	Size  int64
}

// FlagView is a checkbox of the configuration card
type FlagView struct {
	Name    string
	Label   string
	Enabled bool
}

// TabView is a tab of the results card
type TabView struct {
	Tab    review.ResultTab
	Label  string
	Count  int
	Active bool
}

func toFileViews(files []scan.File) []FileView {
	views := make([]FileView, len(files))
	for i, f := range files {
		views[i] = FileView{Index: i, Name: f.Name, Size: f.Size}
	}
	return views
}

func toFlagViews(cfg scan.Config) []FlagView {
	views := make([]FlagView, len(scan.Flags))
	for i, f := range scan.Flags {
		views[i] = FlagView{Name: string(f), Label: f.Label(), Enabled: cfg.Enabled(f)}
	}
	return views
}

func toTabViews(findings []scan.Finding, active review.ResultTab) []TabView {
	views := make([]TabView, len(review.ResultTabs))
	for i, t := range review.ResultTabs {
		views[i] = TabView{
			Tab:    t,
			Label:  t.Label(),
			Count:  len(review.FilterFindings(findings, t)),
			Active: t == active,
		}
	}
	return views
}

func toSeverityCounts(s report.Summary) []SeverityCount {
	severities := []scan.Severity{scan.SeverityCritical, scan.SeverityHigh, scan.SeverityMedium, scan.SeverityLow}
	counts := make([]SeverityCount, 0, len(severities))
	for _, sev := range severities {
		counts = append(counts, SeverityCount{Severity: sev, Count: s.BySeverity[sev]})
	}
	return counts
}
