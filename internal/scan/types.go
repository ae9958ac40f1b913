// Package scan implements the deep-scan progress simulator: a small state
// machine that walks a fixed list of progress checkpoints over time and, once
// the last one fires, asks an Analyzer for the scan findings.
package scan

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Severity of a finding
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities from most (0) to least (3) severe. Unknown
// severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// HighPriority reports whether findings of this severity need attention first.
func (s Severity) HighPriority() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Finding is a single reported issue. Findings are immutable once produced.
type Finding struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Confidence  int      `json:"confidence"` // 0-100
}

// Flag is one analysis area of the scan configuration.
type Flag string

const (
	FlagRiskAnalysis       Flag = "riskAnalysis"
	FlagComplianceCheck    Flag = "complianceCheck"
	FlagFinancialTerms     Flag = "financialTerms"
	FlagLegalClauses       Flag = "legalClauses"
	FlagDataPrivacy        Flag = "dataPrivacy"
	FlagIPRights           Flag = "ipRights"
	FlagTerminationClauses Flag = "terminationClauses"
	FlagLiabilityTerms     Flag = "liabilityTerms"
)

// Flags lists every configuration flag in display order.
var Flags = []Flag{
	FlagRiskAnalysis,
	FlagComplianceCheck,
	FlagFinancialTerms,
	FlagLegalClauses,
	FlagDataPrivacy,
	FlagIPRights,
	FlagTerminationClauses,
	FlagLiabilityTerms,
}

// ParseFlag returns the flag named s.
func ParseFlag(s string) (Flag, error) {
	for _, f := range Flags {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlag, s)
}

// Label turns the camelCase key into a title: "ipRights" -> "Ip Rights".
func (f Flag) Label() string {
	var b strings.Builder
	for i, r := range string(f) {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Config maps each flag to whether its analysis area is enabled.
type Config map[Flag]bool

// DefaultConfig returns a configuration with every flag enabled.
func DefaultConfig() Config {
	cfg := make(Config, len(Flags))
	for _, f := range Flags {
		cfg[f] = true
	}
	return cfg
}

// Enabled reports whether f is on. Flags missing from the map count as on.
func (c Config) Enabled(f Flag) bool {
	v, ok := c[f]
	return !ok || v
}

// Set toggles a flag, rejecting names outside the fixed flag set.
func (c Config) Set(f Flag, enabled bool) error {
	if _, err := ParseFlag(string(f)); err != nil {
		return err
	}
	c[f] = enabled
	return nil
}

// Clone returns an independent copy with every known flag present.
func (c Config) Clone() Config {
	out := make(Config, len(Flags))
	for _, f := range Flags {
		out[f] = c.Enabled(f)
	}
	return out
}

// AllowedExtensions is the accept filter applied at the upload boundary.
var AllowedExtensions = []string{".pdf", ".docx", ".txt"}

// File is an uploaded contract, referenced by name only.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ValidateFileName checks the extension allow-list (case-insensitive).
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty file name", ErrUnsupportedFile)
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedFile, name, strings.Join(AllowedExtensions, ", "))
}
