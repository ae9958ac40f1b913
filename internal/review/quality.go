package review

import (
	"math"
	"strconv"
)

// MetricStatus colors a quality metric
type MetricStatus string

const (
	MetricExcellent MetricStatus = "excellent"
	MetricWarning   MetricStatus = "warning"
	MetricInfo      MetricStatus = "info"
)

// UnitPerThousandWords is the unit of density metrics such as ambiguity
const UnitPerThousandWords = "/1k words"

// Metric is a quality measurement with an optional target
type Metric struct {
	Label         string
	Value         float64
	Target        float64 // 0 = no target
	Status        MetricStatus
	Unit          string
	LowerIsBetter bool
}

// HasTarget reports whether the metric is measured against a target.
func (m Metric) HasTarget() bool {
	return m.Target > 0
}

// DisplayUnit is the unit shown after the value; targeted metrics without an
// explicit unit are percentages.
func (m Metric) DisplayUnit() string {
	if m.Unit != "" {
		return m.Unit
	}
	if m.HasTarget() {
		return "%"
	}
	return ""
}

// FormatValue renders Value without trailing zeros.
func (m Metric) FormatValue() string {
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// FormatTarget renders Target without trailing zeros.
func (m Metric) FormatTarget() string {
	return strconv.FormatFloat(m.Target, 'f', -1, 64)
}

// BarPercent is the fill of the footer progress bar: value/target*100, or
// 100 minus that for lower-is-better metrics. The result is clamped to
// 0..100; metrics without a target have no bar.
func (m Metric) BarPercent() float64 {
	if !m.HasTarget() {
		return 0
	}
	pct := m.Value / m.Target * 100
	if m.LowerIsBetter {
		pct = 100 - pct
	}
	return math.Max(0, math.Min(100, pct))
}

// PanelPercent is the fill of the context panel bar. Percentage metrics show
// their value directly and density metrics show target/value.
func (m Metric) PanelPercent() float64 {
	if m.Unit == "" || m.Unit == "%" {
		return math.Max(0, math.Min(100, m.Value))
	}
	if m.Value == 0 {
		return 100
	}
	return math.Max(0, math.Min(100, m.Target/m.Value*100))
}

// ExportGate blocks export until the quality score reaches the threshold
type ExportGate struct {
	Score     float64
	Threshold float64
}

// Passed reports whether the score meets the threshold.
func (g ExportGate) Passed() bool {
	return g.Score >= g.Threshold
}

// Footer is the quality bar at the bottom of the review workspace
type Footer struct {
	Metrics []Metric
	Gate    ExportGate
}

// SampleFooter returns the footer metrics of the review workspace.
func SampleFooter() Footer {
	return Footer{
		Metrics: []Metric{
			{Label: "Quality Score", Value: 87, Target: 85, Status: MetricExcellent},
			{Label: "Ambiguity", Value: 2.1, Target: 2.0, Status: MetricWarning, Unit: UnitPerThousandWords, LowerIsBetter: true},
			{Label: "Standardization", Value: 78, Target: 80, Status: MetricWarning, Unit: "%"},
			{Label: "High-Impact Edits", Value: 3, Status: MetricInfo},
		},
		Gate: ExportGate{Score: 87, Threshold: 85},
	}
}
