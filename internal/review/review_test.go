package review

import (
	"math"
	"reflect"
	"testing"

	"github.com/lyallcooper/legalreview/internal/scan"
)

func TestNavigation(t *testing.T) {
	tests := []struct {
		path   string
		active string
	}{
		{"/", "Documents"},
		{"/deep-scan", "Deep Scan"},
		{"/elsewhere", ""},
		{"#", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			items := Navigation(tt.path)
			if len(items) != 5 {
				t.Fatalf("len(items) = %d, want 5", len(items))
			}
			var active []string
			for _, item := range items {
				if item.Active {
					active = append(active, item.Label)
				}
			}
			switch {
			case tt.active == "" && len(active) != 0:
				t.Errorf("active = %v, want none", active)
			case tt.active != "" && !reflect.DeepEqual(active, []string{tt.active}):
				t.Errorf("active = %v, want [%s]", active, tt.active)
			}
		})
	}
}

func TestOutline_DefaultExpanded(t *testing.T) {
	for _, s := range Outline() {
		want := s.ID == "1" || s.ID == "2"
		if s.Expanded != want {
			t.Errorf("section %s expanded = %v, want %v", s.ID, s.Expanded, want)
		}
	}
}

func TestCountOutline(t *testing.T) {
	got := CountOutline(Outline())
	want := OutlineCounts{Complete: 7, Pending: 4}
	if got != want {
		t.Errorf("CountOutline = %+v, want %+v", got, want)
	}
}

func TestSearchOutline(t *testing.T) {
	tests := []struct {
		query string
		want  map[string][]string // section -> children kept
	}{
		{"", map[string][]string{
			"1": {"1.1", "1.2", "1.3"},
			"2": {"2.1", "2.2", "2.3"},
			"3": {"3.1", "3.2"},
		}},
		{"PAYMENT", map[string][]string{"2": {"2.1"}}},
		{"terms & conditions", map[string][]string{"2": {"2.1", "2.2", "2.3"}}},
		{"  insurance ", map[string][]string{"3": {"3.2"}}},
		{"nothing matches", map[string][]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := make(map[string][]string)
			for _, s := range SearchOutline(Outline(), tt.query) {
				var children []string
				for _, c := range s.Children {
					children = append(children, c.ID)
				}
				got[s.ID] = children
				if tt.query != "" && len(s.Children) > 0 && !s.Expanded {
					t.Errorf("section %s with matches should be expanded", s.ID)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SearchOutline(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMetricBarPercent(t *testing.T) {
	tests := []struct {
		name   string
		metric Metric
		want   float64
	}{
		{"above target capped", Metric{Value: 87, Target: 85}, 100},
		{"below target", Metric{Value: 78, Target: 80}, 97.5},
		{"lower is better over target", Metric{Value: 2.1, Target: 2.0, LowerIsBetter: true}, 0},
		{"lower is better under target", Metric{Value: 1.0, Target: 2.0, LowerIsBetter: true}, 50},
		{"no target", Metric{Value: 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.metric.BarPercent(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("BarPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetricDisplay(t *testing.T) {
	footer := SampleFooter()
	tests := []struct {
		metric    Metric
		wantValue string
		wantUnit  string
	}{
		{footer.Metrics[0], "87", "%"},
		{footer.Metrics[1], "2.1", UnitPerThousandWords},
		{footer.Metrics[3], "3", ""},
	}

	for _, tt := range tests {
		t.Run(tt.metric.Label, func(t *testing.T) {
			if got := tt.metric.FormatValue(); got != tt.wantValue {
				t.Errorf("FormatValue() = %q, want %q", got, tt.wantValue)
			}
			if got := tt.metric.DisplayUnit(); got != tt.wantUnit {
				t.Errorf("DisplayUnit() = %q, want %q", got, tt.wantUnit)
			}
		})
	}

	ambiguity := SampleContext().Quality[3]
	if got := ambiguity.PanelPercent(); math.Abs(got-2.0/2.1*100) > 1e-9 {
		t.Errorf("PanelPercent() = %v", got)
	}
}

func TestExportGate(t *testing.T) {
	tests := []struct {
		gate ExportGate
		want bool
	}{
		{ExportGate{Score: 87, Threshold: 85}, true},
		{ExportGate{Score: 85, Threshold: 85}, true},
		{ExportGate{Score: 84.9, Threshold: 85}, false},
	}
	for _, tt := range tests {
		if got := tt.gate.Passed(); got != tt.want {
			t.Errorf("%+v Passed() = %v, want %v", tt.gate, got, tt.want)
		}
	}
	if !SampleFooter().Gate.Passed() {
		t.Error("sample gate should pass")
	}
}

func TestSuggestionPercent(t *testing.T) {
	got := []int{}
	for _, s := range SampleContext().Suggestions {
		got = append(got, s.ConfidencePercent())
	}
	if want := []int{89, 95, 76}; !reflect.DeepEqual(got, want) {
		t.Errorf("confidence percents = %v, want %v", got, want)
	}
}

func TestDeepScanDerivations(t *testing.T) {
	findings := scan.StubFindings()

	if got := HighPriorityCount(findings); got != 3 {
		t.Errorf("HighPriorityCount = %d, want 3", got)
	}
	if got := AverageConfidence(findings); math.Abs(got-87.75) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want 87.75", got)
	}
	if got := AverageConfidence(nil); got != 0 {
		t.Errorf("AverageConfidence(nil) = %v, want 0", got)
	}

	counts := map[ResultTab]int{TabAll: 4, TabCritical: 1, TabHigh: 2, TabSummary: 0}
	for tab, want := range counts {
		if got := len(FilterFindings(findings, tab)); got != want {
			t.Errorf("FilterFindings(%s) = %d findings, want %d", tab, got, want)
		}
	}

	if ParseResultTab("bogus") != TabAll || ParseResultTab("high") != TabHigh {
		t.Error("ParseResultTab mapping wrong")
	}
}

func TestResultsPanel(t *testing.T) {
	tests := []struct {
		running        bool
		results, files int
		want           PanelState
	}{
		{true, 4, 2, PanelScanning},
		{false, 4, 0, PanelResults},
		{false, 0, 2, PanelReady},
		{false, 0, 0, PanelEmpty},
	}
	for _, tt := range tests {
		if got := ResultsPanel(tt.running, tt.results, tt.files); got != tt.want {
			t.Errorf("ResultsPanel(%v, %d, %d) = %s, want %s", tt.running, tt.results, tt.files, got, tt.want)
		}
	}
}
