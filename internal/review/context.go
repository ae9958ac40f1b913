package review

// SuggestionKind drives the icon and color of a suggestion card
type SuggestionKind string

const (
	SuggestionCritical      SuggestionKind = "critical"
	SuggestionImprovement   SuggestionKind = "improvement"
	SuggestionClarification SuggestionKind = "clarification"
)

// Suggestion is a recommendation shown in the context panel
type Suggestion struct {
	ID          string
	Kind        SuggestionKind
	Title       string
	Description string
	Evidence    []string
	Confidence  float64 // 0-1
}

// ConfidencePercent rounds Confidence to a whole percentage.
func (s Suggestion) ConfidencePercent() int {
	return roundPercent(s.Confidence)
}

// EvidenceItem links a clause to the library source it resembles
type EvidenceItem struct {
	Clause     string
	Source     string
	Similarity float64 // 0-1
	Keywords   []string
	Rationale  string
}

// SimilarityPercent rounds Similarity to a whole percentage.
func (e EvidenceItem) SimilarityPercent() int {
	return roundPercent(e.Similarity)
}

// RACIRow assigns responsibilities for one deliverable
type RACIRow struct {
	Deliverable string
	Responsible string
	Accountable string
	Consulted   string
	Informed    string
}

// ContextPanel is the right-hand sidebar content
type ContextPanel struct {
	Suggestions []Suggestion
	Quality     []Metric
	Evidence    []EvidenceItem
	RACI        []RACIRow
	Trend       string
}

// SampleContext returns the context panel of the review workspace.
func SampleContext() ContextPanel {
	return ContextPanel{
		Suggestions: []Suggestion{
			{
				ID: "1", Kind: SuggestionCritical, Title: "Payment Terms Risk",
				Description: "Current payment structure creates cash flow risk. Consider milestone-based payments.",
				Evidence:    []string{"Industry standard: 25% milestones", "Similar contracts: 4-phase structure"},
				Confidence:  0.89,
			},
			{
				ID: "2", Kind: SuggestionImprovement, Title: "Add Force Majeure Clause",
				Description: "Missing standard force majeure protection for both parties.",
				Evidence:    []string{"Required by company policy", "Legal precedent: COVID-19 impacts"},
				Confidence:  0.95,
			},
			{
				ID: "3", Kind: SuggestionClarification, Title: "Ambiguous Delivery Terms",
				Description: "Section 2.3 uses vague language: 'reasonable quality standards'",
				Evidence:    []string{"Ambiguity score: 3.2/1k words", "Missing acceptance criteria"},
				Confidence:  0.76,
			},
		},
		Quality: []Metric{
			{Label: "Overall Quality", Value: 87, Target: 85, Status: MetricExcellent},
			{Label: "Standardization", Value: 78, Target: 80, Status: MetricWarning},
			{Label: "Completeness", Value: 92, Target: 90, Status: MetricExcellent},
			{Label: "Ambiguity Score", Value: 2.1, Target: 2.0, Status: MetricWarning, Unit: UnitPerThousandWords, LowerIsBetter: true},
		},
		Evidence: []EvidenceItem{
			{
				Clause: "Data Protection Clause 4.2", Source: "GDPR_Template_v3.1", Similarity: 0.94,
				Keywords:  []string{"personal data", "processing", "lawful basis"},
				Rationale: "High similarity to approved GDPR template with proven compliance record",
			},
			{
				Clause: "Liability Limitation 7.1", Source: "Standard_Terms_Library", Similarity: 0.87,
				Keywords:  []string{"limitation", "consequential damages", "aggregate liability"},
				Rationale: "Standard limitation clause balancing risk allocation between parties",
			},
		},
		RACI: []RACIRow{
			{Deliverable: "Technical Requirements", Responsible: "Tech Lead", Accountable: "PM", Consulted: "Legal", Informed: "Stakeholders"},
			{Deliverable: "System Architecture", Responsible: "Architect", Accountable: "PM", Consulted: "Security", Informed: "Tech Lead"},
			{Deliverable: "MVP Development", Responsible: "Dev Team", Accountable: "Tech Lead", Consulted: "QA", Informed: "PM"},
		},
		Trend: "+5% improvement from last review",
	}
}

func roundPercent(f float64) int {
	return int(f*100 + 0.5)
}
