package scan

import (
	"context"

	"github.com/google/uuid"
)

// Analyzer produces the findings for a set of uploaded files. Implementations
// must honor ctx and may return partial findings together with an error.
type Analyzer interface {
	Analyze(ctx context.Context, files []File, cfg Config) ([]Finding, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, files []File, cfg Config) ([]Finding, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, files []File, cfg Config) ([]Finding, error) {
	return f(ctx, files, cfg)
}

// StubAnalyzer returns the same predetermined findings for every scan,
// ignoring both the files and the configuration.
type StubAnalyzer struct{}

// Analyze returns StubFindings.
func (StubAnalyzer) Analyze(ctx context.Context, files []File, cfg Config) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return StubFindings(), nil
}

// StubFindings returns the fixed result set with fresh IDs.
func StubFindings() []Finding {
	return []Finding{
		{
			ID:          uuid.NewString(),
			Category:    "Risk Analysis",
			Severity:    SeverityCritical,
			Title:       "Unlimited Liability Exposure",
			Description: "Contract contains unlimited liability clause without caps",
			Location:    "Section 8.2",
			Suggestion:  "Add liability cap of $1M or project value",
			Confidence:  95,
		},
		{
			ID:          uuid.NewString(),
			Category:    "Compliance",
			Severity:    SeverityHigh,
			Title:       "Missing GDPR Compliance Clause",
			Description: "No data protection clauses found for EU operations",
			Location:    "Data Processing Section",
			Suggestion:  "Add GDPR compliance and data transfer clauses",
			Confidence:  88,
		},
		{
			ID:          uuid.NewString(),
			Category:    "Financial Terms",
			Severity:    SeverityMedium,
			Title:       "Payment Terms Favor Vendor",
			Description: "Net 15 payment terms with 2% late fees",
			Location:    "Section 4.1",
			Suggestion:  "Negotiate to Net 30 with reduced penalties",
			Confidence:  76,
		},
		{
			ID:          uuid.NewString(),
			Category:    "Legal Clauses",
			Severity:    SeverityHigh,
			Title:       "Broad Indemnification Scope",
			Description: "Customer indemnifies vendor for all claims including negligence",
			Location:    "Section 9.1",
			Suggestion:  "Limit indemnification to specific scenarios",
			Confidence:  92,
		},
	}
}
