package report

import (
	"encoding/json"
	"strings"
)

// AggregateInput carries the synthesizer's output plus the structured
// contributions of the earlier stages, already parsed into their
// role-specific shapes by the pipeline.
type AggregateInput struct {
	// Synthesizer output: structured JSON when parsing succeeded,
	// otherwise the free text the stage produced.
	SynthStructured json.RawMessage
	SynthFreeText   string
	// Best narration to fall back on when even free text is missing.
	Narration []string

	// Prior stage contributions.
	CodeType            string            // from triage
	RiskAreas           []string          // from triage
	ExploitScenarios    []ExploitScenario // from red team
	RemediationPriority []string          // from blue team
}

// Build merges the synthesizer's output with prior stage outputs into
// one validated Report. A Report is always producible once all stages
// complete: when structured parsing fails the result degrades instead
// of erroring, and a structured report that would not validate falls
// back to the degraded shape rather than failing the run.
func Build(input AggregateInput) *Report {
	if report, ok := decodeSynthReport(input.SynthStructured); ok {
		normalize(report)
		report.Issues = DedupeIssues(report.Issues)
		if strings.TrimSpace(report.Summary) == "" {
			report.Summary = fallbackSummary(input)
		}
		if report.CodeType == "unknown" && input.CodeType != "" {
			report.CodeType = input.CodeType
		}
		if len(report.RiskAreas) == 0 {
			report.RiskAreas = input.RiskAreas
		}
		if len(report.ExploitScenarios) == 0 {
			report.ExploitScenarios = input.ExploitScenarios
		}
		if len(report.RemediationPriority) == 0 {
			report.RemediationPriority = input.RemediationPriority
		}
		if Validate(report) == nil {
			return report
		}
	}

	return degradedReport(input)
}

// decodeSynthReport accepts the synthesizer's structured payload when
// it carries at least a summary or issues.
func decodeSynthReport(raw json.RawMessage) (*Report, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, false
	}
	if strings.TrimSpace(report.Summary) == "" && len(report.Issues) == 0 {
		return nil, false
	}
	return &report, true
}

// fallbackSummary picks the best available summary text when the
// synthesizer did not produce one.
func fallbackSummary(input AggregateInput) string {
	summary := strings.TrimSpace(input.SynthFreeText)
	if summary == "" {
		summary = strings.TrimSpace(strings.Join(input.Narration, " "))
	}
	if summary == "" {
		summary = "The analysis completed but no structured report could be extracted."
	}
	return summary
}

// degradedReport builds the safe partial Report described by the
// aggregation contract: free text as the summary, no issues, prior
// stage structured outputs passed through.
func degradedReport(input AggregateInput) *Report {
	return &Report{
		Summary:             fallbackSummary(input),
		CodeType:            "unknown",
		RiskAreas:           input.RiskAreas,
		Issues:              []SecurityIssue{},
		ExploitScenarios:    input.ExploitScenarios,
		RemediationPriority: input.RemediationPriority,
	}
}

// normalize enforces the report's shape invariants in place. An
// issue without a title carries nothing actionable and is dropped
// rather than invalidating the rest of the report.
func normalize(report *Report) {
	if strings.TrimSpace(report.CodeType) == "" {
		report.CodeType = "unknown"
	}
	kept := make([]SecurityIssue, 0, len(report.Issues))
	for _, issue := range report.Issues {
		if strings.TrimSpace(issue.Title) == "" {
			continue
		}
		issue.Severity = NormalizeSeverity(issue.Severity)
		issue.CVSSScore = ClampCVSS(issue.CVSSScore)
		if issue.Source == "" {
			issue.Source = "ai_review"
		}
		kept = append(kept, issue)
	}
	report.Issues = kept
}
