// Package report defines the structured security report produced by
// a pipeline run and the aggregation that builds it from
// heterogeneous stage outputs.
package report

import (
	"strings"
)

// Severity levels for security issues.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// SecurityIssue is one vulnerability in the final report. Immutable
// once produced by the synthesis stage.
type SecurityIssue struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Code        string  `json:"code"`
	Fix         string  `json:"fix"`
	CVSSScore   float64 `json:"cvss_score"`
	Severity    string  `json:"severity"`
	Source      string  `json:"source"`
}

// ExploitScenario is a proof-of-concept attack narrative from the red
// team stage.
type ExploitScenario struct {
	Title         string   `json:"title"`
	AttackVector  string   `json:"attack_vector"`
	Steps         []string `json:"steps"`
	Impact        string   `json:"impact"`
	Likelihood    string   `json:"likelihood"`
	RelatedIssues []string `json:"related_issues"`
}

// Report is the consolidated result of one run. Emitted exactly once
// per successful run, or never.
type Report struct {
	Summary             string            `json:"summary"`
	CodeType            string            `json:"code_type"`
	RiskAreas           []string          `json:"risk_areas"`
	Issues              []SecurityIssue   `json:"issues"`
	ExploitScenarios    []ExploitScenario `json:"exploit_scenarios"`
	RemediationPriority []string          `json:"remediation_priority"`
}

// NormalizeSeverity clamps a free-form severity label into the fixed
// issue enumeration, defaulting to medium when unrecognised.
func NormalizeSeverity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// ClampCVSS keeps a score inside the CVSS 0.0-10.0 range.
func ClampCVSS(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
