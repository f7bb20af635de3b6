package pipeline

import (
	"encoding/json"

	"github.com/secpipe-io/secpipe/internal/findings"
	"github.com/secpipe-io/secpipe/internal/report"
)

// Each stage contributes a differently shaped structured output, so
// the contribution is a tagged variant keyed by stage role: exactly
// one member of StageOutput is non-nil for a completed stage, and the
// aggregator can handle every shape explicitly.

type TriageOutput struct {
	CodeType        string   `json:"code_type"`
	RiskAreas       []string `json:"risk_areas"`
	PreliminaryRisk string   `json:"preliminary_risk"`
	Context         string   `json:"context"`
}

type StaticAnalysisOutput struct {
	Findings []findings.Finding `json:"findings"`
	FellBack bool               `json:"fell_back"`
}

type ReviewOutput struct {
	Issues []report.SecurityIssue `json:"issues"`
}

type RedTeamOutput struct {
	Issues    []report.SecurityIssue   `json:"issues"`
	Scenarios []report.ExploitScenario `json:"exploit_scenarios"`
}

type BlueTeamOutput struct {
	Issues              []report.SecurityIssue `json:"issues"`
	RemediationPriority []string               `json:"remediation_priority"`
}

type SynthesisOutput struct {
	Structured json.RawMessage
	FreeText   string
}

// StageOutput is the tagged variant.
type StageOutput struct {
	Triage    *TriageOutput
	Static    *StaticAnalysisOutput
	Review    *ReviewOutput
	RedTeam   *RedTeamOutput
	BlueTeam  *BlueTeamOutput
	Synthesis *SynthesisOutput
}

// parseStageOutput decodes the backend's structured payload into the
// role's shape. Decoding failures leave the role member nil: a
// missing structured contribution is recoverable and the aggregator
// degrades around it.
func parseStageOutput(role StageRole, structured json.RawMessage, freeText string) StageOutput {
	var out StageOutput
	switch role {
	case RoleTriage:
		var v TriageOutput
		if unmarshalLoose(structured, &v) {
			out.Triage = &v
		}
	case RoleStaticAnalysis:
		// Findings come from the tool, not the model; the runner fills
		// this member directly.
	case RoleCodeReview:
		var v ReviewOutput
		if unmarshalLoose(structured, &v) {
			out.Review = &v
		}
	case RoleRedTeam:
		var v RedTeamOutput
		if unmarshalLoose(structured, &v) {
			out.RedTeam = &v
		}
	case RoleBlueTeam:
		var v BlueTeamOutput
		if unmarshalLoose(structured, &v) {
			out.BlueTeam = &v
		}
	case RoleSynthesis:
		out.Synthesis = &SynthesisOutput{
			Structured: structured,
			FreeText:   freeText,
		}
	}
	return out
}

func unmarshalLoose(raw json.RawMessage, target any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}
