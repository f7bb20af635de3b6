package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/secpipe-io/secpipe/internal/report"
)

// StageRole identifies a stage's specialist function and therefore
// the shape of its structured contribution.
type StageRole int

const (
	RoleTriage StageRole = iota
	RoleStaticAnalysis
	RoleCodeReview
	RoleRedTeam
	RoleBlueTeam
	RoleSynthesis
)

// StageSpec is the static description of one pipeline stage.
type StageSpec struct {
	Name         string
	Description  string
	Role         StageRole
	UsesTool     bool
	Instructions string
}

// The fixed stage order. Ordinals are the 1-based positions in this
// slice.
var stageSpecs = []StageSpec{
	{
		Name:        "Triage Agent",
		Description: "Classifying code type and risk areas",
		Role:        RoleTriage,
		Instructions: `You are the Triage Agent, the first step of a security analysis pipeline.
Classify the submitted Python code and set context for the specialists that follow.
Your structured output must contain: "code_type" (web_app, cli_tool, data_pipeline, api_server, library, script, other),
"risk_areas" (list: authentication, cryptography, input_handling, file_io, network, database, serialization, subprocess, ...),
"preliminary_risk" (critical/high/medium/low) and "context" (a short briefing for the analysis team).
Be concise; you set context, deep analysis comes later.`,
	},
	{
		Name:        "Static Analysis Agent",
		Description: "Running Semgrep static analysis scan",
		Role:        RoleStaticAnalysis,
		UsesTool:    true,
		Instructions: `You are the Static Analysis Agent. A static-analysis scan has already been run;
its findings, if any, are included in your context. Interpret each finding, note
its severity and the vulnerable code, and flag risk areas from triage the scan
did not cover. If the scan was unavailable, perform a manual static review of
the code instead and say that you did. Do not propose fixes; that happens later.
Your structured output is optional for this stage.`,
	},
	{
		Name:        "Code Review Agent",
		Description: "Deep-reviewing logic vulnerabilities",
		Role:        RoleCodeReview,
		Instructions: `You are the Code Review Agent. Go beyond pattern matching: review the logic for
vulnerabilities static analysis misses (auth flaws, race conditions, injection
through indirect flows, unsafe defaults). Your structured output must contain
"issues": a list of {title, description, code, fix, cvss_score, severity, source}
with source "code_review". Leave fix empty if you are not confident; the Blue
Team refines fixes later.`,
	},
	{
		Name:        "Red Team Agent",
		Description: "Generating exploit scenarios",
		Role:        RoleRedTeam,
		Instructions: `You are the Red Team Agent. For the issues found so far, construct concrete
exploit scenarios. Your structured output must contain "exploit_scenarios":
a list of {title, attack_vector, steps, impact, likelihood, related_issues}
where related_issues references issue titles, and may contain additional
"issues" you discover while thinking like an attacker (source "red_team").`,
	},
	{
		Name:        "Blue Team Agent",
		Description: "Building remediation strategies",
		Role:        RoleBlueTeam,
		Instructions: `You are the Blue Team Agent. For every issue and exploit scenario so far,
produce remediation guidance. Your structured output must contain
"remediation_priority": issue titles ordered most urgent first, and may contain
"issues": corrected copies of earlier issues with concrete "fix" code filled in.`,
	},
	{
		Name:        "Report Synthesizer",
		Description: "Compiling final security report",
		Role:        RoleSynthesis,
		Instructions: `You are the Report Synthesizer, the final stage. Read all prior contributions
and produce the complete report as your structured output: {summary, code_type,
risk_areas, issues, exploit_scenarios, remediation_priority}. Deduplicate issues
found by multiple stages, keep every issue's fix non-empty, use severities
critical/high/medium/low and CVSS scores 0.0-10.0, and reference issues by exact
title in exploit_scenarios and remediation_priority.`,
	},
}

// TotalStages is the fixed length of the pipeline.
var TotalStages = len(stageSpecs)

// Stages returns the ordered stage descriptions.
func Stages() []StageSpec {
	out := make([]StageSpec, len(stageSpecs))
	copy(out, stageSpecs)
	return out
}

// StageNames returns the ordered stage names, for API consumers.
func StageNames() []string {
	names := make([]string, 0, len(stageSpecs))
	for _, spec := range stageSpecs {
		names = append(names, spec.Name)
	}
	return names
}

// defaultHandoffs are used when a stage does not provide its own
// handoff line.
var defaultHandoffs = map[string]string{
	"Triage Agent":          "Passing code classification and risk areas to static analysis",
	"Static Analysis Agent": "Passing Semgrep findings for deep manual code review",
	"Code Review Agent":     "Passing all findings for exploit scenario generation",
	"Red Team Agent":        "Passing exploit scenarios for remediation planning",
	"Blue Team Agent":       "Passing fixes and defense strategies for final report",
}

func handoffSummary(from *StageState, to StageSpec) string {
	if from.Handoff != "" {
		return from.Handoff
	}
	if summary, ok := defaultHandoffs[from.Name]; ok {
		return summary
	}
	return fmt.Sprintf("Handing off from %s to %s", from.Name, to.Name)
}

// buildStageContext assembles the accumulated context for a stage:
// the original code, every prior stage's handoff line, and the prior
// structured outputs relevant to this stage's role. Earlier stages
// see summaries only; later stages see progressively more structure.
func buildStageContext(run *Run, spec StageSpec, ordinal int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following Python code for security vulnerabilities.\n\n```python\n%s\n```\n", run.Code)

	var notes []string
	for _, prior := range run.Stages[:ordinal-1] {
		if prior.Handoff != "" {
			notes = append(notes, fmt.Sprintf("%d. %s: %s", prior.Ordinal, prior.Name, prior.Handoff))
		}
	}
	if len(notes) > 0 {
		b.WriteString("\nNotes from earlier pipeline stages:\n")
		b.WriteString(strings.Join(notes, "\n"))
		b.WriteString("\n")
	}

	switch spec.Role {
	case RoleTriage:
		// First stage: code only.
	case RoleStaticAnalysis:
		appendTriageSection(&b, run)
	case RoleCodeReview:
		appendTriageSection(&b, run)
		appendFindingsSection(&b, run)
	case RoleRedTeam:
		appendFindingsSection(&b, run)
		appendIssuesSection(&b, collectIssues(run, ordinal))
	case RoleBlueTeam:
		appendIssuesSection(&b, collectIssues(run, ordinal))
		appendScenariosSection(&b, run)
	case RoleSynthesis:
		appendTriageSection(&b, run)
		appendFindingsSection(&b, run)
		appendIssuesSection(&b, collectIssues(run, ordinal))
		appendScenariosSection(&b, run)
		appendRemediationSection(&b, run)
	}

	return b.String()
}

func appendTriageSection(b *strings.Builder, run *Run) {
	for _, state := range run.Stages {
		if state.Output.Triage != nil {
			writeJSONSection(b, "Triage classification", state.Output.Triage)
			return
		}
	}
}

func appendFindingsSection(b *strings.Builder, run *Run) {
	for _, state := range run.Stages {
		if state.Output.Static != nil {
			if state.Output.Static.FellBack {
				b.WriteString("\nThe static-analysis tool was unavailable; findings below may be incomplete.\n")
			}
			if len(state.Output.Static.Findings) > 0 {
				writeJSONSection(b, "Static analysis findings", state.Output.Static.Findings)
			}
			return
		}
	}
}

func appendIssuesSection(b *strings.Builder, issues []report.SecurityIssue) {
	if len(issues) == 0 {
		return
	}
	writeJSONSection(b, "Security issues identified so far", issues)
}

func appendScenariosSection(b *strings.Builder, run *Run) {
	for _, state := range run.Stages {
		if state.Output.RedTeam != nil && len(state.Output.RedTeam.Scenarios) > 0 {
			writeJSONSection(b, "Exploit scenarios", state.Output.RedTeam.Scenarios)
			return
		}
	}
}

func appendRemediationSection(b *strings.Builder, run *Run) {
	for _, state := range run.Stages {
		if state.Output.BlueTeam != nil && len(state.Output.BlueTeam.RemediationPriority) > 0 {
			writeJSONSection(b, "Remediation priority", state.Output.BlueTeam.RemediationPriority)
			return
		}
	}
}

// collectIssues gathers the issues contributed by stages before
// ordinal, in pipeline order.
func collectIssues(run *Run, ordinal int) []report.SecurityIssue {
	var issues []report.SecurityIssue
	for _, state := range run.Stages[:ordinal-1] {
		switch {
		case state.Output.Review != nil:
			issues = append(issues, state.Output.Review.Issues...)
		case state.Output.RedTeam != nil:
			issues = append(issues, state.Output.RedTeam.Issues...)
		case state.Output.BlueTeam != nil:
			issues = append(issues, state.Output.BlueTeam.Issues...)
		}
	}
	return issues
}

func writeJSONSection(b *strings.Builder, title string, value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil || len(data) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n%s\n", title, data)
}
