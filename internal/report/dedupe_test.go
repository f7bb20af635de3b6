package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeIssuesByTitle(t *testing.T) {
	issues := []SecurityIssue{
		{Title: "Eval of untrusted input", Severity: SeverityHigh, CVSSScore: 8.0},
		{Title: "Hardcoded secret", Severity: SeverityMedium, CVSSScore: 5.0},
		{Title: "eval of untrusted input", Severity: SeverityCritical, CVSSScore: 9.8, Fix: "Parse instead of eval"},
	}

	got := DedupeIssues(issues)
	require.Len(t, got, 2)
	assert.Equal(t, "Eval of untrusted input", got[0].Title, "first-seen order kept")
	assert.Equal(t, SeverityCritical, got[0].Severity)
	assert.Equal(t, 9.8, got[0].CVSSScore)
	assert.Equal(t, "Parse instead of eval", got[0].Fix)
	assert.Equal(t, "Hardcoded secret", got[1].Title)
}

func TestDedupeIssuesByCitedCode(t *testing.T) {
	issues := []SecurityIssue{
		{Title: "Command injection", Code: "subprocess.run(cmd, shell=True)", Severity: SeverityHigh},
		{Title: "Shell injection via subprocess", Code: "subprocess.run(cmd, shell=True)", Severity: SeverityHigh, Description: "cmd is user controlled"},
	}

	got := DedupeIssues(issues)
	require.Len(t, got, 1)
	assert.Equal(t, "Command injection", got[0].Title)
	assert.Equal(t, "cmd is user controlled", got[0].Description)
}

func TestDedupeIssuesNoDuplicates(t *testing.T) {
	issues := []SecurityIssue{
		{Title: "A", Severity: SeverityLow},
		{Title: "B", Severity: SeverityLow},
	}
	assert.Equal(t, issues, DedupeIssues(issues))
	assert.Empty(t, DedupeIssues(nil))
}
