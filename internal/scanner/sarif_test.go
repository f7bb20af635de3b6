package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secpipe-io/secpipe/internal/findings"
)

const semgrepSARIF = `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {
        "driver": {
          "name": "semgrep",
          "rules": [
            {
              "id": "python.lang.security.audit.eval-detected.eval-detected",
              "properties": {"problem.severity": "error"}
            }
          ]
        }
      },
      "results": [
        {
          "ruleId": "python.lang.security.audit.eval-detected.eval-detected",
          "level": "error",
          "message": {"text": "Detected the use of eval()."},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "target.py"},
                "region": {"startLine": 2}
              }
            }
          ]
        },
        {
          "ruleId": "python.lang.correctness.useless-comparison",
          "message": {"text": "Useless comparison."}
        },
        {
          "message": {"text": "Result with no rule id at all."},
          "level": "warning"
        }
      ]
    }
  ]
}`

func TestParseSARIF(t *testing.T) {
	parsed, err := ParseSARIF([]byte(semgrepSARIF))
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, "python.lang.security.audit.eval-detected.eval-detected", parsed[0].RuleID)
	assert.Equal(t, findings.SeverityHigh, parsed[0].Severity)
	assert.Equal(t, "Detected the use of eval().", parsed[0].Message)
	assert.Equal(t, "target.py", parsed[0].FilePath)
	assert.Equal(t, 2, parsed[0].Line)

	// Missing level and no rule property: defaults to unknown, not dropped.
	assert.Equal(t, "python.lang.correctness.useless-comparison", parsed[1].RuleID)
	assert.Equal(t, findings.SeverityUnknown, parsed[1].Severity)

	// Missing rule id: tagged unknown, message and severity preserved.
	assert.Equal(t, "unknown", parsed[2].RuleID)
	assert.Equal(t, findings.SeverityMedium, parsed[2].Severity)
	assert.Equal(t, "Result with no rule id at all.", parsed[2].Message)
}

func TestParseSARIFLevelFallsBackToRuleProperty(t *testing.T) {
	raw := `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {"driver": {"name": "semgrep", "rules": [{"id": "R1", "properties": {"problem.severity": "warning"}}]}},
      "results": [{"ruleId": "R1", "message": {"text": "m"}}]
    }
  ]
}`
	parsed, err := ParseSARIF([]byte(raw))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, findings.SeverityMedium, parsed[0].Severity)
}

func TestParseSARIFMalformed(t *testing.T) {
	_, err := ParseSARIF([]byte("not json at all"))
	assert.Error(t, err)
}

func TestParseSARIFNoRuns(t *testing.T) {
	parsed, err := ParseSARIF([]byte(`{"version": "2.1.0", "runs": []}`))
	require.NoError(t, err)
	assert.Empty(t, parsed)
}
