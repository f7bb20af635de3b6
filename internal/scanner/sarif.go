package scanner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/secpipe-io/secpipe/internal/findings"
)

// ParseSARIFFile reads a SARIF report from disk and extracts findings.
func ParseSARIFFile(path string) ([]findings.Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SARIF report: %w", err)
	}
	return ParseSARIF(data)
}

// ParseSARIF extracts findings from raw SARIF bytes. A record missing
// a severity defaults to the unknown tier and a record missing a rule
// id is tagged unknown; neither is dropped, so the observer sees the
// full result count.
func ParseSARIF(data []byte) ([]findings.Finding, error) {
	var report sarif.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode SARIF report: %w", err)
	}

	var parsed []findings.Finding
	for _, run := range report.Runs {
		if run == nil {
			continue
		}
		rules := indexRules(run)
		for _, result := range run.Results {
			if result == nil {
				continue
			}
			parsed = append(parsed, resultToFinding(result, rules))
		}
	}
	return parsed, nil
}

func indexRules(run *sarif.Run) map[string]*sarif.ReportingDescriptor {
	rules := make(map[string]*sarif.ReportingDescriptor)
	if run.Tool.Driver == nil {
		return rules
	}
	for _, rule := range run.Tool.Driver.Rules {
		if rule != nil {
			rules[rule.ID] = rule
		}
	}
	return rules
}

func resultToFinding(result *sarif.Result, rules map[string]*sarif.ReportingDescriptor) findings.Finding {
	finding := findings.Finding{
		RuleID:   "unknown",
		Severity: findings.SeverityUnknown,
	}

	if result.RuleID != nil && *result.RuleID != "" {
		finding.RuleID = *result.RuleID
	}
	if result.Message.Text != nil {
		finding.Message = *result.Message.Text
	}

	finding.Severity = resolveSeverity(result, rules[finding.RuleID])

	if len(result.Locations) > 0 && result.Locations[0] != nil {
		if physical := result.Locations[0].PhysicalLocation; physical != nil {
			if physical.ArtifactLocation != nil && physical.ArtifactLocation.URI != nil {
				finding.FilePath = *physical.ArtifactLocation.URI
			}
			if physical.Region != nil && physical.Region.StartLine != nil {
				finding.Line = *physical.Region.StartLine
				if physical.Region.EndLine != nil {
					finding.EndLine = *physical.Region.EndLine
				}
			}
		}
	}

	return finding
}

// resolveSeverity prefers the result level and falls back to the
// rule's problem.severity property, the way semgrep and CodeQL encode
// it.
func resolveSeverity(result *sarif.Result, rule *sarif.ReportingDescriptor) string {
	if result.Level != nil && *result.Level != "" {
		return findings.NormalizeSeverity(*result.Level)
	}
	if rule != nil && rule.Properties != nil {
		if raw, ok := rule.Properties["problem.severity"]; ok {
			if label, ok := raw.(string); ok {
				return findings.NormalizeSeverity(label)
			}
		}
	}
	return findings.SeverityUnknown
}
