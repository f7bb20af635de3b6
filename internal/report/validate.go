package report

import (
	"fmt"
	"strings"
)

var validSeverities = map[string]struct{}{
	SeverityCritical: {},
	SeverityHigh:     {},
	SeverityMedium:   {},
	SeverityLow:      {},
}

// Validate checks the report's shape invariants before it is emitted.
// A report that fails validation indicates a bug in aggregation, not
// in the submitted code.
func Validate(report *Report) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	if strings.TrimSpace(report.Summary) == "" {
		return fmt.Errorf("report summary is empty")
	}
	if strings.TrimSpace(report.CodeType) == "" {
		return fmt.Errorf("report code_type is empty")
	}
	for i, issue := range report.Issues {
		if strings.TrimSpace(issue.Title) == "" {
			return fmt.Errorf("issue %d has no title", i)
		}
		if _, ok := validSeverities[issue.Severity]; !ok {
			return fmt.Errorf("issue %q has invalid severity %q", issue.Title, issue.Severity)
		}
		if issue.CVSSScore < 0 || issue.CVSSScore > 10 {
			return fmt.Errorf("issue %q has CVSS score out of range: %v", issue.Title, issue.CVSSScore)
		}
	}
	return nil
}
