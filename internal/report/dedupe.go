package report

import (
	"strings"
)

// issueKey is the correlation identity of an issue: same title, or
// same cited code when both cite one, means the same underlying
// weakness reported twice by different stages.
func issueKey(issue SecurityIssue) string {
	if code := strings.TrimSpace(issue.Code); code != "" {
		return "code:" + code
	}
	return "title:" + strings.ToLower(strings.TrimSpace(issue.Title))
}

// DedupeIssues collapses issues that correlate to the same weakness,
// preserving first-seen order. The surviving record keeps the highest
// CVSS score and the most complete fields from its duplicates.
func DedupeIssues(issues []SecurityIssue) []SecurityIssue {
	if len(issues) < 2 {
		return issues
	}

	index := make(map[string]int, len(issues))
	out := make([]SecurityIssue, 0, len(issues))
	for _, issue := range issues {
		key := issueKey(issue)
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, issue)
			continue
		}
		out[at] = mergeIssues(out[at], issue)
	}
	return out
}

func mergeIssues(kept, dup SecurityIssue) SecurityIssue {
	if dup.CVSSScore > kept.CVSSScore {
		kept.CVSSScore = dup.CVSSScore
	}
	if severityRank(dup.Severity) > severityRank(kept.Severity) {
		kept.Severity = dup.Severity
	}
	if kept.Description == "" {
		kept.Description = dup.Description
	}
	if kept.Fix == "" {
		kept.Fix = dup.Fix
	}
	if kept.Code == "" {
		kept.Code = dup.Code
	}
	return kept
}

func severityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
