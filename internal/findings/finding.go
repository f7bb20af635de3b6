package findings

import (
	"strings"
)

// Severity tiers recognised by the pipeline, from most to least
// urgent. Anything a scanner reports outside this set normalizes to
// SeverityUnknown rather than being dropped.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
	SeverityUnknown  = "unknown"
)

// Finding is a single static-analysis result. Immutable once parsed.
type Finding struct {
	RuleID   string `json:"rule_id"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	FilePath string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	EndLine  int    `json:"end_line,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// NormalizeSeverity maps scanner severity labels (case-insensitive,
// SARIF levels included) onto the fixed tier set.
func NormalizeSeverity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "warning", "warn":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info", "note", "none":
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}
