package findings

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ExtractSnippet returns the source lines [line, endLine] from the
// submitted code, 1-based inclusive. Returns empty string on any
// out-of-range input; a finding without a snippet is still usable.
func ExtractSnippet(code string, line, endLine int) string {
	if code == "" || line <= 0 {
		return ""
	}
	lines := strings.Split(code, "\n")
	if line > len(lines) {
		return ""
	}
	end := line
	if endLine > line {
		end = endLine
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[line-1:end], "\n")
}

// SnippetHash fingerprints a snippet for duplicate detection across
// findings that cite the same code.
func SnippetHash(snippet string) string {
	if snippet == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(snippet))
	return fmt.Sprintf("%x", sum[:])
}
