package diff

import "strings"

// Severity is the ordinal compatibility-risk classification of a change.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the storage/wire form of a severity.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseSeverity converts a stored severity string back to its ordinal.
// Unknown strings map to low.
func ParseSeverity(s string) Severity {
	switch s {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func maxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// sensitiveKeywords flag newly added instructions whose name suggests a
// privileged or funds-moving operation.
var sensitiveKeywords = []string{
	"initialize", "close", "withdraw", "transfer", "mint", "burn",
	"freeze", "revoke", "authority",
}

func hasSensitiveKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// instructionAddedSeverity: medium for sensitive names, low otherwise.
func instructionAddedSeverity(name string) Severity {
	if hasSensitiveKeyword(name) {
		return SeverityMedium
	}
	return SeverityLow
}
