package shared

import "strings"

// NormalizeWorkOrder canonicalizes a work-order tag: trimmed, casefolded,
// inner whitespace collapsed to single hyphens. Applied both at ingestion
// time and to filter values so matching stays consistent.
func NormalizeWorkOrder(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, "-")
}
