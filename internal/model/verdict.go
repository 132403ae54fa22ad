package model

import "strings"

// Verdict is the final judgment for one claim
type Verdict struct {
	Claim           string       `json:"claim"`
	Label           VerdictLabel `json:"verdict"`
	Confidence      float64      `json:"confidence"`
	Explanation     string       `json:"explanation"`
	Sources         []SourceRef  `json:"sources"`
	EvidenceSummary string       `json:"evidence_summary,omitempty"`
	Support         *Support     `json:"support,omitempty"`
}

// VerdictLabel is the verdict category
type VerdictLabel string

const (
	VerdictTrue          VerdictLabel = "true"
	VerdictFalse         VerdictLabel = "false"
	VerdictPartiallyTrue VerdictLabel = "partially_true"
	VerdictMisleading    VerdictLabel = "misleading"
	VerdictUnverifiable  VerdictLabel = "unverifiable"
)

// VerdictLabels lists all known labels in display order
var VerdictLabels = []VerdictLabel{
	VerdictTrue,
	VerdictPartiallyTrue,
	VerdictMisleading,
	VerdictFalse,
	VerdictUnverifiable,
}

// ParseVerdictLabel normalizes a label such as "Partially True" or
// "partially-true". The second result is false for unknown labels.
func ParseVerdictLabel(s string) (VerdictLabel, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, l := range VerdictLabels {
		if norm == string(l) {
			return l, true
		}
	}
	return "", false
}

// Valid reports whether the label is a known verdict category
func (l VerdictLabel) Valid() bool {
	_, ok := ParseVerdictLabel(string(l))
	return ok
}
