package model

// Support summarises how well the evidence behind a verdict holds up
type Support struct {
	Index      int      `json:"index"`      // 0-100
	Confidence string   `json:"confidence"` // low, low-medium, medium, high
	Conflict   bool     `json:"conflict"`   // Evidence both supports and contradicts the claim
	Signals    []Signal `json:"signals"`
}

// Signal is one diagnostic behind a support index
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// SignalType names a support diagnostic
type SignalType string

const (
	SignalEvidenceCoverage      SignalType = "evidence_coverage"
	SignalAuthorityDistribution SignalType = "authority_distribution"
	SignalRelevance             SignalType = "relevance"
	SignalStanceConflict        SignalType = "stance_conflict"
)

// Severity grades a signal
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)
