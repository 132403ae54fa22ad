package model

import "time"

// Report is the outcome of one pipeline run
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TextChars  int       `json:"text_chars"`

	Claims   []Claim   `json:"claims"`   // Claims that survived filtering, in detector order
	Verdicts []Verdict `json:"verdicts"` // One per successfully processed claim, in claim order

	Omissions []Omission `json:"omissions,omitempty"` // Claims without a verdict and why
	TimedOut  bool       `json:"timed_out"`
	Stats     RunStats   `json:"stats"`
}

// Omission explains why a surviving claim produced no verdict
type Omission struct {
	ClaimIndex int    `json:"claim_index"`
	Claim      string `json:"claim"`
	Stage      string `json:"stage,omitempty"`
	Reason     string `json:"reason"`
	Attempts   int    `json:"attempts,omitempty"`
}

// RunStats aggregates counters for one run
type RunStats struct {
	ClaimsDetected    int `json:"claims_detected"`    // Returned by the detector
	ClaimsFiltered    int `json:"claims_filtered"`    // Dropped by threshold, dedupe or sanity checks
	ClaimsProcessed   int `json:"claims_processed"`   // Handed to the fan-out
	EvidenceGathered  int `json:"evidence_gathered"`  // Evidence items across all claims
	VerdictsGenerated int `json:"verdicts_generated"`
	Errors            int `json:"errors"`
	Warnings          int `json:"warnings"`

	DetectionTime  time.Duration `json:"detection_time_ns"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	TotalTime      time.Duration `json:"total_time_ns"`
}

// LabelCounts tallies verdicts per label
func (r *Report) LabelCounts() map[VerdictLabel]int {
	counts := make(map[VerdictLabel]int)
	for _, v := range r.Verdicts {
		counts[v.Label]++
	}
	return counts
}
