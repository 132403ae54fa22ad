// Package events carries pipeline lifecycle events to observers.
//
// The bus holds no business state. Handlers are invoked synchronously on the
// publishing goroutine, so a handler shared by concurrent runs must be safe
// for concurrent use.
package events

import (
	"time"

	"github.com/ppiankov/verifact/internal/model"
)

// Type identifies the kind of event.
type Type string

const (
	TypeStarted          Type = "started"
	TypeStageStarted     Type = "stage_started"
	TypeStageCompleted   Type = "stage_completed"
	TypeClaimDetected    Type = "claim_detected"
	TypeEvidenceGathered Type = "evidence_gathered"
	TypeVerdictGenerated Type = "verdict_generated"
	TypeCompleted        Type = "completed"
	TypeWarning          Type = "warning"
	TypeError            Type = "error"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageDetection  Stage = "claim_detection"
	StageEvidence   Stage = "evidence_gathering"
	StageVerdict    Stage = "verdict_generation"
	StageProcessing Stage = "claim_processing"
	StageRun        Stage = "run"
)

// NoClaim is the ClaimIndex of events that are not tied to a claim.
const NoClaim = -1

// Event is one lifecycle notification. Data holds the payload matching
// Type: StartedData, StageData, ClaimData, EvidenceData, VerdictData,
// CompletedData, or IssueData for both warnings and errors.
type Event struct {
	ID    string    `json:"id"`
	RunID string    `json:"run_id"`
	Type  Type      `json:"type"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

// StartedData accompanies TypeStarted.
type StartedData struct {
	TextChars   int           `json:"text_chars"`
	Parallelism int           `json:"parallelism"`
	Timeout     time.Duration `json:"timeout"`
}

// StageData accompanies TypeStageStarted and TypeStageCompleted.
type StageData struct {
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"`          // 0.0 to 1.0
	Message  string  `json:"message,omitempty"`
	Count    int     `json:"count,omitempty"`
}

// ClaimData accompanies TypeClaimDetected.
type ClaimData struct {
	Index int         `json:"index"`
	Claim model.Claim `json:"claim"`
}

// EvidenceData accompanies TypeEvidenceGathered.
type EvidenceData struct {
	Index    int              `json:"index"`
	Claim    model.Claim      `json:"claim"`
	Evidence []model.Evidence `json:"evidence"`
}

// VerdictData accompanies TypeVerdictGenerated.
type VerdictData struct {
	Index   int           `json:"index"`
	Claim   model.Claim   `json:"claim"`
	Verdict model.Verdict `json:"verdict"`
}

// CompletedData accompanies TypeCompleted.
type CompletedData struct {
	Verdicts int           `json:"verdicts"`
	Omitted  int           `json:"omitted"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// IssueData accompanies TypeWarning and TypeError.
type IssueData struct {
	Stage      Stage  `json:"stage"`
	ClaimIndex int    `json:"claim_index"`         // NoClaim for run-level issues
	Claim      string `json:"claim,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

// ClaimIndex returns the claim the event belongs to, or NoClaim.
func (e Event) ClaimIndex() int {
	switch d := e.Data.(type) {
	case ClaimData:
		return d.Index
	case EvidenceData:
		return d.Index
	case VerdictData:
		return d.Index
	case IssueData:
		return d.ClaimIndex
	default:
		return NoClaim
	}
}

// Issue returns the payload of a warning or error event.
func (e Event) Issue() (IssueData, bool) {
	d, ok := e.Data.(IssueData)
	return d, ok
}
