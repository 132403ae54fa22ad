package pipeline

import (
	"context"

	"github.com/ppiankov/verifact/internal/model"
)

// ClaimDetector extracts check-worthy claims from text
type ClaimDetector interface {
	Detect(ctx context.Context, text string) ([]model.Claim, error)
}

// EvidenceHunter retrieves evidence for one claim. An empty result is valid.
type EvidenceHunter interface {
	Gather(ctx context.Context, claim model.Claim) ([]model.Evidence, error)
}

// VerdictWriter judges one claim against its evidence, which may be empty
type VerdictWriter interface {
	Write(ctx context.Context, claim model.Claim, evidence []model.Evidence) (model.Verdict, error)
}

// DetectorFunc adapts a function to ClaimDetector
type DetectorFunc func(ctx context.Context, text string) ([]model.Claim, error)

func (f DetectorFunc) Detect(ctx context.Context, text string) ([]model.Claim, error) {
	return f(ctx, text)
}

// HunterFunc adapts a function to EvidenceHunter
type HunterFunc func(ctx context.Context, claim model.Claim) ([]model.Evidence, error)

func (f HunterFunc) Gather(ctx context.Context, claim model.Claim) ([]model.Evidence, error) {
	return f(ctx, claim)
}

// WriterFunc adapts a function to VerdictWriter
type WriterFunc func(ctx context.Context, claim model.Claim, evidence []model.Evidence) (model.Verdict, error)

func (f WriterFunc) Write(ctx context.Context, claim model.Claim, evidence []model.Evidence) (model.Verdict, error) {
	return f(ctx, claim, evidence)
}
