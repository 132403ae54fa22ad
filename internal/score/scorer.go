// Package score rates the evidence gathered for a claim.
package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/verifact/internal/model"
)

// DefaultTarget is the evidence count that earns full coverage
const DefaultTarget = 5

// Scorer calculates the support index and its signals
type Scorer struct {
	target int
}

// NewScorer creates a scorer. target is the evidence count that earns full
// coverage; values below 1 select DefaultTarget.
func NewScorer(target int) *Scorer {
	if target < 1 {
		target = DefaultTarget
	}
	return &Scorer{target: target}
}

// Calculate scores evidence out of 100: coverage (40), authority (30) and
// relevance (30), less 10 when sources disagree.
func (s *Scorer) Calculate(evidence []model.Evidence) model.Support {
	var signals []model.Signal

	coverageScore, coverageSignal := s.calculateCoverage(evidence)
	signals = append(signals, coverageSignal)

	authorityScore, authoritySignal := s.calculateAuthority(evidence)
	signals = append(signals, authoritySignal)

	relevanceScore, relevanceSignal := s.calculateRelevance(evidence)
	signals = append(signals, relevanceSignal)

	conflict, conflictSignal := s.detectConflict(evidence)
	if conflict {
		signals = append(signals, conflictSignal)
	}

	total := coverageScore + authorityScore + relevanceScore
	if conflict {
		total = max(total-10, 0)
	}

	return model.Support{
		Index:      total,
		Confidence: s.determineConfidence(total, len(evidence), conflict),
		Conflict:   conflict,
		Signals:    signals,
	}
}

// calculateCoverage awards up to 40 points for the evidence count
func (s *Scorer) calculateCoverage(evidence []model.Evidence) (int, model.Signal) {
	count := len(evidence)
	if count == 0 {
		return 0, model.Signal{
			Type:        model.SignalEvidenceCoverage,
			Severity:    model.SeverityCritical,
			Description: "No evidence gathered",
			Data:        map[string]any{"evidence": 0, "target": s.target},
		}
	}

	ratio := float64(count) / float64(s.target)
	score := int(math.Min(ratio*40, 40))

	severity := model.SeverityInfo
	if ratio < 0.4 {
		severity = model.SeverityCritical
	} else if ratio < 1.0 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalEvidenceCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d evidence items", count, s.target),
		Data: map[string]any{
			"evidence": count,
			"target":   s.target,
			"score":    score,
			"formula":  "min(evidence / target * 40, 40)",
		},
	}
}

// calculateAuthority awards up to 30 points weighted by source tier.
// Unclassified sources count as tertiary.
func (s *Scorer) calculateAuthority(evidence []model.Evidence) (int, model.Signal) {
	if len(evidence) == 0 {
		return 0, model.Signal{
			Type:        model.SignalAuthorityDistribution,
			Severity:    model.SeverityWarning,
			Description: "No sources to grade",
			Data:        map[string]any{"total": 0},
		}
	}

	primaryCount := 0
	secondaryCount := 0
	tertiaryCount := 0

	for _, e := range evidence {
		switch e.Source.Authority {
		case model.TierPrimary:
			primaryCount++
		case model.TierSecondary:
			secondaryCount++
		default:
			tertiaryCount++
		}
	}

	total := len(evidence)
	weightedSum := primaryCount*3 + secondaryCount*2 + tertiaryCount
	score := weightedSum * 30 / (total * 3)

	severity := model.SeverityInfo
	if primaryCount == 0 && secondaryCount == 0 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalAuthorityDistribution,
		Severity:    severity,
		Description: fmt.Sprintf("Authority distribution: %d primary, %d secondary, %d tertiary", primaryCount, secondaryCount, tertiaryCount),
		Data: map[string]any{
			"primary":   primaryCount,
			"secondary": secondaryCount,
			"tertiary":  tertiaryCount,
			"score":     score,
			"formula":   "(primary*3 + secondary*2 + tertiary) / (total*3) * 30",
		},
	}
}

// calculateRelevance awards up to 30 points for mean relevance
func (s *Scorer) calculateRelevance(evidence []model.Evidence) (int, model.Signal) {
	if len(evidence) == 0 {
		return 0, model.Signal{
			Type:        model.SignalRelevance,
			Severity:    model.SeverityWarning,
			Description: "No passages to rate",
		}
	}

	sum := 0.0
	for _, e := range evidence {
		sum += e.Relevance
	}
	mean := sum / float64(len(evidence))
	score := int(mean * 30)

	severity := model.SeverityInfo
	if mean < 0.3 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalRelevance,
		Severity:    severity,
		Description: fmt.Sprintf("Mean relevance: %.2f", mean),
		Data: map[string]any{
			"mean":    math.Round(mean*100) / 100,
			"score":   score,
			"formula": "mean_relevance * 30",
		},
	}
}

// detectConflict reports evidence that both supports and contradicts
func (s *Scorer) detectConflict(evidence []model.Evidence) (bool, model.Signal) {
	supporting := 0
	contradicting := 0
	for _, e := range evidence {
		switch e.Stance {
		case model.StanceSupporting:
			supporting++
		case model.StanceContradicting:
			contradicting++
		}
	}

	if supporting == 0 || contradicting == 0 {
		return false, model.Signal{}
	}

	return true, model.Signal{
		Type:        model.SignalStanceConflict,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Sources disagree: %d supporting, %d contradicting", supporting, contradicting),
		Data: map[string]any{
			"supporting":    supporting,
			"contradicting": contradicting,
			"penalty":       10,
		},
	}
}

func (s *Scorer) determineConfidence(score int, evidenceCount int, conflict bool) string {
	if conflict {
		return "low-medium"
	}

	if evidenceCount < 2 {
		return "low"
	}

	if score >= 80 {
		return "high"
	} else if score >= 60 {
		return "medium"
	} else {
		return "low"
	}
}
