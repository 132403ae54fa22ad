package agents

import (
	"fmt"
	"strings"

	"github.com/ppiankov/verifact/internal/model"
)

const detectorSystem = `You identify factual claims that deserve fact-checking.

A factual claim makes a specific, verifiable assertion about reality: numbers,
dates, named people or organisations, reported results, origins, rankings.
Opinions, questions, commands, recommendations and speculation are not claims.

Score each claim's check-worthiness from 0.0 to 1.0 by weighing specificity,
public interest and potential impact if believed.

Reply with JSON of the form:
{"claims": [{"text": "...", "context": "...", "domain": "...", "check_worthiness": 0.0,
  "entities": [{"text": "...", "type": "person|organization|location|date|number|other"}]}]}

"text" must quote the claim as it appears in the input. "domain" is one of
politics, economics, health, science, technology, environment, statistics, other.
Return {"claims": []} when the input contains no factual claims.`

const hunterSystem = `You gather evidence that bears on a factual claim.

Report passages from credible, citable sources: official statistics, peer
reviewed research, government and intergovernmental bodies, encyclopedias,
established news organisations and fact-checkers. Include contradicting
evidence when it exists. Never invent sources; omit anything you cannot
attribute to a real URL.

Reply with JSON of the form:
{"evidence": [{"text": "...", "url": "https://...", "title": "...",
  "relevance": 0.0, "stance": "supporting|contradicting|contextual"}]}

"relevance" (0.0 to 1.0) is how directly the passage addresses the claim.`

const writerSystem = `You write fact-check verdicts.

Base the verdict solely on the numbered evidence. Weigh evidence by source
authority (primary over secondary over tertiary) and relevance. Consensus
among independent sources is strong evidence.

Labels: true, partially_true, misleading, false, unverifiable. Use
unverifiable when the evidence is insufficient.

Confidence: 0.8-1.0 only for consistent, credible, comprehensive evidence;
0.5-0.79 for mixed or thin evidence; below 0.5 for weak evidence.

You may only cite URLs listed in the evidence. Reply with JSON of the form:
{"verdict": "...", "confidence": 0.0, "explanation": "one or two sentences",
 "sources": ["https://..."], "evidence_summary": "..."}`

func detectorPrompt(text string) string {
	return "Identify the check-worthy factual claims in the following text.\n\nTEXT:\n" + text
}

func hunterPrompt(claim model.Claim, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CLAIM: %s\n", claim.Text)
	if claim.Context != "" {
		fmt.Fprintf(&b, "CONTEXT: %s\n", claim.Context)
	}
	if claim.Domain != "" {
		fmt.Fprintf(&b, "DOMAIN: %s\n", claim.Domain)
	}
	if len(claim.Entities) > 0 {
		names := make([]string, 0, len(claim.Entities))
		for _, e := range claim.Entities {
			names = append(names, e.Text)
		}
		fmt.Fprintf(&b, "ENTITIES: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "\nReturn at most %d evidence items.", limit)
	return b.String()
}

func writerPrompt(claim model.Claim, evidence []model.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CLAIM: %s\n", claim.Text)
	if claim.Context != "" {
		fmt.Fprintf(&b, "CONTEXT: %s\n", claim.Context)
	}
	b.WriteString("\nEVIDENCE:\n")
	for i, e := range evidence {
		authority := e.Source.Authority.String()
		fmt.Fprintf(&b, "[%d] %s\n    source: %s (%s authority)\n    relevance: %.2f, stance: %s\n",
			i+1, e.Text, e.Source.URL, authority, e.Relevance, e.Stance)
	}
	b.WriteString("\nALLOWED URLS:\n")
	for _, u := range model.SourceURLs(evidence) {
		fmt.Fprintf(&b, "- %s\n", u)
	}
	return b.String()
}
