package extract

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/ppiankov/verifact/internal/model"
)

type indicator struct {
	name    string
	pattern *regexp.Regexp
	score   float64
}

type domainRule struct {
	domain       model.Domain
	pattern      *regexp.Regexp
	specificity  float64
	publicImpact float64
	impact       float64
}

var (
	factualIndicators = []indicator{
		{"number", regexp.MustCompile(`\d+(?:[.,]\d+)?%?`), 0.8},
		{"date", regexp.MustCompile(`\b(?:\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`), 0.7},
		{"attribution", regexp.MustCompile(`(?i)\b(?:according to|based on|study|research|published|found|shows|indicates|demonstrates|concludes|reported)\b`), 0.7},
		{"origin", regexp.MustCompile(`(?i)\b(?:originated|invented|founded|established|discovered|introduced|first)\b`), 0.7},
		{"entity", regexp.MustCompile(`\s[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`), 0.6},
		{"factual_verb", regexp.MustCompile(`(?i)\b(?:is|are|was|were|has|have|had|contains|includes)\b`), 0.6},
	}

	opinionIndicators = []indicator{
		{"opinion", regexp.MustCompile(`(?i)\b(?:i think|in my opinion|i believe|i feel|in my view|from my perspective)\b`), -0.5},
		{"speculation", regexp.MustCompile(`(?i)\b(?:should|would|could|might|possibly|perhaps|maybe)\b`), -0.4},
		{"subjective", regexp.MustCompile(`(?i)\b(?:seems|appears|looks like|feels like|sounds like)\b`), -0.3},
	}

	exclusionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(?:i think|in my opinion|i believe|i feel)\b`),
		regexp.MustCompile(`\?\s*$`),
		regexp.MustCompile(`(?i)^\s*(?:should|would|could|please|let's)\b`),
	}

	domainRules = []domainRule{
		{model.DomainStatistics, regexp.MustCompile(`\d+(?:\.\d+)?\s?(?:%|percent)`), 0.8, 0.5, 0.6},
		{model.DomainHealth, regexp.MustCompile(`(?i)\b(?:health|medical|disease|vaccine|virus|cancer|patients?|hospital)\b`), 0.8, 0.7, 0.6},
		{model.DomainScience, regexp.MustCompile(`(?i)\b(?:according to (?:the|a) study|research shows|has been proven|scientists?|physics|biology)\b`), 0.7, 0.6, 0.5},
		{model.DomainEnvironment, regexp.MustCompile(`(?i)\b(?:climate|weather|atmosphere|emissions|carbon|planet|earth|ocean)\b`), 0.7, 0.6, 0.5},
		{model.DomainEconomics, regexp.MustCompile(`(?i)\b(?:gdp|inflation|unemployment|economy|revenue|market|tax(?:es)?|billion|million)\b`), 0.7, 0.6, 0.6},
		{model.DomainPolitics, regexp.MustCompile(`(?i)\b(?:election|president|government|parliament|congress|senate|minister|policy|law)\b`), 0.7, 0.7, 0.6},
		{model.DomainTechnology, regexp.MustCompile(`(?i)\b(?:technology|software|hardware|internet|computer|smartphone|artificial intelligence)\b`), 0.7, 0.6, 0.5},
	}

	yearPattern   = regexp.MustCompile(`\b(?:1[5-9]\d{2}|20\d{2})\b`)
	numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*\s?(?:%|percent|million|billion)?`)
	namePattern   = regexp.MustCompile(`[A-Z][a-z]+(?:\s+(?:of\s+)?[A-Z][a-z]+)*`)
)

// ClaimDetector finds check-worthy sentences with keyword, number and
// domain heuristics. It needs no network access and implements the claim
// detection stage for offline runs.
type ClaimDetector struct {
	minLen int
	maxLen int
}

// NewClaimDetector creates a new heuristic claim detector
func NewClaimDetector() *ClaimDetector {
	return &ClaimDetector{
		minLen: 20,
		maxLen: 500,
	}
}

// Detect scores every sentence of text. HTML input is reduced to its
// visible text first. Excluded sentences (questions, opinions, requests)
// are not returned; everything else is, in text order.
func (d *ClaimDetector) Detect(ctx context.Context, text string) ([]model.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = Sanitize(text)
	sentences := SplitSentences(text, d.minLen, d.maxLen)

	var claims []model.Claim
	for i, sentence := range sentences {
		worthiness, domain, heuristic, ok := d.Score(sentence)
		if !ok {
			continue
		}

		claim := model.Claim{
			Text:            sentence,
			Domain:          domain,
			CheckWorthiness: worthiness,
			Entities:        Entities(sentence),
			Heuristic:       heuristic,
		}
		if i > 0 {
			claim.Context = sentences[i-1]
		}
		claims = append(claims, claim)
	}

	return dedupeClaims(claims), nil
}

// Extract detects claims in an HTML document
func (d *ClaimDetector) Extract(htmlContent string) ([]model.Claim, error) {
	text, err := VisibleText(htmlContent)
	if err != nil {
		return nil, err
	}
	return d.Detect(context.Background(), text)
}

// Score returns the check-worthiness of one sentence, its domain and the
// strongest indicator. ok is false for excluded sentences.
//
// Worthiness is 0.4*specificity + 0.3*public interest + 0.3*impact.
func (d *ClaimDetector) Score(sentence string) (worthiness float64, domain model.Domain, heuristic string, ok bool) {
	for _, p := range exclusionPatterns {
		if p.MatchString(sentence) {
			return 0, "", "", false
		}
	}

	specificity, publicInterest, impact := 0.3, 0.4, 0.4
	heuristic = "none"

	for _, ind := range factualIndicators {
		if ind.pattern.MatchString(sentence) && ind.score > specificity {
			specificity = ind.score
			heuristic = ind.name
		}
	}

	domain = model.DomainOther
	for _, rule := range domainRules {
		if !rule.pattern.MatchString(sentence) {
			continue
		}
		domain = rule.domain
		specificity = math.Max(specificity, rule.specificity)
		publicInterest = math.Max(publicInterest, rule.publicImpact)
		impact = math.Max(impact, rule.impact)
		heuristic = heuristic + ",domain:" + string(rule.domain)
		break
	}

	for _, ind := range opinionIndicators {
		if ind.pattern.MatchString(sentence) {
			specificity = math.Max(0, specificity+ind.score)
		}
	}

	worthiness = specificity*0.4 + publicInterest*0.3 + impact*0.3
	return math.Round(worthiness*100) / 100, domain, heuristic, true
}

// Entities picks out years, quantities and capitalised names
func Entities(sentence string) []model.Entity {
	var entities []model.Entity
	seen := make(map[string]bool)
	add := func(text string, typ model.EntityType) {
		text = strings.TrimSpace(text)
		if text == "" || seen[text] || len(entities) >= 8 {
			return
		}
		seen[text] = true
		entities = append(entities, model.Entity{Text: text, Type: typ})
	}

	for _, y := range yearPattern.FindAllString(sentence, -1) {
		add(y, model.EntityDate)
	}
	for _, n := range numberPattern.FindAllString(sentence, -1) {
		if !seen[strings.TrimSpace(n)] {
			add(n, model.EntityNumber)
		}
	}
	for _, loc := range namePattern.FindAllStringIndex(sentence, -1) {
		name := sentence[loc[0]:loc[1]]
		// A lone capitalised first word is usually just the sentence start
		if loc[0] == 0 && !strings.Contains(name, " ") {
			continue
		}
		for _, article := range []string{"The ", "A ", "An "} {
			name = strings.TrimPrefix(name, article)
		}
		add(name, model.EntityOther)
	}

	return entities
}

// dedupeClaims removes duplicate claims
func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := claim.Key()
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
