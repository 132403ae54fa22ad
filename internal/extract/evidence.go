package extract

import (
	"sort"
	"strings"
	"unicode"
)

// Passage is a span of page text scored against a claim
type Passage struct {
	Text      string
	Relevance float64
	Position  int // sentence index within the page
}

// PassageExtractor selects the sentences of a page that best match a claim
type PassageExtractor struct {
	minRelevance float64
	window       int
}

// NewPassageExtractor creates a new passage extractor
func NewPassageExtractor() *PassageExtractor {
	return &PassageExtractor{
		minRelevance: 0.15,
		window:       1,
	}
}

// Extract returns up to limit passages from text ordered by relevance.
// Each passage is a matching sentence joined with its neighbours.
func (e *PassageExtractor) Extract(text, claim string, limit int) []Passage {
	sentences := SplitSentences(text, 20, 600)
	claimTerms := terms(claim)
	if len(claimTerms) == 0 {
		return nil
	}

	var passages []Passage
	for i, s := range sentences {
		score := overlap(claimTerms, terms(s))
		if score < e.minRelevance {
			continue
		}

		lo := max(0, i-e.window)
		hi := min(len(sentences), i+e.window+1)
		passages = append(passages, Passage{
			Text:      strings.Join(sentences[lo:hi], " "),
			Relevance: score,
			Position:  i,
		})
	}

	sort.SliceStable(passages, func(a, b int) bool {
		return passages[a].Relevance > passages[b].Relevance
	})
	if limit > 0 && len(passages) > limit {
		passages = passages[:limit]
	}
	return passages
}

// Relevance scores how much of the claim's vocabulary a text covers, in [0,1]
func Relevance(claim, text string) float64 {
	return overlap(terms(claim), terms(text))
}

// overlap is the share of claim terms present in the candidate
func overlap(claimTerms, candidate map[string]bool) float64 {
	if len(claimTerms) == 0 {
		return 0
	}
	hits := 0
	for t := range claimTerms {
		if candidate[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(claimTerms))
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "on": true, "at": true, "for": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "it": true,
	"its": true, "that": true, "this": true, "as": true, "has": true, "have": true, "had": true,
	"than": true, "which": true, "who": true, "their": true, "there": true, "about": true,
}

func terms(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '%' && r != '.'
	}) {
		w = strings.Trim(w, ".")
		if w == "" || stopwords[w] || (len(w) < 2 && !unicode.IsDigit(rune(w[0]))) {
			continue
		}
		out[w] = true
	}
	return out
}
