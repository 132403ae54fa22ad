package model

// Evidence is a retrieved passage that bears on a claim
type Evidence struct {
	Text      string    `json:"text"`      // The passage itself
	Source    SourceRef `json:"source"`    // Where the passage came from
	Relevance float64   `json:"relevance"` // How directly it addresses the claim, in [0,1]
	Stance    Stance    `json:"stance"`    // supporting, contradicting, contextual
}

// SourceRef identifies a cited source
type SourceRef struct {
	URL       string        `json:"url"`
	Title     string        `json:"title,omitempty"`
	Host      string        `json:"host,omitempty"`
	Authority AuthorityTier `json:"authority,omitempty"` // Source authority classification
}

// Stance describes how a passage relates to a claim
type Stance string

const (
	StanceSupporting    Stance = "supporting"
	StanceContradicting Stance = "contradicting"
	StanceContextual    Stance = "contextual"
)

// ParseStance maps free-form stance labels onto a Stance.
// Unknown labels are treated as contextual.
func ParseStance(s string) Stance {
	switch s {
	case "supporting", "supports", "support":
		return StanceSupporting
	case "contradicting", "contradicts", "refuting", "refutes":
		return StanceContradicting
	default:
		return StanceContextual
	}
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Statutes, academic papers, official statistics
	TierSecondary AuthorityTier = 2 // Encyclopedias, fact-checkers, major publishers
	TierTertiary  AuthorityTier = 3 // Blogs, personal websites, forums
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// SourceURLs returns the distinct source URLs of the given evidence, in order
func SourceURLs(evidence []Evidence) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, e := range evidence {
		if e.Source.URL == "" || seen[e.Source.URL] {
			continue
		}
		seen[e.Source.URL] = true
		urls = append(urls, e.Source.URL)
	}
	return urls
}
