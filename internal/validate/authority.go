// Package validate grades evidence sources by authority.
package validate

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/verifact/internal/model"
)

// AuthorityClassifier classifies sources into authority tiers.
// It is immutable after construction and safe for concurrent use.
type AuthorityClassifier struct {
	config       model.AuthorityConfig
	domainMap    map[string]model.AuthorityTier
	suffixes     []domainSuffix // longest first
	pathPatterns []compiledPattern
}

type domainSuffix struct {
	domain string
	tier   model.AuthorityTier
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
}

// NewAuthorityClassifier creates a new authority classifier. A nil config
// selects the default trusted domains.
func NewAuthorityClassifier(config *model.AuthorityConfig) *AuthorityClassifier {
	if config == nil {
		defaults := model.DefaultConfig().Authority
		config = &defaults
	}

	a := &AuthorityClassifier{
		config:    *config,
		domainMap: make(map[string]model.AuthorityTier),
	}

	for host, tier := range config.DomainMap {
		a.domainMap[normalizeHost(host)] = ParseTier(tier)
	}
	for _, d := range config.PrimaryDomains {
		a.suffixes = append(a.suffixes, domainSuffix{domain: normalizeHost(d), tier: model.TierPrimary})
	}
	for _, d := range config.SecondaryDomains {
		a.suffixes = append(a.suffixes, domainSuffix{domain: normalizeHost(d), tier: model.TierSecondary})
	}
	// The most specific domain wins, so bbc.co.uk beats co.uk
	sort.SliceStable(a.suffixes, func(i, j int) bool {
		return len(a.suffixes[i].domain) > len(a.suffixes[j].domain)
	})

	// Invalid patterns are skipped
	for _, pp := range config.PathPatterns {
		if re, err := regexp.Compile(pp.Pattern); err == nil {
			a.pathPatterns = append(a.pathPatterns, compiledPattern{pattern: re, tier: ParseTier(pp.Tier)})
		}
	}

	return a
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.TierTertiary
	}

	host := normalizeHost(parsed.Hostname())

	if tier, ok := a.domainMap[host]; ok {
		return tier
	}

	for _, s := range a.suffixes {
		if host == s.domain || strings.HasSuffix(host, "."+s.domain) {
			return s.tier
		}
	}

	for _, cp := range a.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.tier
		}
	}

	// Common TLDs that often indicate authority
	for _, suffix := range []string{".gov", ".edu", ".ac.uk", ".int", ".mil"} {
		if strings.HasSuffix(host, suffix) {
			return model.TierPrimary
		}
	}

	return model.TierTertiary
}

// Describe fills in the host and tier of a source reference
func (a *AuthorityClassifier) Describe(ref model.SourceRef) model.SourceRef {
	if parsed, err := url.Parse(ref.URL); err == nil && ref.Host == "" {
		ref.Host = normalizeHost(parsed.Hostname())
	}
	ref.Authority = a.Classify(ref.URL)
	return ref
}

// Annotate classifies the source of every evidence item in place
func (a *AuthorityClassifier) Annotate(evidence []model.Evidence) {
	for i := range evidence {
		evidence[i].Source = a.Describe(evidence[i].Source)
	}
}

// Rank orders evidence by authority tier, then by relevance. The sort is
// stable so equally ranked items keep their retrieval order.
func Rank(evidence []model.Evidence) {
	sort.SliceStable(evidence, func(i, j int) bool {
		ti, tj := rankOf(evidence[i].Source.Authority), rankOf(evidence[j].Source.Authority)
		if ti != tj {
			return ti < tj
		}
		return evidence[i].Relevance > evidence[j].Relevance
	})
}

func rankOf(t model.AuthorityTier) int {
	if t == model.TierUnknown {
		return int(model.TierTertiary) + 1
	}
	return int(t)
}

// ParseTier converts a tier name or number to an AuthorityTier.
// Unknown values are tertiary.
func ParseTier(tier string) model.AuthorityTier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}
