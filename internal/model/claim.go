package model

import "strings"

// Claim represents a factual assertion detected in the input text
type Claim struct {
	Text            string   `json:"text"`                // The claim text itself
	Context         string   `json:"context,omitempty"`   // Surrounding text that disambiguates the claim
	Domain          Domain   `json:"domain,omitempty"`    // Topic classification (e.g., "health")
	CheckWorthiness float64  `json:"check_worthiness"`    // Detector score in [0,1]
	Entities        []Entity `json:"entities,omitempty"`  // Named entities central to the claim
	Heuristic       string   `json:"heuristic,omitempty"` // Which rule produced it (offline detector only)
}

// Entity is a named thing mentioned by a claim
type Entity struct {
	Text string     `json:"text"`
	Type EntityType `json:"type,omitempty"`
}

// EntityType classifies an entity
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityDate         EntityType = "date"
	EntityNumber       EntityType = "number"
	EntityOther        EntityType = "other"
)

// Domain categorizes the subject area of a claim
type Domain string

const (
	DomainPolitics    Domain = "politics"
	DomainEconomics   Domain = "economics"
	DomainHealth      Domain = "health"
	DomainScience     Domain = "science"
	DomainTechnology  Domain = "technology"
	DomainEnvironment Domain = "environment"
	DomainStatistics  Domain = "statistics"
	DomainOther       Domain = "other"
)

// Key returns the normalized text used to detect duplicate claims
func (c Claim) Key() string {
	return strings.ToLower(strings.Join(strings.Fields(c.Text), " "))
}

// InUnitRange reports whether v lies in [0,1]
func InUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
