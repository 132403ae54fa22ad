// Package agents implements the pipeline stages on top of an LLM provider.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/verifact/internal/llm"
	"github.com/ppiankov/verifact/internal/model"
)

// Options tune a model-backed stage
type Options struct {
	Model     string
	MaxTokens int

	// SupportTarget is the evidence count that earns full coverage in a
	// verdict's support index. Only the writer reads it.
	SupportTarget int
}

// Detector finds claims with an LLM
type Detector struct {
	provider llm.Provider
	opts     Options
}

// NewDetector creates an LLM claim detector
func NewDetector(provider llm.Provider, opts Options) *Detector {
	return &Detector{provider: provider, opts: opts}
}

type entityReply struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type claimReply struct {
	Text            string        `json:"text"`
	Context         string        `json:"context"`
	Domain          string        `json:"domain"`
	CheckWorthiness float64       `json:"check_worthiness"`
	Entities        []entityReply `json:"entities"`
}

type claimsReply struct {
	Claims []claimReply `json:"claims"`
}

// Detect implements the claim detection stage. Unparseable replies are
// returned as errors so the stage is retried.
func (d *Detector) Detect(ctx context.Context, text string) ([]model.Claim, error) {
	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		System:      detectorSystem,
		Prompt:      detectorPrompt(text),
		Model:       d.opts.Model,
		MaxTokens:   d.opts.MaxTokens,
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	var reply claimsReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		// Some models answer with a bare array
		var list []claimReply
		if llm.DecodeJSON(resp.Text, &list) != nil {
			return nil, fmt.Errorf("claim detector reply: %w", err)
		}
		reply.Claims = list
	}

	claims := make([]model.Claim, 0, len(reply.Claims))
	for _, c := range reply.Claims {
		claim := model.Claim{
			Text:            strings.TrimSpace(c.Text),
			Context:         strings.TrimSpace(c.Context),
			Domain:          parseDomain(c.Domain),
			CheckWorthiness: c.CheckWorthiness,
		}
		for _, e := range c.Entities {
			if e.Text != "" {
				claim.Entities = append(claim.Entities, model.Entity{Text: e.Text, Type: parseEntityType(e.Type)})
			}
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

func parseDomain(s string) model.Domain {
	d := model.Domain(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case model.DomainPolitics, model.DomainEconomics, model.DomainHealth, model.DomainScience,
		model.DomainTechnology, model.DomainEnvironment, model.DomainStatistics:
		return d
	default:
		return model.DomainOther
	}
}

func parseEntityType(s string) model.EntityType {
	t := model.EntityType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case model.EntityPerson, model.EntityOrganization, model.EntityLocation, model.EntityDate, model.EntityNumber:
		return t
	default:
		return model.EntityOther
	}
}
