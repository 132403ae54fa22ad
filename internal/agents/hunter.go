package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/verifact/internal/llm"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/validate"
)

// Hunter asks an LLM for evidence. Sources are classified by authority and
// ranked before they are returned.
type Hunter struct {
	provider  llm.Provider
	authority *validate.AuthorityClassifier
	limit     int
	opts      Options
}

// NewHunter creates an LLM evidence hunter. A nil classifier uses the
// default trusted domains.
func NewHunter(provider llm.Provider, authority *validate.AuthorityClassifier, limit int, opts Options) *Hunter {
	if authority == nil {
		authority = validate.NewAuthorityClassifier(nil)
	}
	if limit <= 0 {
		limit = 5
	}
	return &Hunter{provider: provider, authority: authority, limit: limit, opts: opts}
}

type evidenceReply struct {
	Evidence []struct {
		Text      string  `json:"text"`
		URL       string  `json:"url"`
		Title     string  `json:"title"`
		Relevance float64 `json:"relevance"`
		Stance    string  `json:"stance"`
	} `json:"evidence"`
}

// Gather implements the evidence gathering stage. Items without text or
// an http(s) source are dropped.
func (h *Hunter) Gather(ctx context.Context, claim model.Claim) ([]model.Evidence, error) {
	resp, err := h.provider.Complete(ctx, llm.CompletionRequest{
		System:      hunterSystem,
		Prompt:      hunterPrompt(claim, h.limit),
		Model:       h.opts.Model,
		MaxTokens:   h.opts.MaxTokens,
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	var reply evidenceReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		return nil, fmt.Errorf("evidence hunter reply: %w", err)
	}

	var evidence []model.Evidence
	for _, e := range reply.Evidence {
		text := strings.TrimSpace(e.Text)
		url := strings.TrimSpace(e.URL)
		if text == "" || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
			continue
		}
		evidence = append(evidence, model.Evidence{
			Text:      text,
			Source:    model.SourceRef{URL: url, Title: strings.TrimSpace(e.Title)},
			Relevance: math.Max(0, math.Min(1, e.Relevance)),
			Stance:    model.ParseStance(strings.ToLower(strings.TrimSpace(e.Stance))),
		})
	}

	h.authority.Annotate(evidence)
	validate.Rank(evidence)
	return evidence, nil
}
