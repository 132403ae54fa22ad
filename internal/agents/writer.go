package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/verifact/internal/llm"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/score"
)

// Writer judges claims with an LLM. In strict mode a verdict citing any
// URL outside the evidence is rejected. Every verdict carries a support
// index for the evidence it was judged on.
type Writer struct {
	provider llm.Provider
	strict   bool
	opts     Options
	scorer   *score.Scorer
}

// NewWriter creates an LLM verdict writer
func NewWriter(provider llm.Provider, strict bool, opts Options) *Writer {
	return &Writer{
		provider: provider,
		strict:   strict,
		opts:     opts,
		scorer:   score.NewScorer(opts.SupportTarget),
	}
}

type verdictReply struct {
	Verdict         string   `json:"verdict"`
	Confidence      float64  `json:"confidence"`
	Explanation     string   `json:"explanation"`
	Sources         []string `json:"sources"`
	EvidenceSummary string   `json:"evidence_summary"`
}

// Write implements the verdict generation stage. Without evidence the
// claim is unverifiable and the model is not consulted.
func (w *Writer) Write(ctx context.Context, claim model.Claim, evidence []model.Evidence) (model.Verdict, error) {
	support := w.scorer.Calculate(evidence)

	if len(evidence) == 0 {
		return model.Verdict{
			Claim:       claim.Text,
			Label:       model.VerdictUnverifiable,
			Confidence:  0.5,
			Explanation: "No evidence addressing this claim was found.",
			Sources:     []model.SourceRef{},
			Support:     &support,
		}, nil
	}

	resp, err := w.provider.Complete(ctx, llm.CompletionRequest{
		System:      writerSystem,
		Prompt:      writerPrompt(claim, evidence),
		Model:       w.opts.Model,
		MaxTokens:   w.opts.MaxTokens,
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return model.Verdict{}, err
	}

	var reply verdictReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		return model.Verdict{}, fmt.Errorf("verdict writer reply: %w", err)
	}

	label, ok := model.ParseVerdictLabel(reply.Verdict)
	if !ok {
		return model.Verdict{}, fmt.Errorf("verdict writer reply: unknown label %q", reply.Verdict)
	}

	allowed := model.SourceURLs(evidence)
	if w.strict {
		cited := append(append([]string(nil), reply.Sources...), llm.ExtractURLs(reply.Explanation+" "+reply.EvidenceSummary)...)
		if err := llm.CheckCitations(cited, allowed); err != nil {
			return model.Verdict{}, err
		}
	}

	return model.Verdict{
		Claim:           claim.Text,
		Label:           label,
		Confidence:      reply.Confidence,
		Explanation:     strings.TrimSpace(reply.Explanation),
		Sources:         citedSources(reply.Sources, evidence),
		EvidenceSummary: strings.TrimSpace(reply.EvidenceSummary),
		Support:         &support,
	}, nil
}

// citedSources resolves cited URLs to the evidence's source references,
// keeping title and authority
func citedSources(urls []string, evidence []model.Evidence) []model.SourceRef {
	byURL := make(map[string]model.SourceRef)
	for _, e := range evidence {
		key := strings.TrimSuffix(e.Source.URL, "/")
		if _, ok := byURL[key]; !ok {
			byURL[key] = e.Source
		}
	}

	seen := make(map[string]bool)
	sources := []model.SourceRef{}
	for _, u := range urls {
		key := strings.TrimSuffix(strings.TrimSpace(u), "/")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if ref, ok := byURL[key]; ok {
			sources = append(sources, ref)
		} else {
			sources = append(sources, model.SourceRef{URL: u})
		}
	}
	return sources
}
