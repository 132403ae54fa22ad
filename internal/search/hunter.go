package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/verifact/internal/extract"
	"github.com/ppiankov/verifact/internal/logging"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/validate"
)

var contradictionPattern = regexp.MustCompile(`(?i)\b(?:false|myth|debunked|no evidence|not true|incorrect|inaccurate|misleading|hoax|contrary to|disproven)\b`)

// WebHunter gathers evidence by searching the web for a claim and, when a
// fetcher is configured, pulling the best matching passages from each hit.
// Without a fetcher the search snippets are used as evidence.
type WebHunter struct {
	searcher    Searcher
	fetcher     *Fetcher
	passages    *extract.PassageExtractor
	authority   *validate.AuthorityClassifier
	results     int
	perPage     int
	concurrency int
	logger      *slog.Logger
}

// HunterOption configures a WebHunter
type HunterOption func(*WebHunter)

// WithFetcher enables page fetching
func WithFetcher(f *Fetcher) HunterOption {
	return func(h *WebHunter) { h.fetcher = f }
}

// WithAuthority sets the source classifier
func WithAuthority(a *validate.AuthorityClassifier) HunterOption {
	return func(h *WebHunter) { h.authority = a }
}

// WithResults sets how many search hits are requested
func WithResults(n int) HunterOption {
	return func(h *WebHunter) {
		if n > 0 {
			h.results = n
		}
	}
}

// WithHunterLogger sets the logger
func WithHunterLogger(l *slog.Logger) HunterOption {
	return func(h *WebHunter) { h.logger = l }
}

// NewWebHunter creates a web evidence hunter
func NewWebHunter(searcher Searcher, opts ...HunterOption) *WebHunter {
	h := &WebHunter{
		searcher:    searcher,
		passages:    extract.NewPassageExtractor(),
		results:     5,
		perPage:     2,
		concurrency: 3,
		logger:      logging.New("search"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.authority == nil {
		h.authority = validate.NewAuthorityClassifier(nil)
	}
	return h
}

// Gather implements the evidence gathering stage. Evidence is ordered by
// source authority, then relevance.
func (h *WebHunter) Gather(ctx context.Context, claim model.Claim) ([]model.Evidence, error) {
	results, err := h.searcher.Search(ctx, Query(claim), h.results)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	perResult := make([][]model.Evidence, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, r := range results {
		g.Go(func() error {
			perResult[i] = h.fromResult(gctx, claim, r)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var evidence []model.Evidence
	for _, items := range perResult {
		evidence = append(evidence, items...)
	}

	h.authority.Annotate(evidence)
	validate.Rank(evidence)
	return evidence, nil
}

func (h *WebHunter) fromResult(ctx context.Context, claim model.Claim, r Result) []model.Evidence {
	if h.fetcher != nil {
		page, err := h.fetcher.FetchWithRetry(ctx, r.Link)
		if err == nil {
			if items := h.fromPage(claim, r, page); len(items) > 0 {
				return items
			}
		} else {
			h.logger.Debug("page fetch failed, using snippet", "url", r.Link, "error", err)
		}
	}

	snippet := strings.TrimSpace(r.Snippet)
	if snippet == "" {
		return nil
	}
	return []model.Evidence{{
		Text:      snippet,
		Source:    model.SourceRef{URL: r.Link, Title: r.Title},
		Relevance: round2(extract.Relevance(claim.Text, snippet)),
		Stance:    StanceOf(snippet),
	}}
}

func (h *WebHunter) fromPage(claim model.Claim, r Result, page *Page) []model.Evidence {
	title := page.Title
	if title == "" {
		title = r.Title
	}

	var items []model.Evidence
	for _, p := range h.passages.Extract(page.Text, claim.Text, h.perPage) {
		items = append(items, model.Evidence{
			Text:      p.Text,
			Source:    model.SourceRef{URL: r.Link, Title: title},
			Relevance: round2(p.Relevance),
			Stance:    StanceOf(p.Text),
		})
	}
	return items
}

// Query builds the search query for a claim
func Query(claim model.Claim) string {
	q := strings.Join(strings.Fields(claim.Text), " ")
	if runes := []rune(q); len(runes) > 256 {
		q = string(runes[:256])
	}
	return q
}

// StanceOf guesses the stance of a passage from refutation vocabulary.
// Passages without it are contextual.
func StanceOf(text string) model.Stance {
	if contradictionPattern.MatchString(text) {
		return model.StanceContradicting
	}
	return model.StanceContextual
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
