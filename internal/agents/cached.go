package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/verifact/internal/cache"
	"github.com/ppiankov/verifact/internal/logging"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/pipeline"
)

// CachedHunter memoises another hunter's evidence per claim text. Empty
// results and failures are not cached.
type CachedHunter struct {
	next      pipeline.EvidenceHunter
	cache     cache.Cache
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewCachedHunter wraps next. namespace separates entries of different
// backends sharing one cache.
func NewCachedHunter(next pipeline.EvidenceHunter, c cache.Cache, namespace string, ttl time.Duration) *CachedHunter {
	return &CachedHunter{
		next:      next,
		cache:     c,
		namespace: namespace,
		ttl:       ttl,
		logger:    logging.New("cache"),
	}
}

// Gather returns cached evidence when present and otherwise delegates
func (h *CachedHunter) Gather(ctx context.Context, claim model.Claim) ([]model.Evidence, error) {
	key := cache.Key("evidence", h.namespace, claim.Key())

	if evidence, ok := cache.Load[[]model.Evidence](h.cache, key); ok {
		h.logger.Debug("evidence cache hit", "claim", claim.Text)
		return evidence, nil
	}

	evidence, err := h.next.Gather(ctx, claim)
	if err != nil || len(evidence) == 0 {
		return evidence, err
	}

	if err := cache.Store(h.cache, key, evidence, h.ttl); err != nil {
		h.logger.Warn("evidence cache write failed", "error", err)
	}
	return evidence, nil
}
