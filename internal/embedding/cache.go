package embedding

import (
	"fmt"
	"sync/atomic"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/search"
	"github.com/engramhq/engram/internal/store"
)

// CachedEmbedder wraps a Provider with content-hash caching. Identical text
// under the same provider/model never re-calls the provider. Hit and miss
// counters are process-wide for observability.
type CachedEmbedder struct {
	provider Provider
	cache    *store.EmbeddingCacheStore
	dim      int
	enabled  bool

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedEmbedder(provider Provider, cache *store.EmbeddingCacheStore, dim int, enabled bool) *CachedEmbedder {
	return &CachedEmbedder{
		provider: provider,
		cache:    cache,
		dim:      dim,
		enabled:  enabled,
	}
}

// Embed returns the embedding and token count for text, consulting the cache
// first. The Querier lets cache traffic join an open transaction so a rolled
// back index operation also rolls back the cache inserts it caused.
func (e *CachedEmbedder) Embed(q store.Querier, text string) ([]float32, int, error) {
	if !e.enabled {
		vec, err := e.provider.Embed(text)
		if err != nil {
			return nil, 0, err
		}
		return vec, EstimateTokens(text), nil
	}

	hash := ContentHash(text)

	entry, err := e.cache.Get(q, e.provider.Name(), e.provider.Model(), hash)
	if err != nil {
		return nil, 0, fmt.Errorf("cache lookup: %w", err)
	}
	if entry != nil {
		e.hits.Add(1)
		return search.DecodeVector(entry.Embedding), entry.TokenCount, nil
	}

	vec, err := e.provider.Embed(text)
	if err != nil {
		return nil, 0, err
	}
	e.misses.Add(1)

	tokens := EstimateTokens(text)
	err = e.cache.Put(q, &models.EmbeddingCacheEntry{
		Provider:    e.provider.Name(),
		Model:       e.provider.Model(),
		ContentHash: hash,
		Embedding:   search.Vector(vec).Encode(),
		Dimension:   e.dim,
		TokenCount:  tokens,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("cache store: %w", err)
	}

	return vec, tokens, nil
}

// Stats reports the process-wide hit/miss counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

func (e *CachedEmbedder) Stats() Stats {
	hits := e.hits.Load()
	misses := e.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}
