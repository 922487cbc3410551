// Package mock provides a deterministic embedding provider for tests and
// offline runs. Vectors are derived from a hash of the text, so identical
// text always embeds to identical vectors.
package mock

import (
	"hash/fnv"
	"math"
	"sync/atomic"
)

type Embedder struct {
	dimensions int
	calls      atomic.Int64
}

func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

func (m *Embedder) Name() string  { return "mock" }
func (m *Embedder) Model() string { return "mock-embed" }

// Calls reports how many times Embed has been invoked, letting tests assert
// that cache hits never reach the provider.
func (m *Embedder) Calls() int64 { return m.calls.Load() }

// Embed creates a deterministic unit vector from a hash of the text.
func (m *Embedder) Embed(text string) ([]float32, error) {
	m.calls.Add(1)

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Linear congruential step keeps generation cheap and reproducible.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
