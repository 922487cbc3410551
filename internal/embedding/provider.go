package embedding

import (
	"crypto/sha256"
	"fmt"
)

// Provider generates embedding vectors for text. Implementations must be
// deterministic enough that identical text is cache-safe under the same
// model.
type Provider interface {
	Embed(text string) ([]float32, error)
	Name() string
	Model() string
}

// ContentHash computes a SHA-256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}

// EstimateTokens approximates the token count of text. Roughly four
// characters per token for English prose, never below one for non-empty
// input.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
