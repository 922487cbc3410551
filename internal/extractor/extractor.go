// Package extractor turns free text into scored, typed facts via a
// chat-completion call with strict post-processing.
package extractor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/llm"
	"github.com/engramhq/engram/internal/models"
)

// Fact is one extracted candidate before persistence.
type Fact struct {
	Type       models.FactType `json:"type"`
	Content    string          `json:"content"`
	Confidence float64         `json:"confidence"`
}

// Result carries one extraction call's output.
type Result struct {
	Facts      []Fact `json:"facts"`
	Summary    string `json:"summary"`
	TokenCount int    `json:"tokenCount"`
}

// Options tunes extraction.
type Options struct {
	MaxFacts      int
	MinConfidence float64
	Temperature   float64
}

// Extractor wraps the chat client with the fixed extraction schema.
type Extractor struct {
	client     llm.Client
	chunkDelay time.Duration
	logger     *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Extractor {
	return &Extractor{
		client:     client,
		chunkDelay: 200 * time.Millisecond,
		logger:     logger,
	}
}

// rawResponse mirrors the JSON shape requested from the model. Type labels
// arrive free-form and are normalized afterwards.
type rawResponse struct {
	Facts []struct {
		Type       string  `json:"type"`
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
	} `json:"facts"`
	Summary string `json:"summary"`
}

// ExtractFacts runs one extraction call. A malformed or missing model
// response yields an empty fact list; a hard provider error is surfaced to
// the caller.
func (e *Extractor) ExtractFacts(text string, opts Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{}, nil
	}

	maxFacts := opts.MaxFacts
	if maxFacts <= 0 {
		maxFacts = 20
	}
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = 0.6
	}

	resp, err := e.client.Chat([]llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(text, maxFacts)},
	}, llm.Options{Temperature: opts.Temperature, JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("extraction chat call: %w", err)
	}

	result := &Result{TokenCount: resp.TotalTokens}

	var raw rawResponse
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		e.logger.Warn("extraction response was not valid JSON, returning no facts", "error", err)
		return result, nil
	}
	result.Summary = raw.Summary

	for _, rf := range raw.Facts {
		f := Fact{
			Type:       NormalizeType(rf.Type),
			Content:    strings.TrimSpace(rf.Content),
			Confidence: clamp01(rf.Confidence),
		}
		if f.Confidence < minConfidence {
			continue
		}
		if err := ValidateFact(f); err != nil {
			e.logger.Debug("dropping invalid extracted fact", "error", err, "content", f.Content)
			continue
		}
		result.Facts = append(result.Facts, f)
		if len(result.Facts) >= maxFacts {
			break
		}
	}

	result.Facts = DedupFacts(result.Facts)
	return result, nil
}

// ExtractFactsFromChunks runs extraction chunk by chunk with a small
// inter-call delay to stay under provider rate limits. A failure on one
// chunk is logged and skipped. The accumulated output is deduplicated with
// the same heuristic as AreSimilarFacts.
func (e *Extractor) ExtractFactsFromChunks(chunks []string, opts Options) (*Result, error) {
	out := &Result{}
	for i, chunk := range chunks {
		if i > 0 && e.chunkDelay > 0 {
			time.Sleep(e.chunkDelay)
		}
		res, err := e.ExtractFacts(chunk, opts)
		if err != nil {
			e.logger.Error("chunk extraction failed, skipping", "chunk", i, "error", err)
			continue
		}
		out.Facts = append(out.Facts, res.Facts...)
		out.TokenCount += res.TokenCount
		if out.Summary == "" {
			out.Summary = res.Summary
		}
	}
	out.Facts = DedupFacts(out.Facts)
	return out, nil
}

// ValidateFact enforces the fact schema: at least three words of content,
// a canonical type, and confidence in [0,1].
func ValidateFact(f Fact) error {
	if len(strings.Fields(f.Content)) < 3 {
		return fmt.Errorf("fact content must be at least 3 words")
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("invalid fact type %q", f.Type)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", f.Confidence)
	}
	return nil
}

// AreSimilarFacts reports whether two facts are duplicates: same type and
// either an exact normalized-text match or word-set Jaccard similarity
// above 0.7. A cheap, explainable pre-filter; embedding similarity against
// stored facts happens later in the consolidator.
func AreSimilarFacts(a, b Fact) bool {
	if a.Type != b.Type {
		return false
	}
	na, nb := normalizeText(a.Content), normalizeText(b.Content)
	if na == nb {
		return true
	}
	return jaccard(wordSet(na), wordSet(nb)) > 0.7
}

// DedupFacts collapses duplicate pairs within a batch, keeping the higher
// confidence of each pair.
func DedupFacts(facts []Fact) []Fact {
	var out []Fact
	for _, f := range facts {
		dup := false
		for i := range out {
			if AreSimilarFacts(out[i], f) {
				if f.Confidence > out[i].Confidence {
					out[i] = f
				}
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, `.,;:!?"'()[]{}`)
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
