package search

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/store"
)

// HybridSearcher merges brute-force cosine similarity over chunk vectors with
// BM25 keyword matches (FTS5) into one weighted score per chunk.
type HybridSearcher struct {
	chunks       *store.ChunkStore
	db           *store.DB
	vectorWeight float64
	textWeight   float64
	logger       *slog.Logger
}

func NewHybridSearcher(db *store.DB, chunks *store.ChunkStore, vectorWeight, textWeight float64, logger *slog.Logger) *HybridSearcher {
	return &HybridSearcher{
		chunks:       chunks,
		db:           db,
		vectorWeight: vectorWeight,
		textWeight:   textWeight,
		logger:       logger,
	}
}

// Params controls how a search is executed. Request weights are normalized
// to sum to 1.0; a pair that cannot be (both zero, or either negative) falls
// back to the searcher's configured pair.
type Params struct {
	UserID       string
	QueryText    string
	QueryVector  Vector
	MaxResults   int
	MinScore     float64
	Sources      []models.FileSource
	VectorWeight float64
	TextWeight   float64
	SnippetChars int
}

// Result is one merged, scored search hit. Both component scores are kept
// for debuggability.
type Result struct {
	ChunkRef    string             `json:"chunkRef"`
	FilePath    string             `json:"filePath"`
	Source      models.FileSource  `json:"source"`
	StartLine   int                `json:"startLine"`
	EndLine     int                `json:"endLine"`
	Citation    string             `json:"citation"`
	Snippet     string             `json:"snippet"`
	VectorScore float64            `json:"vectorScore"`
	TextScore   float64            `json:"textScore"`
	Score       float64            `json:"score"`
}

// CombineScores applies the weighted hybrid formula.
func CombineScores(vectorScore, textScore, vectorWeight, textWeight float64) float64 {
	return vectorScore*vectorWeight + textScore*textWeight
}

// normalizeWeights rescales a request weight pair to sum to 1.0 so callers
// cannot inflate scores past the min-score filter. Unusable pairs fall back
// to the configured defaults.
func normalizeWeights(vw, tw, defVW, defTW float64) (float64, float64) {
	if vw < 0 || tw < 0 || vw+tw <= 0 {
		return defVW, defTW
	}
	sum := vw + tw
	return vw / sum, tw / sum
}

// Citation renders the "path#Lstart-Lend" reference for a line range,
// collapsing single-line ranges to "path#Lstart".
func Citation(path string, startLine, endLine int) string {
	if startLine == endLine {
		return fmt.Sprintf("%s#L%d", path, startLine)
	}
	return fmt.Sprintf("%s#L%d-L%d", path, startLine, endLine)
}

// Search runs the hybrid query. Search logging is best-effort and never
// fails the search itself.
func (h *HybridSearcher) Search(p Params) ([]Result, error) {
	start := time.Now()

	vw, tw := normalizeWeights(p.VectorWeight, p.TextWeight, h.vectorWeight, h.textWeight)
	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = 6
	}

	type merged struct {
		chunk       store.ChunkWithPath
		vectorScore float64
		textScore   float64
	}
	byID := make(map[string]*merged)

	// Vector side: brute-force cosine over stored chunk vectors.
	chunks, err := h.chunks.GetWithEmbeddings(h.db, p.UserID, p.Sources)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	for _, c := range chunks {
		vec := DecodeVector(c.Embedding)
		if len(vec) == 0 {
			continue
		}
		sim := p.QueryVector.Cosine(vec)
		if sim <= 0 {
			continue
		}
		byID[c.ID] = &merged{chunk: c, vectorScore: sim}
	}

	// Lexical side: FTS5 BM25, normalized to [0, 1] against the best rank.
	textResults, err := h.chunks.SearchText(h.db, p.UserID, p.QueryText, p.Sources, maxResults*3)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	maxRank := 0.0
	for _, r := range textResults {
		if r.Rank > maxRank {
			maxRank = r.Rank
		}
	}
	if maxRank > 0 {
		chunkByID := make(map[string]store.ChunkWithPath, len(chunks))
		for _, c := range chunks {
			chunkByID[c.ID] = c
		}
		for _, r := range textResults {
			score := r.Rank / maxRank
			if m, ok := byID[r.ChunkID]; ok {
				m.textScore = score
				continue
			}
			if c, ok := chunkByID[r.ChunkID]; ok {
				byID[r.ChunkID] = &merged{chunk: c, textScore: score}
			}
		}
	}

	results := make([]Result, 0, len(byID))
	for _, m := range byID {
		combined := CombineScores(m.vectorScore, m.textScore, vw, tw)
		if combined < p.MinScore {
			continue
		}
		results = append(results, Result{
			ChunkRef:    m.chunk.ChunkRef,
			FilePath:    m.chunk.FilePath,
			Source:      m.chunk.Source,
			StartLine:   m.chunk.StartLine,
			EndLine:     m.chunk.EndLine,
			Citation:    Citation(m.chunk.FilePath, m.chunk.StartLine, m.chunk.EndLine),
			Snippet:     SelectSnippet(m.chunk.Content, p.QueryText, p.SnippetChars),
			VectorScore: m.vectorScore,
			TextScore:   m.textScore,
			Score:       combined,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	h.logger.Info("search",
		"user_id", p.UserID,
		"query", p.QueryText,
		"results", len(results),
		"vector_weight", vw,
		"text_weight", tw,
		"min_score", p.MinScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return results, nil
}
