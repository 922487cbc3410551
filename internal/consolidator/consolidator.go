// Package consolidator runs the conversation-to-durable-knowledge pipeline:
// pull pending indexed sessions, extract facts, deduplicate against stored
// facts, persist the genuinely new ones, and regenerate the canonical
// memory document.
package consolidator

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/extractor"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/search"
	"github.com/engramhq/engram/internal/store"
)

// Config tunes the pipeline.
type Config struct {
	MinFactConfidence   float64
	DedupThreshold      float64 // embedding similarity above which a new fact merges into a stored one
	MinImportanceForDoc float64
	MaxFactsPerCall     int
	SessionDelay        time.Duration
}

// Consolidator orchestrates consolidation runs.
type Consolidator struct {
	db          *store.DB
	engine      *engine.Engine
	extractor   *extractor.Extractor
	embedder    *embedding.CachedEmbedder
	facts       *store.FactStore
	sessions    *store.SessionStore
	jobs        *store.JobStore
	userConfigs *store.UserConfigStore
	cfg         Config
	logger      *slog.Logger
}

func New(
	db *store.DB,
	eng *engine.Engine,
	ext *extractor.Extractor,
	embedder *embedding.CachedEmbedder,
	facts *store.FactStore,
	sessions *store.SessionStore,
	jobs *store.JobStore,
	userConfigs *store.UserConfigStore,
	cfg Config,
	logger *slog.Logger,
) *Consolidator {
	if cfg.DedupThreshold == 0 {
		cfg.DedupThreshold = 0.9
	}
	if cfg.MinFactConfidence == 0 {
		cfg.MinFactConfidence = 0.6
	}
	if cfg.MinImportanceForDoc == 0 {
		cfg.MinImportanceForDoc = 0.5
	}
	if cfg.SessionDelay == 0 {
		cfg.SessionDelay = 250 * time.Millisecond
	}
	return &Consolidator{
		db:          db,
		engine:      eng,
		extractor:   ext,
		embedder:    embedder,
		facts:       facts,
		sessions:    sessions,
		jobs:        jobs,
		userConfigs: userConfigs,
		cfg:         cfg,
		logger:      logger,
	}
}

// Options tunes one consolidation run.
type Options struct {
	SessionIDs       []string // explicit targets; empty means all pending
	RegenerateMemory bool     // rebuild MEMORY.md when new facts were stored
}

// Result reports one consolidation run.
type Result struct {
	JobID            string `json:"jobId"`
	SessionsTotal    int    `json:"sessionsTotal"`
	SessionsOK       int    `json:"sessionsOk"`
	FactsExtracted   int    `json:"factsExtracted"`
	FactsStored      int    `json:"factsStored"`
	FactsMerged      int    `json:"factsMerged"`
	ChunksProcessed  int    `json:"chunksProcessed"`
	TotalChunks      int    `json:"totalChunks"`
	MemoryDocUpdated bool   `json:"memoryDocUpdated"`
}

// Consolidate runs one full pipeline for a user. Per-session failures are
// logged and skipped; an unhandled failure in the outer pipeline marks the
// job failed with its error message and is returned to the caller.
func (c *Consolidator) Consolidate(userID string, opts Options) (*Result, error) {
	job, err := c.jobs.Create(c.db, userID)
	if err != nil {
		return nil, err
	}
	if err := c.jobs.MarkRunning(c.db, job.ID); err != nil {
		return nil, err
	}

	result, err := c.run(userID, job.ID, opts)
	if err != nil {
		if markErr := c.jobs.MarkFailed(c.db, job.ID, err.Error()); markErr != nil {
			c.logger.Error("failed to mark job failed", "job_id", job.ID, "error", markErr)
		}
		return nil, err
	}

	if err := c.jobs.MarkCompleted(c.db, job.ID,
		result.FactsExtracted, result.FactsMerged, result.ChunksProcessed, result.TotalChunks); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Consolidator) run(userID, jobID string, opts Options) (*Result, error) {
	result := &Result{JobID: jobID}

	sessions, err := c.resolveSessions(userID, opts.SessionIDs)
	if err != nil {
		return nil, err
	}
	result.SessionsTotal = len(sessions)

	type sessionFacts struct {
		session models.IndexedSession
		facts   []extractor.Fact
	}
	var processed []sessionFacts
	var candidates []extractor.Fact

	for i, sess := range sessions {
		if i > 0 && c.cfg.SessionDelay > 0 {
			time.Sleep(c.cfg.SessionDelay)
		}

		chunks, err := c.engine.GetFileChunks(sess.FileID)
		if err != nil {
			c.logger.Error("consolidation: loading session chunks failed, skipping",
				"session_id", sess.SessionID, "error", err)
			continue
		}
		result.TotalChunks += len(chunks)

		parts := make([]string, len(chunks))
		for j, ch := range chunks {
			parts[j] = ch.Content
		}

		extracted, err := c.extractor.ExtractFacts(strings.Join(parts, "\n"), extractor.Options{
			MaxFacts:      c.cfg.MaxFactsPerCall,
			MinConfidence: c.cfg.MinFactConfidence,
		})
		if err != nil {
			c.logger.Error("consolidation: extraction failed, skipping session",
				"session_id", sess.SessionID, "error", err)
			continue
		}
		result.ChunksProcessed += len(chunks)
		result.FactsExtracted += len(extracted.Facts)

		processed = append(processed, sessionFacts{session: sess, facts: extracted.Facts})
		candidates = append(candidates, extracted.Facts...)
	}
	result.SessionsOK = len(processed)

	candidates = extractor.DedupFacts(candidates)

	stored, err := c.facts.GetWithEmbeddings(c.db, userID)
	if err != nil {
		return nil, err
	}

	sourceFileID := ""
	if len(processed) == 1 {
		sourceFileID = processed[0].session.FileID
	}

	newlyStored := 0
	for _, cand := range candidates {
		vec, _, err := c.embedder.Embed(c.db, cand.Content)
		if err != nil {
			return nil, fmt.Errorf("embed fact: %w", err)
		}

		if match := c.findStoredDuplicate(stored, cand, vec); match != nil {
			// Merge: confidence only ever moves upward.
			if cand.Confidence > match.Confidence {
				if err := c.facts.UpdateConfidence(c.db, match.ID, cand.Confidence); err != nil {
					return nil, err
				}
			}
			result.FactsMerged++
			continue
		}

		fact := &models.MemoryFact{
			UserID:       userID,
			FactType:     cand.Type,
			Content:      cand.Content,
			Confidence:   cand.Confidence,
			Importance:   seedImportance(cand.Confidence),
			Embedding:    search.Vector(vec).Encode(),
			SourceFileID: sourceFileID,
		}
		if err := c.facts.Insert(c.db, fact); err != nil {
			return nil, err
		}
		stored = append(stored, *fact)
		newlyStored++
	}
	result.FactsStored = newlyStored

	// Stamp every processed session completed with its per-session count.
	for _, p := range processed {
		if err := c.sessions.MarkConsolidated(c.db, p.session.ID, len(p.facts)); err != nil {
			return nil, err
		}
	}

	if newlyStored > 0 && opts.RegenerateMemory {
		if err := c.regenerateMemoryDocument(userID); err != nil {
			return nil, err
		}
		result.MemoryDocUpdated = true
	}

	if err := c.userConfigs.StampConsolidated(c.db, userID, time.Now().Unix()); err != nil {
		return nil, err
	}

	c.logger.Info("consolidation complete",
		"user_id", userID,
		"job_id", jobID,
		"sessions", result.SessionsOK,
		"facts_extracted", result.FactsExtracted,
		"facts_stored", result.FactsStored,
		"facts_merged", result.FactsMerged,
	)

	return result, nil
}

func (c *Consolidator) resolveSessions(userID string, sessionIDs []string) ([]models.IndexedSession, error) {
	if len(sessionIDs) == 0 {
		return c.sessions.ListPending(c.db, userID)
	}
	var out []models.IndexedSession
	for _, sid := range sessionIDs {
		s, err := c.sessions.Get(c.db, userID, sid)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("session %s: %w", sid, store.ErrNotFound)
		}
		out = append(out, *s)
	}
	return out, nil
}

// findStoredDuplicate looks for an already-stored fact of the same type
// above the embedding similarity threshold.
func (c *Consolidator) findStoredDuplicate(stored []models.MemoryFact, cand extractor.Fact, vec search.Vector) *models.MemoryFact {
	bestSim := 0.0
	var best *models.MemoryFact
	for i := range stored {
		if stored[i].FactType != cand.Type {
			continue
		}
		sim := vec.Cosine(search.DecodeVector(stored[i].Embedding))
		if sim > bestSim {
			bestSim = sim
			best = &stored[i]
		}
	}
	if bestSim >= c.cfg.DedupThreshold {
		return best
	}
	return nil
}

// seedImportance derives the initial importance of a brand-new fact from
// its confidence; rescoring refines it later.
func seedImportance(confidence float64) float64 {
	return store.ImportanceScore(confidence, 0, 0)
}

func (c *Consolidator) regenerateMemoryDocument(userID string) error {
	facts, err := c.facts.List(c.db, userID, "", c.cfg.MinImportanceForDoc, 0)
	if err != nil {
		return err
	}
	doc := RenderMemoryDocument(facts, time.Now())
	if _, err := c.engine.IndexContent(userID, MemoryDocumentPath, doc, models.SourceMemory); err != nil {
		return fmt.Errorf("re-index memory document: %w", err)
	}
	return nil
}

// GetFacts lists a user's facts filtered by type and minimum importance.
func (c *Consolidator) GetFacts(userID string, factType models.FactType, minImportance float64, limit int) ([]models.MemoryFact, error) {
	return c.facts.List(c.db, userID, factType, minImportance, limit)
}

// FactSearchResult pairs a fact with its embedding similarity to the query.
type FactSearchResult struct {
	Fact       models.MemoryFact `json:"fact"`
	Similarity float64           `json:"similarity"`
}

// SearchFacts runs embedding-similarity search over stored facts.
func (c *Consolidator) SearchFacts(userID, query string, limit int, minSimilarity float64) ([]FactSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, _, err := c.embedder.Embed(c.db, query)
	if err != nil {
		return nil, fmt.Errorf("embed fact query: %w", err)
	}

	stored, err := c.facts.GetWithEmbeddings(c.db, userID)
	if err != nil {
		return nil, err
	}

	var results []FactSearchResult
	qvec := search.Vector(vec)
	for _, f := range stored {
		sim := qvec.Cosine(search.DecodeVector(f.Embedding))
		if sim < minSimilarity {
			continue
		}
		results = append(results, FactSearchResult{Fact: f, Similarity: sim})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		if err := c.facts.TouchAccess(c.db, r.Fact.ID); err != nil {
			c.logger.Warn("fact access bump failed", "fact_id", r.Fact.ID, "error", err)
		}
	}
	return results, nil
}

// UpdateImportanceScores recomputes every fact's importance for a user.
func (c *Consolidator) UpdateImportanceScores(userID string) (int, error) {
	return c.facts.RecomputeImportance(c.db, userID)
}

// DeleteFact hard-deletes a fact scoped to its owning user.
func (c *Consolidator) DeleteFact(userID, factID string) error {
	return c.facts.Delete(c.db, userID, factID)
}

// GetJobs lists a user's consolidation jobs, newest first.
func (c *Consolidator) GetJobs(userID string, limit int) ([]models.ConsolidationJob, error) {
	return c.jobs.List(c.db, userID, limit)
}

// UsersWithFacts exposes the set of users owning facts, for the rescoring
// sweep.
func (c *Consolidator) UsersWithFacts() ([]string, error) {
	return c.facts.UsersWithFacts(c.db)
}

// PurgeExpiredFacts deletes facts whose expiry has passed.
func (c *Consolidator) PurgeExpiredFacts() (int, error) {
	return c.facts.PurgeExpired(c.db)
}
