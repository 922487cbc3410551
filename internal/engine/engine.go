package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/search"
	"github.com/engramhq/engram/internal/store"
)

// Config tunes chunking, search, and cache maintenance.
type Config struct {
	ChunkTokenSize    int
	ChunkTokenOverlap int
	SearchMaxResults  int
	SearchMinScore    float64
	SnippetChars      int
	CacheMaxEntries   int
	CacheTTLDays      int
}

// Engine owns chunking, embedding, hybrid search, and virtual-file storage.
// It is the foundational service the indexer and consolidator call.
type Engine struct {
	db       *store.DB
	files    *store.FileStore
	chunks   *store.ChunkStore
	cache    *store.EmbeddingCacheStore
	embedder *embedding.CachedEmbedder
	searcher *search.HybridSearcher
	cfg      Config
	logger   *slog.Logger
}

func New(
	db *store.DB,
	files *store.FileStore,
	chunks *store.ChunkStore,
	cache *store.EmbeddingCacheStore,
	embedder *embedding.CachedEmbedder,
	searcher *search.HybridSearcher,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		db:       db,
		files:    files,
		chunks:   chunks,
		cache:    cache,
		embedder: embedder,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
	}
}

// IndexResult reports the outcome of an IndexContent call.
type IndexResult struct {
	FileID        string `json:"fileId"`
	ChunksCreated int    `json:"chunksCreated"`
	Unchanged     bool   `json:"unchanged"`
}

// IndexContent chunks, embeds, and persists content under (user, path).
// Identical content is an idempotent no-op: unchanged hash means no
// re-chunking and no re-embedding, ever. Otherwise the file row upsert,
// old-chunk deletion, and new-chunk insertion happen in one transaction so
// partial re-indexing is never observable.
func (e *Engine) IndexContent(userID, filePath, content string, source models.FileSource) (*IndexResult, error) {
	if userID == "" || filePath == "" {
		return nil, fmt.Errorf("userID and filePath are required")
	}
	if content == "" {
		return nil, fmt.Errorf("content must not be empty")
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("invalid source %q", source)
	}

	hash := embedding.ContentHash(content)

	existing, err := e.files.GetByPath(e.db, userID, filePath)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ContentHash == hash {
		return &IndexResult{FileID: existing.ID, ChunksCreated: 0, Unchanged: true}, nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	fileID, err := e.files.Upsert(tx, &models.MemoryFile{
		UserID:      userID,
		FilePath:    filePath,
		Source:      source,
		ContentHash: hash,
		SizeBytes:   len(content),
	})
	if err != nil {
		return nil, err
	}

	if err := e.chunks.DeleteByFile(tx, fileID); err != nil {
		return nil, err
	}

	pieces := SplitLines(content, e.cfg.ChunkTokenSize, e.cfg.ChunkTokenOverlap)
	for _, p := range pieces {
		vec, _, err := e.embedder.Embed(tx, p.EmbedText)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %s:%d-%d: %w", filePath, p.StartLine, p.EndLine, err)
		}
		chunk := &models.MemoryChunk{
			FileID:      fileID,
			UserID:      userID,
			ChunkRef:    fmt.Sprintf("%s:%d-%d", filePath, p.StartLine, p.EndLine),
			StartLine:   p.StartLine,
			EndLine:     p.EndLine,
			TokenCount:  p.TokenCount,
			Content:     p.Content,
			ContentHash: embedding.ContentHash(p.Content),
			Embedding:   search.Vector(vec).Encode(),
		}
		if err := e.chunks.Insert(tx, chunk); err != nil {
			return nil, err
		}
	}

	if err := e.files.SetChunkCount(tx, fileID, len(pieces)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit index transaction: %w", err)
	}

	e.logger.Info("indexed content",
		"user_id", userID,
		"path", filePath,
		"source", source,
		"chunks", len(pieces),
		"bytes", len(content),
	)

	return &IndexResult{FileID: fileID, ChunksCreated: len(pieces)}, nil
}

// SearchOptions tunes one SearchMemory call; zero values fall back to the
// engine's configured defaults.
type SearchOptions struct {
	MaxResults   int
	MinScore     float64
	Sources      []models.FileSource
	VectorWeight float64
	TextWeight   float64
}

// SearchMemory embeds the query and runs the hybrid scorer.
func (e *Engine) SearchMemory(userID, query string, opts SearchOptions) ([]search.Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	vec, _, err := e.embedder.Embed(e.db, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = e.cfg.SearchMaxResults
	}
	minScore := opts.MinScore
	if minScore == 0 {
		minScore = e.cfg.SearchMinScore
	}

	return e.searcher.Search(search.Params{
		UserID:       userID,
		QueryText:    query,
		QueryVector:  vec,
		MaxResults:   maxResults,
		MinScore:     minScore,
		Sources:      opts.Sources,
		VectorWeight: opts.VectorWeight,
		TextWeight:   opts.TextWeight,
		SnippetChars: e.cfg.SnippetChars,
	})
}

// GetMemoryFile reconstructs a file's text from its chunks in line order,
// then slices the requested window. from is 1-based; lines <= 0 means to
// the end.
func (e *Engine) GetMemoryFile(userID, filePath string, from, lines int) (string, error) {
	file, err := e.files.GetByPath(e.db, userID, filePath)
	if err != nil {
		return "", err
	}
	if file == nil {
		return "", store.ErrNotFound
	}

	chunks, err := e.chunks.GetByFile(e.db, file.ID)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	full := strings.Join(parts, "\n")

	if from <= 1 && lines <= 0 {
		return full, nil
	}

	allLines := strings.Split(full, "\n")
	if from < 1 {
		from = 1
	}
	if from > len(allLines) {
		return "", nil
	}
	end := len(allLines)
	if lines > 0 && from-1+lines < end {
		end = from - 1 + lines
	}
	return strings.Join(allLines[from-1:end], "\n"), nil
}

// GetFile returns the file row for (user, path).
func (e *Engine) GetFile(userID, filePath string) (*models.MemoryFile, error) {
	file, err := e.files.GetByPath(e.db, userID, filePath)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, store.ErrNotFound
	}
	return file, nil
}

// GetFileChunks returns a file's chunk rows in line order.
func (e *Engine) GetFileChunks(fileID string) ([]models.MemoryChunk, error) {
	return e.chunks.GetByFile(e.db, fileID)
}

// ListMemoryFiles returns a user's files, optionally filtered by source.
func (e *Engine) ListMemoryFiles(userID string, source models.FileSource) ([]models.MemoryFile, error) {
	return e.files.List(e.db, userID, source)
}

// DeleteMemoryFile deletes the file row; chunk deletion cascades. Returns
// store.ErrNotFound when the path does not exist for the user.
func (e *Engine) DeleteMemoryFile(userID, filePath string) error {
	return e.files.Delete(e.db, userID, filePath)
}

// DeleteFileByID removes a file by id (used by session deletion).
func (e *Engine) DeleteFileByID(fileID string) error {
	return e.files.DeleteByID(e.db, fileID)
}

// CacheStats is the observability surface for the embedding cache.
type CacheStats struct {
	Entries         int     `json:"entries"`
	MaxEntries      int     `json:"maxEntries"`
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	HitRate         float64 `json:"hitRate"`
	TTLDaysAdvisory int     `json:"ttlDaysAdvisory"`
}

// GetCacheStats reports cache size and process-wide hit/miss counters.
func (e *Engine) GetCacheStats() (*CacheStats, error) {
	count, err := e.cache.Count(e.db)
	if err != nil {
		return nil, err
	}
	s := e.embedder.Stats()
	return &CacheStats{
		Entries:         count,
		MaxEntries:      e.cfg.CacheMaxEntries,
		Hits:            s.Hits,
		Misses:          s.Misses,
		HitRate:         s.HitRate,
		TTLDaysAdvisory: e.cfg.CacheTTLDays,
	}, nil
}

// CleanupCache evicts least-recently/least-frequently used cache entries
// down to maxEntries (0 means the configured bound) and returns the number
// removed.
func (e *Engine) CleanupCache(maxEntries int) (int, error) {
	if maxEntries <= 0 {
		maxEntries = e.cfg.CacheMaxEntries
	}
	removed, err := e.cache.Cleanup(e.db, maxEntries)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.logger.Info("embedding cache cleanup", "removed", removed, "max_entries", maxEntries)
	}
	return removed, nil
}
