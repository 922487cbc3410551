package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/engramhq/engram/internal/models"
)

// EmbeddingCacheStore handles the persistent embedding cache. All methods
// take a Querier so cache reads and writes join the caller's transaction:
// a rolled-back index operation also rolls back any cache inserts it caused.
type EmbeddingCacheStore struct {
	db *DB
}

func NewEmbeddingCacheStore(db *DB) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db}
}

// Get returns a cached entry by (provider, model, content hash), or nil on
// miss. A hit bumps the access count and last-accessed timestamp.
func (s *EmbeddingCacheStore) Get(q Querier, provider, model, contentHash string) (*models.EmbeddingCacheEntry, error) {
	var e models.EmbeddingCacheEntry
	err := q.QueryRow(`
		SELECT provider, model, content_hash, embedding, dimension, token_count, access_count, last_accessed_at, created_at
		FROM embedding_cache WHERE provider = ? AND model = ? AND content_hash = ?
	`, provider, model, contentHash).Scan(&e.Provider, &e.Model, &e.ContentHash, &e.Embedding,
		&e.Dimension, &e.TokenCount, &e.AccessCount, &e.LastAccessedAt, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding cache: %w", err)
	}

	now := time.Now().Unix()
	if _, err := q.Exec(`
		UPDATE embedding_cache SET access_count = access_count + 1, last_accessed_at = ?
		WHERE provider = ? AND model = ? AND content_hash = ?
	`, now, provider, model, contentHash); err != nil {
		return nil, fmt.Errorf("bump embedding cache access: %w", err)
	}
	e.AccessCount++
	e.LastAccessedAt = now
	return &e, nil
}

// Put upserts a cache entry. Insert-or-update-on-conflict, never a blind
// overwrite of the key columns.
func (s *EmbeddingCacheStore) Put(q Querier, e *models.EmbeddingCacheEntry) error {
	now := time.Now().Unix()
	_, err := q.Exec(`
		INSERT INTO embedding_cache (provider, model, content_hash, embedding, dimension, token_count, access_count, last_accessed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(provider, model, content_hash) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			token_count = excluded.token_count,
			access_count = embedding_cache.access_count + 1,
			last_accessed_at = excluded.last_accessed_at
	`, e.Provider, e.Model, e.ContentHash, e.Embedding, e.Dimension, e.TokenCount, now, now)
	if err != nil {
		return fmt.Errorf("put embedding cache: %w", err)
	}
	return nil
}

// Count returns the number of cache entries.
func (s *EmbeddingCacheStore) Count(q Querier) (int, error) {
	var n int
	if err := q.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embedding cache: %w", err)
	}
	return n, nil
}

// Cleanup evicts the least-recently and least-frequently accessed entries
// down to maxEntries and returns the number removed. TTL is advisory: age
// only orders eviction, it does not force it.
func (s *EmbeddingCacheStore) Cleanup(q Querier, maxEntries int) (int, error) {
	count, err := s.Count(q)
	if err != nil {
		return 0, err
	}
	excess := count - maxEntries
	if excess <= 0 {
		return 0, nil
	}

	res, err := q.Exec(`
		DELETE FROM embedding_cache
		WHERE (provider, model, content_hash) IN (
			SELECT provider, model, content_hash FROM embedding_cache
			ORDER BY last_accessed_at ASC, access_count ASC
			LIMIT ?
		)
	`, excess)
	if err != nil {
		return 0, fmt.Errorf("cleanup embedding cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup embedding cache: %w", err)
	}
	return int(n), nil
}
