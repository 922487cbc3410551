package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/models"
)

// ChunkStore handles memory_chunks rows and FTS5 lexical search over them.
type ChunkStore struct {
	db *DB
}

func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// Insert adds a chunk row. Chunks are always written as a full set for a
// file, inside the indexing transaction.
func (s *ChunkStore) Insert(q Querier, c *models.MemoryChunk) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().Unix()
	_, err := q.Exec(`
		INSERT INTO memory_chunks (id, file_id, user_id, chunk_ref, start_line, end_line, token_count, content, content_hash, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.FileID, c.UserID, c.ChunkRef, c.StartLine, c.EndLine, c.TokenCount,
		c.Content, c.ContentHash, c.Embedding, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// DeleteByFile removes all chunks for a file. Deletion and re-insertion
// happen inside one transaction so readers never see a partial chunk set.
func (s *ChunkStore) DeleteByFile(q Querier, fileID string) error {
	_, err := q.Exec(`DELETE FROM memory_chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// GetByFile returns a file's chunks ordered by start line.
func (s *ChunkStore) GetByFile(q Querier, fileID string) ([]models.MemoryChunk, error) {
	rows, err := q.Query(`
		SELECT id, file_id, user_id, chunk_ref, start_line, end_line, token_count, content, content_hash, embedding, created_at
		FROM memory_chunks WHERE file_id = ? ORDER BY start_line
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetWithEmbeddings returns all of a user's chunks with their vectors,
// optionally restricted to the given file sources.
func (s *ChunkStore) GetWithEmbeddings(q Querier, userID string, sources []models.FileSource) ([]ChunkWithPath, error) {
	query := `
		SELECT c.id, c.file_id, c.user_id, c.chunk_ref, c.start_line, c.end_line, c.token_count,
		       c.content, c.content_hash, c.embedding, c.created_at, f.file_path, f.source
		FROM memory_chunks c
		JOIN memory_files f ON f.id = c.file_id
		WHERE c.user_id = ? AND c.embedding IS NOT NULL`
	args := []any{userID}
	if len(sources) > 0 {
		placeholders := make([]string, len(sources))
		for i, src := range sources {
			placeholders[i] = "?"
			args = append(args, src)
		}
		query += fmt.Sprintf(` AND f.source IN (%s)`, strings.Join(placeholders, ","))
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks with embeddings: %w", err)
	}
	defer rows.Close()

	var out []ChunkWithPath
	for rows.Next() {
		var c ChunkWithPath
		if err := rows.Scan(&c.ID, &c.FileID, &c.UserID, &c.ChunkRef, &c.StartLine, &c.EndLine,
			&c.TokenCount, &c.Content, &c.ContentHash, &c.Embedding, &c.CreatedAt,
			&c.FilePath, &c.Source); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunkWithPath is a chunk joined with its parent file's path and source.
type ChunkWithPath struct {
	models.MemoryChunk
	FilePath string
	Source   models.FileSource
}

// TextResult holds an FTS5 match over chunks.
type TextResult struct {
	ChunkID string
	Rank    float64
}

// SearchText performs BM25 full-text search over a user's chunks, optionally
// restricted by file source. bm25() returns negative values where more
// negative = better match, so scores are negated to positive.
func (s *ChunkStore) SearchText(q Querier, userID, queryText string, sources []models.FileSource, limit int) ([]TextResult, error) {
	match := ftsQuery(queryText)
	if match == "" {
		return nil, nil
	}

	query := `
		SELECT c.id, -rank AS score
		FROM chunks_fts
		JOIN memory_chunks c ON c.rowid = chunks_fts.rowid
		JOIN memory_files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ?
		  AND c.user_id = ?`
	args := []any{match, userID}
	if len(sources) > 0 {
		placeholders := make([]string, len(sources))
		for i, src := range sources {
			placeholders[i] = "?"
			args = append(args, src)
		}
		query += fmt.Sprintf(` AND f.source IN (%s)`, strings.Join(placeholders, ","))
	}
	query += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []TextResult
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ChunkID, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery turns free-form query text into a safe FTS5 MATCH expression by
// quoting each term and OR-ing them together.
func ftsQuery(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " OR ")
}

func scanChunks(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.MemoryChunk, error) {
	var chunks []models.MemoryChunk
	for rows.Next() {
		var c models.MemoryChunk
		if err := rows.Scan(&c.ID, &c.FileID, &c.UserID, &c.ChunkRef, &c.StartLine, &c.EndLine,
			&c.TokenCount, &c.Content, &c.ContentHash, &c.Embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
