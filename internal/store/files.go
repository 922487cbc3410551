package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/models"
)

// FileStore handles memory_files rows.
type FileStore struct {
	db *DB
}

func NewFileStore(db *DB) *FileStore {
	return &FileStore{db: db}
}

// GetByPath returns the file for (user, path), or nil if none exists.
func (s *FileStore) GetByPath(q Querier, userID, filePath string) (*models.MemoryFile, error) {
	var f models.MemoryFile
	err := q.QueryRow(`
		SELECT id, user_id, file_path, source, content_hash, size_bytes, chunk_count, created_at, updated_at
		FROM memory_files WHERE user_id = ? AND file_path = ?
	`, userID, filePath).Scan(&f.ID, &f.UserID, &f.FilePath, &f.Source, &f.ContentHash,
		&f.SizeBytes, &f.ChunkCount, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory file: %w", err)
	}
	return &f, nil
}

// GetByID returns a file by id, or nil if none exists.
func (s *FileStore) GetByID(q Querier, id string) (*models.MemoryFile, error) {
	var f models.MemoryFile
	err := q.QueryRow(`
		SELECT id, user_id, file_path, source, content_hash, size_bytes, chunk_count, created_at, updated_at
		FROM memory_files WHERE id = ?
	`, id).Scan(&f.ID, &f.UserID, &f.FilePath, &f.Source, &f.ContentHash,
		&f.SizeBytes, &f.ChunkCount, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory file by id: %w", err)
	}
	return &f, nil
}

// Upsert inserts or updates the file row for (user, path) and returns its id.
func (s *FileStore) Upsert(q Querier, f *models.MemoryFile) (string, error) {
	now := time.Now().Unix()
	existing, err := s.GetByPath(q, f.UserID, f.FilePath)
	if err != nil {
		return "", err
	}
	if existing != nil {
		_, err := q.Exec(`
			UPDATE memory_files
			SET source = ?, content_hash = ?, size_bytes = ?, chunk_count = ?, updated_at = ?
			WHERE id = ?
		`, f.Source, f.ContentHash, f.SizeBytes, f.ChunkCount, now, existing.ID)
		if err != nil {
			return "", fmt.Errorf("update memory file: %w", err)
		}
		return existing.ID, nil
	}

	id := uuid.New().String()
	_, err = q.Exec(`
		INSERT INTO memory_files (id, user_id, file_path, source, content_hash, size_bytes, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, f.UserID, f.FilePath, f.Source, f.ContentHash, f.SizeBytes, f.ChunkCount, now, now)
	if err != nil {
		return "", fmt.Errorf("insert memory file: %w", err)
	}
	return id, nil
}

// SetChunkCount updates the chunk count after re-chunking.
func (s *FileStore) SetChunkCount(q Querier, id string, count int) error {
	_, err := q.Exec(`UPDATE memory_files SET chunk_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set chunk count: %w", err)
	}
	return nil
}

// List returns a user's files, optionally filtered by source.
func (s *FileStore) List(q Querier, userID string, source models.FileSource) ([]models.MemoryFile, error) {
	query := `
		SELECT id, user_id, file_path, source, content_hash, size_bytes, chunk_count, created_at, updated_at
		FROM memory_files WHERE user_id = ?`
	args := []any{userID}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY file_path`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memory files: %w", err)
	}
	defer rows.Close()

	var files []models.MemoryFile
	for rows.Next() {
		var f models.MemoryFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.FilePath, &f.Source, &f.ContentHash,
			&f.SizeBytes, &f.ChunkCount, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Count returns the total number of memory files across all users.
func (s *FileStore) Count(q Querier) (int, error) {
	var n int
	if err := q.QueryRow(`SELECT COUNT(*) FROM memory_files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memory files: %w", err)
	}
	return n, nil
}

// Delete removes the file row; chunks cascade via foreign key.
func (s *FileStore) Delete(q Querier, userID, filePath string) error {
	res, err := q.Exec(`DELETE FROM memory_files WHERE user_id = ? AND file_path = ?`, userID, filePath)
	if err != nil {
		return fmt.Errorf("delete memory file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory file: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID removes a file row by id.
func (s *FileStore) DeleteByID(q Querier, id string) error {
	_, err := q.Exec(`DELETE FROM memory_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory file by id: %w", err)
	}
	return nil
}
