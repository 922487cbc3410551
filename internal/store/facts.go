package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/models"
)

// FactStore handles memory_facts rows.
type FactStore struct {
	db *DB
}

func NewFactStore(db *DB) *FactStore {
	return &FactStore{db: db}
}

// ImportanceScore derives a fact's importance from its confidence, access
// frequency, and age in days. Pure, deterministic, and idempotent for
// unchanged inputs: importance grows with confidence and recent access and
// decays with age.
func ImportanceScore(confidence float64, accessCount int64, ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	accessFactor := float64(accessCount) / 10.0
	if accessFactor > 1.0 {
		accessFactor = 1.0
	}
	score := 0.5*confidence + 0.3*math.Exp(-ageDays/90.0) + 0.2*accessFactor
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Insert adds a new fact.
func (s *FactStore) Insert(q Querier, f *models.MemoryFact) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	f.CreatedAt = now
	f.UpdatedAt = now
	_, err := q.Exec(`
		INSERT INTO memory_facts (id, user_id, fact_type, content, confidence, importance, embedding, source_file_id, access_count, last_accessed_at, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)
	`, f.ID, f.UserID, f.FactType, f.Content, f.Confidence, f.Importance, f.Embedding,
		nullStr(f.SourceFileID), f.ExpiresAt, now, now)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// List returns a user's facts filtered by type and minimum importance,
// ordered by importance descending.
func (s *FactStore) List(q Querier, userID string, factType models.FactType, minImportance float64, limit int) ([]models.MemoryFact, error) {
	query := `
		SELECT id, user_id, fact_type, content, confidence, importance, embedding, source_file_id, access_count, last_accessed_at, expires_at, created_at, updated_at
		FROM memory_facts WHERE user_id = ? AND importance >= ?`
	args := []any{userID, minImportance}
	if factType != "" {
		query += ` AND fact_type = ?`
		args = append(args, factType)
	}
	query += ` ORDER BY importance DESC, created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// GetWithEmbeddings returns all of a user's facts that carry a vector.
func (s *FactStore) GetWithEmbeddings(q Querier, userID string) ([]models.MemoryFact, error) {
	rows, err := q.Query(`
		SELECT id, user_id, fact_type, content, confidence, importance, embedding, source_file_id, access_count, last_accessed_at, expires_at, created_at, updated_at
		FROM memory_facts WHERE user_id = ? AND embedding IS NOT NULL
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("get facts with embeddings: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// UpdateConfidence raises a fact's confidence. Confidence only moves upward:
// callers must check the new value is strictly higher before calling.
func (s *FactStore) UpdateConfidence(q Querier, id string, confidence float64) error {
	_, err := q.Exec(`
		UPDATE memory_facts SET confidence = ?, updated_at = ? WHERE id = ?
	`, confidence, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update fact confidence: %w", err)
	}
	return nil
}

// TouchAccess bumps a fact's access count and last-accessed timestamp.
func (s *FactStore) TouchAccess(q Querier, id string) error {
	now := time.Now().Unix()
	_, err := q.Exec(`
		UPDATE memory_facts SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch fact access: %w", err)
	}
	return nil
}

// Delete removes a fact scoped to its owning user.
func (s *FactStore) Delete(q Querier, userID, factID string) error {
	res, err := q.Exec(`DELETE FROM memory_facts WHERE user_id = ? AND id = ?`, userID, factID)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeImportance recalculates every fact's importance for a user via
// ImportanceScore and returns the number of rows updated.
func (s *FactStore) RecomputeImportance(q Querier, userID string) (int, error) {
	rows, err := q.Query(`
		SELECT id, confidence, access_count, last_accessed_at, created_at
		FROM memory_facts WHERE user_id = ?
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("load facts for rescoring: %w", err)
	}

	type factRow struct {
		id           string
		confidence   float64
		accessCount  int64
		lastAccessed sql.NullInt64
		createdAt    int64
	}
	var facts []factRow
	for rows.Next() {
		var f factRow
		if err := rows.Scan(&f.id, &f.confidence, &f.accessCount, &f.lastAccessed, &f.createdAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan fact for rescoring: %w", err)
		}
		facts = append(facts, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	updated := 0
	for _, f := range facts {
		ref := f.createdAt
		if f.lastAccessed.Valid && f.lastAccessed.Int64 > ref {
			ref = f.lastAccessed.Int64
		}
		ageDays := float64(now-ref) / 86400.0
		score := ImportanceScore(f.confidence, f.accessCount, ageDays)
		if _, err := q.Exec(`UPDATE memory_facts SET importance = ? WHERE id = ?`, score, f.id); err != nil {
			return updated, fmt.Errorf("update importance: %w", err)
		}
		updated++
	}
	return updated, nil
}

// PurgeExpired deletes facts whose expiry has passed and returns the count.
func (s *FactStore) PurgeExpired(q Querier) (int, error) {
	res, err := q.Exec(`
		DELETE FROM memory_facts WHERE expires_at IS NOT NULL AND expires_at < ?
	`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired facts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired facts: %w", err)
	}
	return int(n), nil
}

// UsersWithFacts returns the distinct user ids that own at least one fact.
func (s *FactStore) UsersWithFacts(q Querier) ([]string, error) {
	rows, err := q.Query(`SELECT DISTINCT user_id FROM memory_facts`)
	if err != nil {
		return nil, fmt.Errorf("users with facts: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanFacts(rows *sql.Rows) ([]models.MemoryFact, error) {
	var facts []models.MemoryFact
	for rows.Next() {
		var f models.MemoryFact
		var sourceFile sql.NullString
		var lastAccessed, expires sql.NullInt64
		if err := rows.Scan(&f.ID, &f.UserID, &f.FactType, &f.Content, &f.Confidence, &f.Importance,
			&f.Embedding, &sourceFile, &f.AccessCount, &lastAccessed, &expires, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if sourceFile.Valid {
			f.SourceFileID = sourceFile.String
		}
		if lastAccessed.Valid {
			f.LastAccessedAt = &lastAccessed.Int64
		}
		if expires.Valid {
			f.ExpiresAt = &expires.Int64
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
