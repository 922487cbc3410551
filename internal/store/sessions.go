package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/models"
)

// SessionStore handles indexed_sessions rows.
type SessionStore struct {
	db *DB
}

func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Get returns the indexed session for (user, session id), or nil.
func (s *SessionStore) Get(q Querier, userID, sessionID string) (*models.IndexedSession, error) {
	var is models.IndexedSession
	err := q.QueryRow(`
		SELECT id, user_id, session_id, file_id, message_count, consolidation_status, facts_extracted, indexed_at, updated_at
		FROM indexed_sessions WHERE user_id = ? AND session_id = ?
	`, userID, sessionID).Scan(&is.ID, &is.UserID, &is.SessionID, &is.FileID, &is.MessageCount,
		&is.ConsolidationStatus, &is.FactsExtracted, &is.IndexedAt, &is.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get indexed session: %w", err)
	}
	return &is, nil
}

// Upsert records a successful indexing run, keyed by (user, session id).
// Re-indexing resets the consolidation status to pending.
func (s *SessionStore) Upsert(q Querier, is *models.IndexedSession) error {
	if is.ID == "" {
		is.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	_, err := q.Exec(`
		INSERT INTO indexed_sessions (id, user_id, session_id, file_id, message_count, consolidation_status, facts_extracted, indexed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			file_id = excluded.file_id,
			message_count = excluded.message_count,
			consolidation_status = 'pending',
			indexed_at = excluded.indexed_at,
			updated_at = excluded.updated_at
	`, is.ID, is.UserID, is.SessionID, is.FileID, is.MessageCount, now, now)
	if err != nil {
		return fmt.Errorf("upsert indexed session: %w", err)
	}
	return nil
}

// List returns a user's indexed sessions, newest first.
func (s *SessionStore) List(q Querier, userID string, limit int) ([]models.IndexedSession, error) {
	query := `
		SELECT id, user_id, session_id, file_id, message_count, consolidation_status, facts_extracted, indexed_at, updated_at
		FROM indexed_sessions WHERE user_id = ? ORDER BY indexed_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexed sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListPending returns a user's sessions awaiting consolidation.
func (s *SessionStore) ListPending(q Querier, userID string) ([]models.IndexedSession, error) {
	rows, err := q.Query(`
		SELECT id, user_id, session_id, file_id, message_count, consolidation_status, facts_extracted, indexed_at, updated_at
		FROM indexed_sessions WHERE user_id = ? AND consolidation_status = 'pending'
		ORDER BY indexed_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// MarkConsolidated stamps a session completed with its per-session fact count.
func (s *SessionStore) MarkConsolidated(q Querier, id string, factCount int) error {
	_, err := q.Exec(`
		UPDATE indexed_sessions
		SET consolidation_status = 'completed', facts_extracted = ?, updated_at = ?
		WHERE id = ?
	`, factCount, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("mark session consolidated: %w", err)
	}
	return nil
}

// Delete removes the session row. The backing memory file is deleted by the
// caller in the same operation.
func (s *SessionStore) Delete(q Querier, userID, sessionID string) error {
	res, err := q.Exec(`DELETE FROM indexed_sessions WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete indexed session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete indexed session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates a user's indexed sessions.
func (s *SessionStore) Stats(q Querier, userID string) (*models.IndexingStats, error) {
	stats := &models.IndexingStats{UserID: userID}
	err := q.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN consolidation_status = 'pending' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN consolidation_status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(message_count), 0),
		       COALESCE(SUM(facts_extracted), 0)
		FROM indexed_sessions WHERE user_id = ?
	`, userID).Scan(&stats.TotalSessions, &stats.PendingSessions, &stats.CompletedSessions,
		&stats.TotalMessages, &stats.TotalFacts)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return stats, nil
}

func scanSessions(rows *sql.Rows) ([]models.IndexedSession, error) {
	var sessions []models.IndexedSession
	for rows.Next() {
		var is models.IndexedSession
		if err := rows.Scan(&is.ID, &is.UserID, &is.SessionID, &is.FileID, &is.MessageCount,
			&is.ConsolidationStatus, &is.FactsExtracted, &is.IndexedAt, &is.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan indexed session: %w", err)
		}
		sessions = append(sessions, is)
	}
	return sessions, rows.Err()
}
