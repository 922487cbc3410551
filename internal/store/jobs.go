package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/models"
)

// JobStore handles consolidation_jobs rows. The state machine is
// pending -> running -> {completed | failed}; a job left running by a
// process crash stays that way and is operator-visible.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a pending job and returns it.
func (s *JobStore) Create(q Querier, userID string) (*models.ConsolidationJob, error) {
	job := &models.ConsolidationJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    models.JobPending,
		CreatedAt: time.Now().Unix(),
	}
	_, err := q.Exec(`
		INSERT INTO consolidation_jobs (id, user_id, status, created_at) VALUES (?, ?, 'pending', ?)
	`, job.ID, job.UserID, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create consolidation job: %w", err)
	}
	return job, nil
}

// MarkRunning transitions a pending job to running.
func (s *JobStore) MarkRunning(q Querier, id string) error {
	now := time.Now().Unix()
	_, err := q.Exec(`
		UPDATE consolidation_jobs SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'
	`, now, id)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a job with its aggregate counts.
func (s *JobStore) MarkCompleted(q Querier, id string, factsExtracted, factsMerged, chunksProcessed, totalChunks int) error {
	now := time.Now().Unix()
	_, err := q.Exec(`
		UPDATE consolidation_jobs
		SET status = 'completed', facts_extracted = ?, facts_merged = ?, chunks_processed = ?, total_chunks = ?, completed_at = ?
		WHERE id = ? AND status = 'running'
	`, factsExtracted, factsMerged, chunksProcessed, totalChunks, now, id)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

// MarkFailed finalizes a job with its error message.
func (s *JobStore) MarkFailed(q Querier, id string, errMsg string) error {
	now := time.Now().Unix()
	_, err := q.Exec(`
		UPDATE consolidation_jobs SET status = 'failed', error_message = ?, completed_at = ?
		WHERE id = ? AND status IN ('pending', 'running')
	`, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// List returns a user's jobs, newest first.
func (s *JobStore) List(q Querier, userID string, limit int) ([]models.ConsolidationJob, error) {
	query := `
		SELECT id, user_id, status, facts_extracted, facts_merged, chunks_processed, total_chunks, error_message, started_at, completed_at, created_at
		FROM consolidation_jobs WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consolidation jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ConsolidationJob
	for rows.Next() {
		var j models.ConsolidationJob
		var errMsg sql.NullString
		var started, completed sql.NullInt64
		if err := rows.Scan(&j.ID, &j.UserID, &j.Status, &j.FactsExtracted, &j.FactsMerged,
			&j.ChunksProcessed, &j.TotalChunks, &errMsg, &started, &completed, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan consolidation job: %w", err)
		}
		if errMsg.Valid {
			j.ErrorMessage = errMsg.String
		}
		if started.Valid {
			j.StartedAt = &started.Int64
		}
		if completed.Valid {
			j.CompletedAt = &completed.Int64
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
