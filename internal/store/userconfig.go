package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/engramhq/engram/internal/models"
)

// UserConfigStore handles per-user indexing policy rows, created lazily
// with defaults on first access.
type UserConfigStore struct {
	db       *DB
	defaults models.UserIndexingConfig
}

func NewUserConfigStore(db *DB, defaults models.UserIndexingConfig) *UserConfigStore {
	return &UserConfigStore{db: db, defaults: defaults}
}

// GetOrCreate returns the user's config, inserting the defaults when none
// exists yet.
func (s *UserConfigStore) GetOrCreate(q Querier, userID string) (*models.UserIndexingConfig, error) {
	cfg, err := s.get(q, userID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	now := time.Now().Unix()
	_, err = q.Exec(`
		INSERT INTO user_indexing_config (user_id, auto_index, min_messages, index_on_session_end, consolidate_on_index, consolidation_interval_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, boolInt(s.defaults.AutoIndex), s.defaults.MinMessagesToIndex,
		boolInt(s.defaults.IndexOnSessionEnd), boolInt(s.defaults.ConsolidateOnIndex),
		s.defaults.ConsolidationIntervalHours, now, now)
	if err != nil {
		return nil, fmt.Errorf("create user config: %w", err)
	}
	return s.get(q, userID)
}

// Update replaces the mutable policy fields for a user.
func (s *UserConfigStore) Update(q Querier, cfg *models.UserIndexingConfig) error {
	res, err := q.Exec(`
		UPDATE user_indexing_config
		SET auto_index = ?, min_messages = ?, index_on_session_end = ?, consolidate_on_index = ?, consolidation_interval_hours = ?, updated_at = ?
		WHERE user_id = ?
	`, boolInt(cfg.AutoIndex), cfg.MinMessagesToIndex, boolInt(cfg.IndexOnSessionEnd),
		boolInt(cfg.ConsolidateOnIndex), cfg.ConsolidationIntervalHours, time.Now().Unix(), cfg.UserID)
	if err != nil {
		return fmt.Errorf("update user config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user config: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// StampConsolidated records the time of the user's latest consolidation run.
func (s *UserConfigStore) StampConsolidated(q Querier, userID string, at int64) error {
	_, err := q.Exec(`
		UPDATE user_indexing_config SET last_consolidated_at = ?, updated_at = ? WHERE user_id = ?
	`, at, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("stamp consolidation: %w", err)
	}
	return nil
}

// UsersDueForConsolidation returns users whose policy requests consolidation,
// who have at least one pending session, and whose last consolidation (if
// any) is older than their configured interval.
func (s *UserConfigStore) UsersDueForConsolidation(q Querier, now int64) ([]string, error) {
	rows, err := q.Query(`
		SELECT DISTINCT c.user_id
		FROM user_indexing_config c
		JOIN indexed_sessions s ON s.user_id = c.user_id AND s.consolidation_status = 'pending'
		WHERE c.consolidate_on_index = 1
		  AND (c.last_consolidated_at IS NULL
		       OR c.last_consolidated_at < ? - c.consolidation_interval_hours * 3600)
	`, now)
	if err != nil {
		return nil, fmt.Errorf("users due for consolidation: %w", err)
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

func (s *UserConfigStore) get(q Querier, userID string) (*models.UserIndexingConfig, error) {
	var cfg models.UserIndexingConfig
	var autoIndex, onEnd, onIndex int
	var lastConsolidated sql.NullInt64
	err := q.QueryRow(`
		SELECT user_id, auto_index, min_messages, index_on_session_end, consolidate_on_index, consolidation_interval_hours, last_consolidated_at, created_at, updated_at
		FROM user_indexing_config WHERE user_id = ?
	`, userID).Scan(&cfg.UserID, &autoIndex, &cfg.MinMessagesToIndex, &onEnd, &onIndex,
		&cfg.ConsolidationIntervalHours, &lastConsolidated, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user config: %w", err)
	}
	cfg.AutoIndex = autoIndex == 1
	cfg.IndexOnSessionEnd = onEnd == 1
	cfg.ConsolidateOnIndex = onIndex == 1
	if lastConsolidated.Valid {
		cfg.LastConsolidatedAt = &lastConsolidated.Int64
	}
	return &cfg, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
