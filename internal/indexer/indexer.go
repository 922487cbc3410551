// Package indexer gates and translates finished chat sessions into memory
// engine documents.
package indexer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/store"
)

// Skip reasons reported on short-circuited indexing runs.
const (
	SkipAutoIndexDisabled = "auto_index_disabled"
	SkipTooFewMessages    = "too_few_messages"
	SkipAlreadyIndexed    = "already_indexed"
)

// Indexer converts conversations into memory documents under a per-user
// policy.
type Indexer struct {
	db          *store.DB
	engine      *engine.Engine
	sessions    *store.SessionStore
	userConfigs *store.UserConfigStore
	logger      *slog.Logger
}

func New(
	db *store.DB,
	eng *engine.Engine,
	sessions *store.SessionStore,
	userConfigs *store.UserConfigStore,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		db:          db,
		engine:      eng,
		sessions:    sessions,
		userConfigs: userConfigs,
		logger:      logger,
	}
}

// Options tunes one indexing call.
type Options struct {
	Force bool // bypass policy gating and the duplicate check
}

// InitializeUserConfig lazily creates (or returns) the user's policy row.
func (ix *Indexer) InitializeUserConfig(userID string) (*models.UserIndexingConfig, error) {
	return ix.userConfigs.GetOrCreate(ix.db, userID)
}

// UpdateUserConfig replaces the user's mutable policy fields.
func (ix *Indexer) UpdateUserConfig(cfg *models.UserIndexingConfig) error {
	return ix.userConfigs.Update(ix.db, cfg)
}

// IndexConversation indexes one session. It short-circuits with a flagged
// no-op result when auto-indexing is off, the session is too small, or the
// session was already indexed — unless forced. On success it records the
// IndexedSession row and reports whether the user's policy asks for a
// consolidation run now.
func (ix *Indexer) IndexConversation(session *models.ConversationSession, opts Options) (*models.IndexingResult, error) {
	if session == nil || session.SessionID == "" || session.UserID == "" {
		return nil, fmt.Errorf("session id and user id are required")
	}

	cfg, err := ix.userConfigs.GetOrCreate(ix.db, session.UserID)
	if err != nil {
		return nil, err
	}

	result := &models.IndexingResult{SessionID: session.SessionID}

	if !opts.Force {
		if !cfg.AutoIndex {
			result.SkipReason = SkipAutoIndexDisabled
			return result, nil
		}
		if len(session.Messages) < cfg.MinMessagesToIndex {
			result.SkipReason = SkipTooFewMessages
			return result, nil
		}
		indexed, err := ix.IsSessionIndexed(session.UserID, session.SessionID)
		if err != nil {
			return nil, err
		}
		if indexed {
			result.SkipReason = SkipAlreadyIndexed
			return result, nil
		}
	}

	doc := FormatSession(session)
	path := SessionPath(session)

	indexRes, err := ix.engine.IndexContent(session.UserID, path, doc, models.SourceConversation)
	if err != nil {
		return nil, fmt.Errorf("index conversation %s: %w", session.SessionID, err)
	}

	if err := ix.sessions.Upsert(ix.db, &models.IndexedSession{
		UserID:       session.UserID,
		SessionID:    session.SessionID,
		FileID:       indexRes.FileID,
		MessageCount: len(session.Messages),
	}); err != nil {
		return nil, err
	}

	result.Indexed = true
	result.FilePath = path
	result.FileID = indexRes.FileID
	result.ChunksCreated = indexRes.ChunksCreated
	result.ConsolidationTriggered = consolidationDue(cfg, time.Now().Unix())

	ix.logger.Info("conversation indexed",
		"user_id", session.UserID,
		"session_id", session.SessionID,
		"path", path,
		"chunks", indexRes.ChunksCreated,
		"consolidation_triggered", result.ConsolidationTriggered,
	)

	return result, nil
}

// consolidationDue reports whether the policy requests post-index
// consolidation and either none has ever run or the interval has elapsed.
func consolidationDue(cfg *models.UserIndexingConfig, now int64) bool {
	if !cfg.ConsolidateOnIndex {
		return false
	}
	if cfg.LastConsolidatedAt == nil {
		return true
	}
	return now-*cfg.LastConsolidatedAt >= int64(cfg.ConsolidationIntervalHours)*3600
}

// BatchIndexConversations indexes each session independently. A failure on
// one session is logged and skipped, never aborts the batch.
func (ix *Indexer) BatchIndexConversations(sessions []*models.ConversationSession, opts Options) []*models.IndexingResult {
	results := make([]*models.IndexingResult, 0, len(sessions))
	for i, s := range sessions {
		if s == nil {
			ix.logger.Error("batch index session failed", "position", i, "error", "nil session")
			results = append(results, &models.IndexingResult{
				SkipReason: "error: session is required",
			})
			continue
		}
		res, err := ix.IndexConversation(s, opts)
		if err != nil {
			ix.logger.Error("batch index session failed",
				"session_id", s.SessionID, "user_id", s.UserID, "error", err)
			results = append(results, &models.IndexingResult{
				SessionID:  s.SessionID,
				SkipReason: "error: " + err.Error(),
			})
			continue
		}
		results = append(results, res)
	}
	return results
}

// IsSessionIndexed reports whether (user, session) has an IndexedSession row.
func (ix *Indexer) IsSessionIndexed(userID, sessionID string) (bool, error) {
	is, err := ix.sessions.Get(ix.db, userID, sessionID)
	if err != nil {
		return false, err
	}
	return is != nil, nil
}

// GetIndexingStats aggregates the user's indexed sessions.
func (ix *Indexer) GetIndexingStats(userID string) (*models.IndexingStats, error) {
	return ix.sessions.Stats(ix.db, userID)
}

// GetIndexedSessions lists the user's indexed sessions, newest first.
func (ix *Indexer) GetIndexedSessions(userID string, limit int) ([]models.IndexedSession, error) {
	return ix.sessions.List(ix.db, userID, limit)
}

// DeleteIndexedSession removes the session row and its backing memory file.
func (ix *Indexer) DeleteIndexedSession(userID, sessionID string) error {
	is, err := ix.sessions.Get(ix.db, userID, sessionID)
	if err != nil {
		return err
	}
	if is == nil {
		return store.ErrNotFound
	}
	if err := ix.sessions.Delete(ix.db, userID, sessionID); err != nil {
		return err
	}
	if err := ix.engine.DeleteFileByID(is.FileID); err != nil {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}
