package indexer

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/embedding/mock"
	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/search"
	"github.com/engramhq/engram/internal/store"
)

func setupIndexer(t *testing.T) (*Indexer, *store.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	files := store.NewFileStore(db)
	chunks := store.NewChunkStore(db)
	cache := store.NewEmbeddingCacheStore(db)
	sessions := store.NewSessionStore(db)
	userConfigs := store.NewUserConfigStore(db, models.UserIndexingConfig{
		AutoIndex:                  true,
		MinMessagesToIndex:         5,
		IndexOnSessionEnd:          true,
		ConsolidateOnIndex:         true,
		ConsolidationIntervalHours: 6,
	})

	embedder := embedding.NewCachedEmbedder(mock.New(16), cache, 16, true)
	searcher := search.NewHybridSearcher(db, chunks, 0.7, 0.3, logger)
	eng := engine.New(db, files, chunks, cache, embedder, searcher, engine.Config{
		ChunkTokenSize:    200,
		ChunkTokenOverlap: 40,
		SearchMaxResults:  6,
		CacheMaxEntries:   1000,
	}, logger)

	return New(db, eng, sessions, userConfigs, logger), db
}

func makeSession(userID, sessionID string, messageCount int) *models.ConversationSession {
	s := &models.ConversationSession{
		SessionID: sessionID,
		UserID:    userID,
	}
	for i := 0; i < messageCount; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		s.Messages = append(s.Messages, models.ConversationMessage{
			Role:    role,
			Content: fmt.Sprintf("Message %d about deployment pipelines and release cadence.", i),
		})
	}
	return s
}

func TestIndexConversation(t *testing.T) {
	ix, db := setupIndexer(t)

	t.Run("indexes an eligible session", func(t *testing.T) {
		res, err := ix.IndexConversation(makeSession("user-1", "sess-a", 6), Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Indexed {
			t.Fatalf("expected indexed, skip reason %q", res.SkipReason)
		}
		if !strings.HasPrefix(res.FilePath, "conversations/") || !strings.HasSuffix(res.FilePath, "session-sess-a.md") {
			t.Fatalf("unexpected path %q", res.FilePath)
		}
		if res.ChunksCreated < 1 {
			t.Fatal("expected chunks created")
		}
		// First index with consolidate-on-index and no prior run.
		if !res.ConsolidationTriggered {
			t.Fatal("expected consolidation trigger on first index")
		}
	})

	t.Run("skips an already indexed session", func(t *testing.T) {
		res, err := ix.IndexConversation(makeSession("user-1", "sess-a", 6), Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Indexed || res.SkipReason != SkipAlreadyIndexed {
			t.Fatalf("expected already_indexed skip, got %+v", res)
		}
	})

	t.Run("skips a too-small session without creating rows", func(t *testing.T) {
		res, err := ix.IndexConversation(makeSession("user-1", "sess-tiny", 2), Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Indexed || res.SkipReason != SkipTooFewMessages {
			t.Fatalf("expected too_few_messages skip, got %+v", res)
		}

		indexed, err := ix.IsSessionIndexed("user-1", "sess-tiny")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if indexed {
			t.Fatal("skipped session must not leave an indexed row")
		}
	})

	t.Run("force bypasses gating", func(t *testing.T) {
		res, err := ix.IndexConversation(makeSession("user-1", "sess-tiny", 2), Options{Force: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Indexed {
			t.Fatalf("expected forced index, skip reason %q", res.SkipReason)
		}
	})

	t.Run("respects auto-index disabled", func(t *testing.T) {
		cfg, err := ix.InitializeUserConfig("user-2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cfg.AutoIndex = false
		if err := ix.UpdateUserConfig(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		res, err := ix.IndexConversation(makeSession("user-2", "sess-b", 8), Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Indexed || res.SkipReason != SkipAutoIndexDisabled {
			t.Fatalf("expected auto_index_disabled skip, got %+v", res)
		}
	})

	t.Run("rejects missing identifiers", func(t *testing.T) {
		if _, err := ix.IndexConversation(&models.ConversationSession{SessionID: "x"}, Options{}); err == nil {
			t.Fatal("expected error for missing user id")
		}
	})

	_ = db
}

func TestBatchIndexConversations(t *testing.T) {
	ix, _ := setupIndexer(t)

	sessions := []*models.ConversationSession{
		makeSession("user-1", "batch-1", 6),
		{SessionID: "batch-bad"}, // missing user id fails in isolation
		makeSession("user-1", "batch-2", 6),
	}

	results := ix.BatchIndexConversations(sessions, Options{})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Indexed || !results[2].Indexed {
		t.Fatal("expected surrounding sessions to index despite the failure")
	}
	if results[1].Indexed || !strings.HasPrefix(results[1].SkipReason, "error:") {
		t.Fatalf("expected error result for bad session, got %+v", results[1])
	}
}

func TestBatchIndexNilSession(t *testing.T) {
	ix, _ := setupIndexer(t)

	// A null array element in the batch payload decodes to a nil pointer;
	// it must be flagged in place, not abort the surrounding batch.
	results := ix.BatchIndexConversations([]*models.ConversationSession{
		nil,
		makeSession("user-1", "batch-after-nil", 6),
	}, Options{})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Indexed || !strings.HasPrefix(results[0].SkipReason, "error:") {
		t.Fatalf("expected error result for nil session, got %+v", results[0])
	}
	if !results[1].Indexed {
		t.Fatalf("expected the session after the nil element to index, got %+v", results[1])
	}
}

func TestDeleteIndexedSession(t *testing.T) {
	ix, db := setupIndexer(t)

	if _, err := ix.IndexConversation(makeSession("user-1", "sess-del", 6), Options{}); err != nil {
		t.Fatalf("index failed: %v", err)
	}

	if err := ix.DeleteIndexedSession("user-1", "sess-del"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	indexed, err := ix.IsSessionIndexed("user-1", "sess-del")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed {
		t.Fatal("session row should be gone")
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memory_files WHERE user_id = ?`, "user-1").Scan(&n); err != nil {
		t.Fatalf("count files: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected backing file deleted, %d remain", n)
	}

	if err := ix.DeleteIndexedSession("user-1", "sess-del"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetIndexingStats(t *testing.T) {
	ix, _ := setupIndexer(t)

	for i := 0; i < 3; i++ {
		if _, err := ix.IndexConversation(makeSession("user-1", fmt.Sprintf("stat-%d", i), 6), Options{}); err != nil {
			t.Fatalf("index failed: %v", err)
		}
	}

	stats, err := ix.GetIndexingStats("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalSessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", stats.TotalSessions)
	}
	if stats.PendingSessions != 3 {
		t.Fatalf("expected all pending before consolidation, got %d", stats.PendingSessions)
	}
	if stats.TotalMessages != 18 {
		t.Fatalf("expected 18 messages, got %d", stats.TotalMessages)
	}
}

func TestFormatSession(t *testing.T) {
	started := int64(1767225600) // 2026-01-01T00:00:00Z
	s := &models.ConversationSession{
		SessionID: "fmt-1",
		UserID:    "user-1",
		StartedAt: &started,
		Messages: []models.ConversationMessage{
			{Role: "user", Content: "How do I tune BM25 weights?"},
			{Role: "assistant", Content: "Keep <private>the api key is hunter2</private> weights summing to one."},
		},
	}

	doc := FormatSession(s)
	if !strings.Contains(doc, "# Conversation fmt-1") {
		t.Fatal("missing header")
	}
	if !strings.Contains(doc, "## user") || !strings.Contains(doc, "## assistant") {
		t.Fatal("missing role sections")
	}
	if strings.Contains(doc, "hunter2") {
		t.Fatal("private content must be stripped")
	}
	if !strings.Contains(doc, "Messages: 2") {
		t.Fatal("missing trailing message count")
	}

	if got := SessionPath(s); got != "conversations/2026/01/session-fmt-1.md" {
		t.Fatalf("unexpected session path %q", got)
	}
}
