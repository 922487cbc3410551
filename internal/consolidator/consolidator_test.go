package consolidator

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/embedding/mock"
	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/extractor"
	"github.com/engramhq/engram/internal/indexer"
	"github.com/engramhq/engram/internal/llm"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/search"
	"github.com/engramhq/engram/internal/store"
)

// fakeClient returns canned extraction responses in order.
type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Chat(messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llm.Response{Content: f.responses[idx], TotalTokens: 10}, nil
}

type fixture struct {
	cons    *Consolidator
	indexer *indexer.Indexer
	engine  *engine.Engine
	facts   *store.FactStore
	db      *store.DB
}

func setupConsolidator(t *testing.T, client llm.Client) *fixture {
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
	facts := store.NewFactStore(db)
	jobs := store.NewJobStore(db)
	userConfigs := store.NewUserConfigStore(db, models.UserIndexingConfig{
		AutoIndex:                  true,
		MinMessagesToIndex:         1,
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

	ix := indexer.New(db, eng, sessions, userConfigs, logger)

	ext := extractor.New(client, logger)
	cons := New(db, eng, ext, embedder, facts, sessions, jobs, userConfigs, Config{
		MinFactConfidence:   0.6,
		DedupThreshold:      0.9,
		MinImportanceForDoc: 0.5,
		SessionDelay:        1, // effectively no delay in tests
	}, logger)

	return &fixture{cons: cons, indexer: ix, engine: eng, facts: facts, db: db}
}

func (fx *fixture) indexSession(t *testing.T, userID, sessionID, topic string) {
	t.Helper()
	s := &models.ConversationSession{
		SessionID: sessionID,
		UserID:    userID,
		Messages: []models.ConversationMessage{
			{Role: "user", Content: "Let's talk about " + topic + "."},
			{Role: "assistant", Content: "Noted, discussing " + topic + " in detail."},
		},
	}
	if _, err := fx.indexer.IndexConversation(s, indexer.Options{Force: true}); err != nil {
		t.Fatalf("index session %s: %v", sessionID, err)
	}
}

const factResponse = `{"facts":[
	{"type":"preference","content":"User prefers PostgreSQL over MySQL","confidence":0.8},
	{"type":"goal","content":"User wants to migrate services to Kubernetes","confidence":0.9}
],"summary":"infrastructure discussion"}`

func TestConsolidate(t *testing.T) {
	fx := setupConsolidator(t, &fakeClient{responses: []string{factResponse}})
	fx.indexSession(t, "user-1", "sess-1", "databases")

	t.Run("first run stores extracted facts", func(t *testing.T) {
		res, err := fx.cons.Consolidate("user-1", Options{RegenerateMemory: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.SessionsTotal != 1 || res.SessionsOK != 1 {
			t.Fatalf("expected 1 session processed, got %+v", res)
		}
		if res.FactsStored != 2 {
			t.Fatalf("expected 2 facts stored, got %d", res.FactsStored)
		}
		if res.FactsMerged != 0 {
			t.Fatalf("expected no merges on first run, got %d", res.FactsMerged)
		}
		if !res.MemoryDocUpdated {
			t.Fatal("expected memory document regeneration")
		}
	})

	t.Run("memory document lists stored facts", func(t *testing.T) {
		doc, err := fx.engine.GetMemoryFile("user-1", MemoryDocumentPath, 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(doc, "User prefers PostgreSQL over MySQL") {
			t.Fatalf("fact missing from memory document:\n%s", doc)
		}
		if !strings.Contains(doc, "## Preferences") || !strings.Contains(doc, "## Goals") {
			t.Fatal("expected typed sections in memory document")
		}
	})

	t.Run("session is marked consolidated", func(t *testing.T) {
		res, err := fx.cons.Consolidate("user-1", Options{RegenerateMemory: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.SessionsTotal != 0 {
			t.Fatalf("expected no pending sessions, got %d", res.SessionsTotal)
		}
	})

	t.Run("jobs are recorded as completed", func(t *testing.T) {
		jobs, err := fx.cons.GetJobs("user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		for _, j := range jobs {
			if j.Status != models.JobCompleted {
				t.Fatalf("expected completed job, got %s", j.Status)
			}
		}
	})
}

func TestConsolidateDedup(t *testing.T) {
	// Second session re-extracts one identical fact with higher confidence
	// plus one genuinely new fact.
	second := `{"facts":[
		{"type":"preference","content":"User prefers PostgreSQL over MySQL","confidence":0.95},
		{"type":"skill","content":"User is experienced with Terraform modules","confidence":0.85}
	],"summary":"follow-up"}`
	fx := setupConsolidator(t, &fakeClient{responses: []string{factResponse, second}})

	fx.indexSession(t, "user-1", "sess-1", "databases")
	if _, err := fx.cons.Consolidate("user-1", Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	fx.indexSession(t, "user-1", "sess-2", "more databases")
	res, err := fx.cons.Consolidate("user-1", Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if res.FactsMerged != 1 {
		t.Fatalf("expected 1 merged duplicate, got %d", res.FactsMerged)
	}
	if res.FactsStored != 1 {
		t.Fatalf("expected 1 new fact stored, got %d", res.FactsStored)
	}

	// Identical text embeds identically, so the stored duplicate absorbed the
	// higher confidence.
	facts, err := fx.cons.GetFacts("user-1", models.FactPreference, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected a single preference fact, got %d", len(facts))
	}
	if facts[0].Confidence != 0.95 {
		t.Fatalf("expected confidence merged upward to 0.95, got %f", facts[0].Confidence)
	}
}

func TestConsolidateExplicitSessions(t *testing.T) {
	fx := setupConsolidator(t, &fakeClient{responses: []string{factResponse}})
	fx.indexSession(t, "user-1", "sess-1", "databases")

	t.Run("unknown session id fails the job", func(t *testing.T) {
		_, err := fx.cons.Consolidate("user-1", Options{SessionIDs: []string{"missing"}})
		if err == nil {
			t.Fatal("expected error for unknown session")
		}

		jobs, err := fx.cons.GetJobs("user-1", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 1 || jobs[0].Status != models.JobFailed {
			t.Fatalf("expected a failed job, got %+v", jobs)
		}
		if jobs[0].ErrorMessage == "" {
			t.Fatal("expected error message on failed job")
		}
	})

	t.Run("explicit session id consolidates", func(t *testing.T) {
		res, err := fx.cons.Consolidate("user-1", Options{SessionIDs: []string{"sess-1"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.SessionsOK != 1 {
			t.Fatalf("expected 1 session processed, got %d", res.SessionsOK)
		}
	})
}

func TestSearchFacts(t *testing.T) {
	fx := setupConsolidator(t, &fakeClient{responses: []string{factResponse}})
	fx.indexSession(t, "user-1", "sess-1", "databases")
	if _, err := fx.cons.Consolidate("user-1", Options{}); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	t.Run("identical query text is a perfect match", func(t *testing.T) {
		results, err := fx.cons.SearchFacts("user-1", "User prefers PostgreSQL over MySQL", 5, 0.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("expected at least one result")
		}
		if results[0].Similarity < 0.999 {
			t.Fatalf("expected near-1 similarity for identical text, got %f", results[0].Similarity)
		}
	})

	t.Run("retrieval bumps access count", func(t *testing.T) {
		facts, err := fx.cons.GetFacts("user-1", models.FactPreference, 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(facts) != 1 {
			t.Fatalf("expected 1 preference fact, got %d", len(facts))
		}
		if facts[0].AccessCount < 1 {
			t.Fatalf("expected access count bump after search, got %d", facts[0].AccessCount)
		}
	})
}

func TestDeleteFact(t *testing.T) {
	fx := setupConsolidator(t, &fakeClient{responses: []string{factResponse}})
	fx.indexSession(t, "user-1", "sess-1", "databases")
	if _, err := fx.cons.Consolidate("user-1", Options{}); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	facts, err := fx.cons.GetFacts("user-1", "", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}

	t.Run("other users cannot delete", func(t *testing.T) {
		if err := fx.cons.DeleteFact("user-2", facts[0].ID); err != store.ErrNotFound {
			t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
		}
	})

	t.Run("owner deletes", func(t *testing.T) {
		if err := fx.cons.DeleteFact("user-1", facts[0].ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		remaining, err := fx.cons.GetFacts("user-1", "", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(remaining) != 1 {
			t.Fatalf("expected 1 fact left, got %d", len(remaining))
		}
	})
}

func TestRenderMemoryDocument(t *testing.T) {
	facts := []models.MemoryFact{
		{FactType: models.FactGoal, Content: "Ship the beta in June", Confidence: 0.8, Importance: 0.6},
		{FactType: models.FactPreference, Content: "Prefers tabs over spaces", Confidence: 0.9, Importance: 0.9},
		{FactType: models.FactPreference, Content: "Prefers short meetings", Confidence: 0.7, Importance: 0.4},
	}

	doc := RenderMemoryDocument(facts, time.Unix(1767225600, 0))
	if !strings.Contains(doc, "Facts: 3") {
		t.Fatal("missing fact count header")
	}

	// Preferences section precedes goals, and within a section higher
	// importance comes first.
	prefIdx := strings.Index(doc, "## Preferences")
	goalIdx := strings.Index(doc, "## Goals")
	if prefIdx == -1 || goalIdx == -1 || prefIdx > goalIdx {
		t.Fatalf("unexpected section order:\n%s", doc)
	}
	if strings.Index(doc, "Prefers tabs") > strings.Index(doc, "Prefers short meetings") {
		t.Fatal("facts within a section must sort by importance descending")
	}
}
