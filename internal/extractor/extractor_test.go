package extractor

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/engramhq/engram/internal/llm"
	"github.com/engramhq/engram/internal/models"
)

// fakeClient returns canned responses in order, then repeats the last one.
type fakeClient struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeClient) Chat(messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llm.Response{Content: f.responses[idx], TotalTokens: 42}, nil
}

func newTestExtractor(client llm.Client) *Extractor {
	e := New(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.chunkDelay = 0
	return e
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]models.FactType{
		"preference":  models.FactPreference,
		"Likes":       models.FactPreference,
		"  goals  ":   models.FactGoal,
		"expertise":   models.FactSkill,
		"background":  models.FactContext,
		"choice":      models.FactDecision,
		"observation": models.FactFact,
		"gibberish":   models.FactFact, // unknown labels default to fact
		"":            models.FactFact,
	}
	for label, want := range cases {
		if got := NormalizeType(label); got != want {
			t.Errorf("NormalizeType(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestValidateFact(t *testing.T) {
	valid := Fact{Type: models.FactPreference, Content: "User prefers dark mode", Confidence: 0.9}
	if err := ValidateFact(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("too short", func(t *testing.T) {
		f := valid
		f.Content = "dark mode"
		if err := ValidateFact(f); err == nil {
			t.Fatal("expected error for two-word content")
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		f := valid
		f.Type = "opinion"
		if err := ValidateFact(f); err == nil {
			t.Fatal("expected error for non-canonical type")
		}
	})

	t.Run("confidence out of range", func(t *testing.T) {
		f := valid
		f.Confidence = 1.2
		if err := ValidateFact(f); err == nil {
			t.Fatal("expected error for confidence > 1")
		}
	})
}

func TestAreSimilarFacts(t *testing.T) {
	a := Fact{Type: models.FactPreference, Content: "User prefers TypeScript over JavaScript", Confidence: 0.8}

	t.Run("exact normalized match", func(t *testing.T) {
		b := Fact{Type: models.FactPreference, Content: "  user PREFERS typescript over javascript ", Confidence: 0.6}
		if !AreSimilarFacts(a, b) {
			t.Fatal("expected case/whitespace-insensitive match")
		}
	})

	t.Run("high word overlap", func(t *testing.T) {
		b := Fact{Type: models.FactPreference, Content: "User prefers TypeScript over JavaScript always", Confidence: 0.6}
		if !AreSimilarFacts(a, b) {
			t.Fatal("expected Jaccard match above 0.7")
		}
	})

	t.Run("different type never matches", func(t *testing.T) {
		b := Fact{Type: models.FactFact, Content: a.Content, Confidence: 0.6}
		if AreSimilarFacts(a, b) {
			t.Fatal("identical text with different type must not match")
		}
	})

	t.Run("unrelated content", func(t *testing.T) {
		b := Fact{Type: models.FactPreference, Content: "User dislikes long meetings on Fridays", Confidence: 0.6}
		if AreSimilarFacts(a, b) {
			t.Fatal("unrelated facts must not match")
		}
	})
}

func TestDedupFacts(t *testing.T) {
	facts := []Fact{
		{Type: models.FactPreference, Content: "User prefers TypeScript over JavaScript", Confidence: 0.7},
		{Type: models.FactPreference, Content: "user prefers typescript over javascript", Confidence: 0.9},
		{Type: models.FactGoal, Content: "User wants to ship the app by March", Confidence: 0.8},
	}

	out := DedupFacts(facts)
	if len(out) != 2 {
		t.Fatalf("expected 2 facts after dedup, got %d", len(out))
	}
	if out[0].Confidence != 0.9 {
		t.Fatalf("dedup must keep the higher confidence, got %f", out[0].Confidence)
	}

	t.Run("idempotent", func(t *testing.T) {
		again := DedupFacts(out)
		if len(again) != len(out) {
			t.Fatalf("second dedup changed count: %d != %d", len(again), len(out))
		}
	})
}

func TestExtractFacts(t *testing.T) {
	t.Run("parses valid response", func(t *testing.T) {
		client := &fakeClient{responses: []string{
			`{"facts":[
				{"type":"preference","content":"User prefers Go for backend work","confidence":0.9},
				{"type":"goals","content":"User wants to learn Rust this year","confidence":0.7},
				{"type":"fact","content":"too short","confidence":0.9}
			],"summary":"discussion about languages"}`,
		}}
		e := newTestExtractor(client)

		res, err := e.ExtractFacts("some transcript text", Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Facts) != 2 {
			t.Fatalf("expected 2 valid facts, got %d", len(res.Facts))
		}
		if res.Facts[1].Type != models.FactGoal {
			t.Fatalf("expected goals alias normalized to goal, got %s", res.Facts[1].Type)
		}
		if res.Summary != "discussion about languages" {
			t.Fatalf("unexpected summary: %q", res.Summary)
		}
		if res.TokenCount != 42 {
			t.Fatalf("expected token count from provider, got %d", res.TokenCount)
		}
	})

	t.Run("malformed JSON yields empty facts, not an error", func(t *testing.T) {
		client := &fakeClient{responses: []string{"I cannot produce JSON today"}}
		e := newTestExtractor(client)

		res, err := e.ExtractFacts("text", Options{})
		if err != nil {
			t.Fatalf("malformed response must not error: %v", err)
		}
		if len(res.Facts) != 0 {
			t.Fatalf("expected no facts, got %d", len(res.Facts))
		}
	})

	t.Run("provider error is surfaced", func(t *testing.T) {
		client := &fakeClient{err: errors.New("connection refused")}
		e := newTestExtractor(client)

		if _, err := e.ExtractFacts("text", Options{}); err == nil {
			t.Fatal("expected provider error")
		}
	})

	t.Run("drops facts below confidence threshold", func(t *testing.T) {
		client := &fakeClient{responses: []string{
			`{"facts":[{"type":"fact","content":"User works at a startup","confidence":0.4}],"summary":""}`,
		}}
		e := newTestExtractor(client)

		res, err := e.ExtractFacts("text", Options{MinConfidence: 0.6})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Facts) != 0 {
			t.Fatalf("expected low-confidence fact dropped, got %d", len(res.Facts))
		}
	})

	t.Run("empty input short-circuits without a call", func(t *testing.T) {
		client := &fakeClient{responses: []string{"{}"}}
		e := newTestExtractor(client)

		res, err := e.ExtractFacts("   \n ", Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Facts) != 0 || client.calls != 0 {
			t.Fatal("blank input must not reach the provider")
		}
	})
}

func TestExtractFactsFromChunks(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"facts":[{"type":"preference","content":"User prefers tabs over spaces","confidence":0.8}],"summary":"chunk one"}`,
		`{"facts":[{"type":"preference","content":"user prefers tabs over spaces","confidence":0.9}],"summary":"chunk two"}`,
	}}
	e := newTestExtractor(client)

	res, err := e.ExtractFactsFromChunks([]string{"chunk a", "chunk b"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected one call per chunk, got %d", client.calls)
	}
	if len(res.Facts) != 1 {
		t.Fatalf("expected cross-chunk dedup to 1 fact, got %d", len(res.Facts))
	}
	if res.Facts[0].Confidence != 0.9 {
		t.Fatalf("expected higher confidence kept, got %f", res.Facts[0].Confidence)
	}
	if res.Summary != "chunk one" {
		t.Fatalf("expected first non-empty summary, got %q", res.Summary)
	}
	if res.TokenCount != 84 {
		t.Fatalf("expected summed token counts, got %d", res.TokenCount)
	}
}
