package search

import (
	"math"
	"strings"
	"testing"
)

func TestCombineScores(t *testing.T) {
	t.Run("weights vector similarity over text rank", func(t *testing.T) {
		// Strong vector match with weak text beats strong text with weak vector
		// under the default 0.7/0.3 split.
		a := CombineScores(0.9, 0.1, 0.7, 0.3)
		b := CombineScores(0.5, 0.9, 0.7, 0.3)
		if math.Abs(a-0.66) > 1e-9 {
			t.Fatalf("expected 0.66, got %f", a)
		}
		if math.Abs(b-0.62) > 1e-9 {
			t.Fatalf("expected 0.62, got %f", b)
		}
		if a <= b {
			t.Fatalf("expected vector-heavy hit to rank first: %f <= %f", a, b)
		}
	})

	t.Run("monotone in both components", func(t *testing.T) {
		base := CombineScores(0.5, 0.5, 0.7, 0.3)
		if CombineScores(0.6, 0.5, 0.7, 0.3) <= base {
			t.Fatal("raising vector score must raise the combined score")
		}
		if CombineScores(0.5, 0.6, 0.7, 0.3) <= base {
			t.Fatal("raising text score must raise the combined score")
		}
	})

	t.Run("perfect scores combine to 1", func(t *testing.T) {
		if got := CombineScores(1, 1, 0.7, 0.3); math.Abs(got-1.0) > 1e-9 {
			t.Fatalf("expected 1.0, got %f", got)
		}
	})
}

func TestNormalizeWeights(t *testing.T) {
	t.Run("inflated pair is rescaled to unit sum", func(t *testing.T) {
		vw, tw := normalizeWeights(0.9, 0.9, 0.7, 0.3)
		if math.Abs(vw-0.5) > 1e-9 || math.Abs(tw-0.5) > 1e-9 {
			t.Fatalf("expected 0.5/0.5, got %f/%f", vw, tw)
		}
	})

	t.Run("unit pair passes through", func(t *testing.T) {
		vw, tw := normalizeWeights(0.6, 0.4, 0.7, 0.3)
		if math.Abs(vw-0.6) > 1e-9 || math.Abs(tw-0.4) > 1e-9 {
			t.Fatalf("expected 0.6/0.4, got %f/%f", vw, tw)
		}
	})

	t.Run("unset pair falls back to configured", func(t *testing.T) {
		vw, tw := normalizeWeights(0, 0, 0.7, 0.3)
		if vw != 0.7 || tw != 0.3 {
			t.Fatalf("expected 0.7/0.3, got %f/%f", vw, tw)
		}
	})

	t.Run("negative weight falls back to configured", func(t *testing.T) {
		vw, tw := normalizeWeights(-0.5, 1.5, 0.7, 0.3)
		if vw != 0.7 || tw != 0.3 {
			t.Fatalf("expected 0.7/0.3, got %f/%f", vw, tw)
		}
	})

	t.Run("preserved ratio caps the combined score at 1", func(t *testing.T) {
		vw, tw := normalizeWeights(1.4, 0.6, 0.7, 0.3)
		if got := CombineScores(1, 1, vw, tw); math.Abs(got-1.0) > 1e-9 {
			t.Fatalf("normalized weights must bound perfect scores at 1, got %f", got)
		}
		if math.Abs(vw-0.7) > 1e-9 {
			t.Fatalf("expected ratio preserved at 0.7, got %f", vw)
		}
	})
}

func TestCitation(t *testing.T) {
	if got := Citation("conversations/2026/01/session-a.md", 10, 24); got != "conversations/2026/01/session-a.md#L10-L24" {
		t.Fatalf("unexpected citation: %s", got)
	}
	if got := Citation("MEMORY.md", 5, 5); got != "MEMORY.md#L5" {
		t.Fatalf("single-line citation should collapse: %s", got)
	}
}

func TestSelectSnippet(t *testing.T) {
	t.Run("short content returned whole", func(t *testing.T) {
		if got := SelectSnippet("short text", "text", 240); got != "short text" {
			t.Fatalf("unexpected snippet: %q", got)
		}
	})

	t.Run("window centers on query terms", func(t *testing.T) {
		content := strings.Repeat("filler words here. ", 40) +
			"the user prefers gRPC for internal services" +
			strings.Repeat(" trailing padding.", 40)

		got := SelectSnippet(content, "gRPC internal", 120)
		if len(got) > 120 {
			t.Fatalf("snippet exceeds budget: %d chars", len(got))
		}
		if !strings.Contains(strings.ToLower(got), "grpc") {
			t.Fatalf("expected snippet to contain the query term, got %q", got)
		}
	})

	t.Run("no term match falls back to prefix", func(t *testing.T) {
		content := strings.Repeat("abcdefghij ", 100)
		got := SelectSnippet(content, "zzz qqq", 50)
		if !strings.HasPrefix(content, got[:10]) {
			t.Fatalf("expected prefix fallback, got %q", got)
		}
	})
}
