package search

import (
	"math"
	"testing"
)

func TestVectorCosine(t *testing.T) {
	t.Run("identical direction", func(t *testing.T) {
		v := Vector{0.5, 0.3, 0.8}
		if sim := v.Cosine(v); math.Abs(sim-1.0) > 1e-6 {
			t.Fatalf("expected 1.0, got %f", sim)
		}
	})

	t.Run("orthogonal", func(t *testing.T) {
		a := Vector{1, 0}
		b := Vector{0, 1}
		if sim := a.Cosine(b); math.Abs(sim) > 1e-6 {
			t.Fatalf("expected 0, got %f", sim)
		}
	})

	t.Run("opposite direction", func(t *testing.T) {
		a := Vector{1, 2, 3}
		b := Vector{-1, -2, -3}
		if sim := a.Cosine(b); math.Abs(sim+1.0) > 1e-6 {
			t.Fatalf("expected -1, got %f", sim)
		}
	})

	t.Run("mismatched dimensions score zero", func(t *testing.T) {
		if sim := (Vector{1, 2}).Cosine(Vector{1, 2, 3}); sim != 0 {
			t.Fatalf("expected 0, got %f", sim)
		}
	})

	t.Run("zero vector scores zero", func(t *testing.T) {
		if sim := (Vector{0, 0}).Cosine(Vector{1, 1}); sim != 0 {
			t.Fatalf("expected 0, got %f", sim)
		}
	})
}

func TestVectorCodec(t *testing.T) {
	v := Vector{0.1, -2.5, 3.14159, 0, 1e-8}
	got := DecodeVector(v.Encode())
	if len(got) != len(v) {
		t.Fatalf("round trip changed length: %d != %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("component %d changed: %f != %f", i, got[i], v[i])
		}
	}

	t.Run("ragged blob decodes to nil", func(t *testing.T) {
		if got := DecodeVector([]byte{1, 2, 3}); got != nil {
			t.Fatal("expected nil for non-multiple-of-4 input")
		}
	})

	t.Run("empty blob decodes to nil", func(t *testing.T) {
		if got := DecodeVector(nil); got != nil {
			t.Fatal("expected nil for empty input")
		}
	})
}
