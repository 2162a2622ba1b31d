package classroom

import (
	"math"
	"testing"
)

func TestResolve_nearest_within_tolerance(t *testing.T) {
	probe := Embedding{0, 0}
	known := []Identity{
		{ID: "A", Embedding: Embedding{0.45, 0}},
		{ID: "B", Embedding: Embedding{0.3, 0}},
	}

	id, ok := Resolve(probe, known, 0.5)
	if !ok || id != "B" {
		t.Errorf("expected B, got %q ok=%v", id, ok)
	}
}

func TestResolve_no_match(t *testing.T) {
	known := []Identity{{ID: "A", Embedding: Embedding{0.6, 0}}}

	if id, ok := Resolve(Embedding{0, 0}, known, 0.5); ok {
		t.Errorf("expected no match, got %q", id)
	}
	if _, ok := Resolve(Embedding{0, 0}, nil, 0.5); ok {
		t.Error("expected no match against empty gallery")
	}
}

func TestResolve_distance_equal_to_tolerance_is_rejected(t *testing.T) {
	known := []Identity{{ID: "A", Embedding: Embedding{0.5, 0}}}
	if _, ok := Resolve(Embedding{0, 0}, known, 0.5); ok {
		t.Error("distance equal to tolerance must not match")
	}
}

func TestResolve_skips_length_mismatch(t *testing.T) {
	known := []Identity{
		{ID: "short", Embedding: Embedding{0}},
		{ID: "ok", Embedding: Embedding{0.1, 0}},
	}
	id, ok := Resolve(Embedding{0, 0}, known, 0.5)
	if !ok || id != "ok" {
		t.Errorf("expected ok, got %q ok=%v", id, ok)
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(Embedding{0, 0}, Embedding{3, 4}); math.Abs(d-5) > 1e-9 {
		t.Errorf("expected 5, got %v", d)
	}
}

func TestResolver_Reload(t *testing.T) {
	r := NewResolver(nil, 0)
	if _, ok := r.Resolve(Embedding{0, 0}); ok {
		t.Fatal("empty resolver should not match")
	}

	known := []Identity{{ID: "A", Embedding: Embedding{0.1, 0}}}
	r.Reload(known)
	known[0].ID = "mutated"

	id, ok := r.Resolve(Embedding{0, 0})
	if !ok || id != "A" {
		t.Errorf("expected A after reload, got %q ok=%v", id, ok)
	}
	if r.Len() != 1 {
		t.Errorf("expected Len 1, got %d", r.Len())
	}
}
