package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hearthmind/hearth/internal/state"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scale invariant", []float64{1, 1}, []float64{10, 10}, 1},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		got := CosineSimilarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func embeddedItem(name string, vec []float64) state.Item {
	it := state.NewItem(state.KindFact, name)
	it.Embedding = vec
	return it
}

func TestTopK_RanksAndFilters(t *testing.T) {
	query := []float64{1, 0}
	items := []state.Item{
		embeddedItem("exact", []float64{1, 0}),
		embeddedItem("close", []float64{1, 0.3}),
		embeddedItem("far", []float64{0.1, 1}),
		state.NewItem(state.KindFact, "unembedded"),
	}

	matches := TopK(query, items, 10, 0.3)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches above 0.3, got %d", len(matches))
	}
	if matches[0].Item.Name != "exact" || matches[1].Item.Name != "close" {
		t.Errorf("wrong order: %s, %s", matches[0].Item.Name, matches[1].Item.Name)
	}

	if got := TopK(query, items, 1, 0.3); len(got) != 1 {
		t.Errorf("k=1 returned %d matches", len(got))
	}
	if got := TopK(query, items, 10, 0.999); len(got) != 1 {
		t.Errorf("tight threshold returned %d matches", len(got))
	}
}

func TestAnyEmbedded(t *testing.T) {
	bare := []state.Item{state.NewItem(state.KindFact, "a")}
	if AnyEmbedded(bare) {
		t.Error("no item has a vector")
	}
	if !AnyEmbedded(append(bare, embeddedItem("b", []float64{1}))) {
		t.Error("expected true with one embedded item")
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := &MockEmbedder{Dims: 16}
	a, err := m.Embed(context.Background(), "sailing")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.Embed(context.Background(), "sailing")
	if CosineSimilarity(a, b) < 0.999999 {
		t.Error("same text should embed identically")
	}

	var norm float64
	for _, v := range a {
		norm += v * v
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("vector not normalized, |v|^2 = %v", norm)
	}
}
