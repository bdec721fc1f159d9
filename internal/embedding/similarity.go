package embedding

import (
	"math"
	"sort"

	"github.com/hearthmind/hearth/internal/state"
)

// Match pairs an item with its similarity to a query vector.
type Match struct {
	Item       state.Item
	Similarity float64
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Works on unnormalized vectors; mismatched lengths score zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// TopK ranks the items that carry embeddings against the query vector and
// returns up to k matches with similarity >= minSim, sorted descending.
func TopK(query []float64, items []state.Item, k int, minSim float64) []Match {
	var matches []Match
	for _, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(query, it.Embedding)
		if sim < minSim {
			continue
		}
		matches = append(matches, Match{Item: it, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// AnyEmbedded reports whether any item carries a precomputed embedding.
func AnyEmbedded(items []state.Item) bool {
	for _, it := range items {
		if len(it.Embedding) > 0 {
			return true
		}
	}
	return false
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
