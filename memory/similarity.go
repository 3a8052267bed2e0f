package memory

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched lengths and zero-magnitude vectors give 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors just past 1.
	return math.Max(-1, math.Min(1, sim))
}

// ScoredRecord is a record with its similarity to a query.
type ScoredRecord struct {
	*Record
	Similarity float64 `json:"similarity"`
}

// Rank scores candidates against query, keeps those at or above threshold
// and returns them most similar first. Equal scores keep candidate order.
// A limit <= 0 returns every match.
func Rank(query []float32, candidates []*Record, threshold float64, limit int) []*ScoredRecord {
	scored := make([]*ScoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		sim := CosineSimilarity(query, rec.Embedding)
		if sim < threshold {
			continue
		}
		scored = append(scored, &ScoredRecord{Record: rec, Similarity: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
