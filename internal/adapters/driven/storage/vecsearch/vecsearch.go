// Package vecsearch ranks in-process candidate vectors for stores without
// a native vector index.
package vecsearch

import (
	"math"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// DistanceTolerance widens the distance threshold so a chunk whose
// similarity equals the threshold survives float32 storage.
const DistanceTolerance = 1e-6

// Candidate is a stored chunk considered for a similarity query.
type Candidate struct {
	ChunkID    string
	DocumentID string
	Text       string
	Ordinal    int
	Embedding  []float32
}

// CosineDistance returns 1 - cosine similarity of a and b.
// A zero vector has distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Rank applies the query's document filter, distance threshold, ordering
// and limit, in that order.
func Rank(candidates []Candidate, q driven.SimilarityQuery) []domain.RetrievedChunk {
	results := make([]domain.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if q.DocumentID != nil && c.DocumentID != *q.DocumentID {
			continue
		}
		d := CosineDistance(q.Vector, c.Embedding)
		if q.MaxDistance != nil && d > *q.MaxDistance+DistanceTolerance {
			continue
		}
		results = append(results, domain.RetrievedChunk{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Ordinal:    c.Ordinal,
			Distance:   d,
			Score:      1 - d,
		})
	}

	domain.SortRetrieved(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}
