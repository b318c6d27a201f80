package vectorstore

import (
	"math"
	"sort"
)

// Cosine returns dot(a,b) / (|a|*|b|), or 0 when either vector has zero
// magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Candidate is a stored chunk considered by brute-force ranking.
type Candidate struct {
	Chunk    Chunk
	Title    string
	Category string
}

// Rank scores every candidate against query, keeps those at or above the
// minimum similarity and returns the best opts.TopK, highest first. Equal
// similarities keep insertion order. Zero-magnitude vectors on either side
// never match.
func Rank(candidates []Candidate, query []float32, opts SearchOptions) []SearchResult {
	opts = opts.withDefaults()

	results := make([]SearchResult, 0, len(candidates))
	if isZero(query) {
		return results
	}
	for _, c := range candidates {
		if isZero(c.Chunk.Embedding) {
			continue
		}
		sim := Cosine(query, c.Chunk.Embedding)
		if sim < opts.threshold() {
			continue
		}
		results = append(results, SearchResult{
			Chunk:      c.Chunk,
			Title:      c.Title,
			Category:   c.Category,
			Similarity: sim,
		})
	}

	sortResults(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.Seq < results[j].Chunk.Seq
	})
}
