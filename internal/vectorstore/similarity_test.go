package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	v := []float32{0.3, -1.2, 4}

	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	assert.Equal(t, 0.0, Cosine(v, []float32{0, 0, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0, 0}, []float32{0, 0, 0}))
	assert.InDelta(t, Cosine(v, []float32{1, 2, 3}), Cosine([]float32{1, 2, 3}, v), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
}

func candidate(seq int64, vec ...float32) Candidate {
	return Candidate{Chunk: Chunk{Seq: seq, Embedding: vec}}
}

func TestRank_OrdersFiltersAndTruncates(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		candidate(1, 0, 1),    // 0.0
		candidate(2, 1, 1),    // ~0.707
		candidate(3, 1, 0.1),  // ~0.995
		candidate(4, 1, 0.5),  // ~0.894
		candidate(5, -1, 0),   // -1.0
		candidate(6, 1, 0.55), // ~0.876
	}

	results := Rank(candidates, query, SearchOptions{TopK: 3, MinSimilarity: Threshold(0.5)})

	require.Len(t, results, 3)
	assert.Equal(t, int64(3), results[0].Chunk.Seq)
	assert.Equal(t, int64(4), results[1].Chunk.Seq)
	assert.Equal(t, int64(6), results[2].Chunk.Seq)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.5)
	}
}

func TestRank_TiesKeepInsertionOrder(t *testing.T) {
	query := []float32{1, 1}
	candidates := []Candidate{
		candidate(30, 1, 1),
		candidate(10, 1, 1),
		candidate(20, 1, 1),
	}

	results := Rank(candidates, query, SearchOptions{TopK: 5, MinSimilarity: Threshold(0.5)})

	require.Len(t, results, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{results[0].Chunk.Seq, results[1].Chunk.Seq, results[2].Chunk.Seq})
}

func TestRank_DefaultsApply(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, candidate(int64(i), 1, 0))
	}
	candidates = append(candidates, candidate(99, 1, 1.5)) // ~0.55

	results := Rank(candidates, []float32{1, 0}, SearchOptions{})

	assert.Len(t, results, 5)
	assert.Empty(t, Rank(nil, []float32{1, 0}, SearchOptions{}))
}

func TestRank_ZeroThresholdIsKept(t *testing.T) {
	candidates := []Candidate{
		candidate(1, 1, 0),
		candidate(2, 0, 1), // 0.0
		candidate(3, -1, 0),
	}

	results := Rank(candidates, []float32{1, 0}, SearchOptions{TopK: 5, MinSimilarity: Threshold(0)})
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Chunk.Seq)
	assert.Equal(t, int64(2), results[1].Chunk.Seq)

	results = Rank(candidates, []float32{1, 0}, SearchOptions{TopK: 5})
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Chunk.Seq)
}

func TestRank_ZeroVectorsNeverMatch(t *testing.T) {
	candidates := []Candidate{
		candidate(1, 0, 0),
		candidate(2, 1, 0),
	}

	assert.Empty(t, Rank(candidates, []float32{0, 0}, SearchOptions{MinSimilarity: Threshold(-1)}))

	results := Rank(candidates, []float32{1, 0}, SearchOptions{MinSimilarity: Threshold(-1)})
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].Chunk.Seq)
}
