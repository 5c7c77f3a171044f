package testutil

import (
	"math"
	"math/rand"
	"slices"
	"sync"
)

// RNG wraps math/rand with a fixed seed. It is safe for concurrent use.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniformRange fills dst with random values in [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*(maxVal-minVal)
	}
}

// UniformVectors returns num vectors with components in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	out := make([][]float32, num)
	for i := range out {
		out[i] = make([]float32, dim)
		r.FillUniformRange(out[i], 0, 1)
	}
	return out
}

// UniformRangeVectors returns num vectors with components in [-1, 1).
func (r *RNG) UniformRangeVectors(num, dim int) [][]float32 {
	out := make([][]float32, num)
	for i := range out {
		out[i] = make([]float32, dim)
		r.FillUniformRange(out[i], -1, 1)
	}
	return out
}

// Candidate is one ground-truth result of ExactTopK.
type Candidate struct {
	Index int
	Score float64
}

// Cosine computes cosine similarity in float64. Zero vectors score 0.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ExactTopK scores query against every vector and returns the k best,
// highest score first. Ties keep dataset order.
func ExactTopK(query []float32, dataset [][]float32, k int) []Candidate {
	all := make([]Candidate, len(dataset))
	for i, v := range dataset {
		all[i] = Candidate{Index: i, Score: Cosine(query, v)}
	}
	slices.SortStableFunc(all, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}
