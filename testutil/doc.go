// Package testutil provides helpers for tests and benchmarks: a seeded,
// goroutine-safe RNG, random vector generators and a brute-force cosine
// top-K used as ground truth for search results.
//
//	rng := testutil.NewRNG(4711)
//	vecs := rng.UniformRangeVectors(100, 16)
//	want := testutil.ExactTopK(query, vecs, 3)
package testutil
