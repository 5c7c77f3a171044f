// Package distance scores vectors by cosine similarity.
//
// Scoring a shard is a single matrix-vector product: the shard's rows are
// kept as one row-major float32 matrix and [CosineBatch] multiplies it with
// the query through BLAS (gonum's blas32.Gemv), then divides by the cached
// row norms. The cost of a full shard scan is O(rows × dimension) but runs
// at the throughput of the vectorized BLAS kernel rather than a Go loop per
// record.
//
// # Degenerate vectors
//
// A zero-norm query or row has no direction. Its score is defined as exactly
// 0, never NaN, so ranking and merging downstream never see an unordered
// value. Any other non-finite quotient is coerced to 0 as well, and finite
// scores are clamped to [-1, 1] to absorb float rounding.
package distance

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// NewVec wraps data as a unit-stride BLAS vector.
func NewVec(data []float32) blas32.Vector {
	return blas32.Vector{
		N:    len(data),
		Inc:  1,
		Data: data,
	}
}

// NewMatrix wraps row-major data with the given number of rows and columns.
func NewMatrix(data []float32, rows, cols int) blas32.General {
	return blas32.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   data,
	}
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return blas32.Nrm2(NewVec(v))
}

// Dot returns the dot product of a and b. Both must have the same length.
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return blas32.Dot(NewVec(a), NewVec(b))
}

// Cosine returns the cosine similarity of a and b, which must have the same
// length. Degenerate inputs yield 0.
func Cosine(a, b []float32) float32 {
	return normalize(Dot(a, b), Norm(a), Norm(b))
}

// CosineBatch writes into out the cosine similarity between query and every
// row of m. rowNorms holds the precomputed L2 norm of each row and out must
// have room for m.Rows values. queryNorm is the norm of query; pass a
// negative value to have it computed.
func CosineBatch(query []float32, queryNorm float32, m blas32.General, rowNorms, out []float32) {
	if m.Rows == 0 {
		return
	}
	if queryNorm < 0 {
		queryNorm = Norm(query)
	}
	y := NewVec(out[:m.Rows])
	if queryNorm == 0 {
		clear(y.Data)
		return
	}

	// out = 1·m·query + 0·out
	blas32.Gemv(blas.NoTrans, 1, m, NewVec(query), 0, y)

	for i := range y.Data {
		y.Data[i] = normalize(y.Data[i], queryNorm, rowNorms[i])
	}
}

func normalize(dot, na, nb float32) float32 {
	if na == 0 || nb == 0 {
		return 0
	}
	s := float64(dot) / (float64(na) * float64(nb))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return float32(s)
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
