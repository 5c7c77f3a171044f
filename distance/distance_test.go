package distance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func naiveCosine(a, b []float32) float64 {
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

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"Opposite", []float32{1, 2, 3}, []float32{-1, -2, -3}, -1},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"ZeroLeft", []float32{0, 0, 0}, []float32{1, 1, 1}, 0},
		{"ZeroRight", []float32{1, 1, 1}, []float32{0, 0, 0}, 0},
		{"BothZero", []float32{0, 0}, []float32{0, 0}, 0},
		{"Empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.False(t, math.IsNaN(float64(got)))
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	t.Run("KingQueenTable", func(t *testing.T) {
		king := []float32{1, 1, 1}
		queen := []float32{1, 1, 0.9}
		table := []float32{0, 0, 1}

		assert.InDelta(t, 0.9988, Cosine(king, queen), 1e-4)
		assert.InDelta(t, 0.5774, Cosine(king, table), 1e-4)
	})
}

func TestCosineBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const rows, dim = 37, 16

	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	// One degenerate row.
	clear(data[5*dim : 6*dim])

	norms := make([]float32, rows)
	for i := 0; i < rows; i++ {
		norms[i] = Norm(data[i*dim : (i+1)*dim])
	}
	query := make([]float32, dim)
	for i := range query {
		query[i] = rng.Float32()*2 - 1
	}

	out := make([]float32, rows)
	CosineBatch(query, -1, NewMatrix(data, rows, dim), norms, out)

	for i := 0; i < rows; i++ {
		want := naiveCosine(query, data[i*dim:(i+1)*dim])
		assert.InDelta(t, want, out[i], 1e-5, "row %d", i)
		assert.GreaterOrEqual(t, out[i], float32(-1))
		assert.LessOrEqual(t, out[i], float32(1))
	}
	assert.Equal(t, float32(0), out[5])

	t.Run("ZeroQuery", func(t *testing.T) {
		out := make([]float32, rows)
		for i := range out {
			out[i] = 42
		}
		CosineBatch(make([]float32, dim), -1, NewMatrix(data, rows, dim), norms, out)
		for _, s := range out {
			assert.Equal(t, float32(0), s)
		}
	})

	t.Run("NoRows", func(t *testing.T) {
		require.NotPanics(t, func() {
			CosineBatch(query, -1, NewMatrix(nil, 0, dim), nil, nil)
		})
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float32(0), normalize(float32(math.NaN()), 1, 1))
	assert.Equal(t, float32(0), normalize(float32(math.Inf(1)), 1, 1))
	assert.Equal(t, float32(1), normalize(1.0000001, 1, 1))
	assert.Equal(t, float32(-1), normalize(-1.0000001, 1, 1))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite([]float32{1, -2, 0}))
	assert.False(t, IsFinite([]float32{1, float32(math.NaN())}))
	assert.False(t, IsFinite([]float32{float32(math.Inf(-1))}))
}
