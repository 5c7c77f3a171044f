package engine

import (
	"sync"

	"github.com/hupe1980/aether/distance"
	"github.com/hupe1980/aether/model"
)

// MapStore is an in-memory Store.
//
// Vectors are kept in one contiguous row-major matrix with a cached L2 norm
// per row, so scoring the whole shard is a single matrix-vector product.
// An ID index maps each ID to its row.
type MapStore struct {
	mu    sync.RWMutex
	dim   int
	ids   []string
	rows  map[string]int
	data  []float32
	norms []float32
}

// NewMapStore creates an empty store. A dimension of 0 is pinned by the
// first Put.
func NewMapStore(dimension int) *MapStore {
	return &MapStore{
		dim:  dimension,
		rows: make(map[string]int),
	}
}

// Put inserts or overwrites id. An overwrite replaces the row in place.
func (m *MapStore) Put(id string, vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(vector)
	} else if len(vector) != m.dim {
		return &ErrDimensionMismatch{Expected: m.dim, Actual: len(vector)}
	}

	norm := distance.Norm(vector)
	if row, ok := m.rows[id]; ok {
		copy(m.data[row*m.dim:(row+1)*m.dim], vector)
		m.norms[row] = norm
		return nil
	}

	m.rows[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.data = append(m.data, vector...)
	m.norms = append(m.norms, norm)
	return nil
}

// Get returns a copy of the vector stored under id.
func (m *MapStore) Get(id string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, m.dim)
	copy(out, m.data[row*m.dim:])
	return out, true
}

// Len returns the number of stored vectors.
func (m *MapStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimension returns the pinned vector length.
func (m *MapStore) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

// ToMap returns a copy of all data.
func (m *MapStore) ToMap() model.Shard {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(model.Shard, len(m.ids))
	for row, id := range m.ids {
		v := make([]float32, m.dim)
		copy(v, m.data[row*m.dim:])
		out[id] = v
	}
	return out
}

// Score computes the cosine similarity of query with every row.
// The caller must have checked that len(query) equals the dimension.
func (m *MapStore) Score(query []float32, queryNorm float32) []model.Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.ids)
	if n == 0 {
		return nil
	}

	scores := make([]float32, n)
	distance.CosineBatch(query, queryNorm, distance.NewMatrix(m.data, n, m.dim), m.norms, scores)

	out := make([]model.Match, n)
	for row, id := range m.ids {
		out[row] = model.Match{ID: id, Score: scores[row]}
	}
	return out
}

var _ Store = (*MapStore)(nil)
