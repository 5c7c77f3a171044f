package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/aether/distance"
	"github.com/hupe1980/aether/model"
)

// Option configures a Sharded coordinator.
type Option func(*options)

type options struct {
	dimension  int
	durability Durability
	bestEffort bool
	workers    int
	logger     *slog.Logger
	newID      IDFunc
}

// WithDimension pins the vector length up front. 0 pins it on first insert.
func WithDimension(d int) Option {
	return func(o *options) { o.dimension = d }
}

// WithDurability sets the hook every insert is logged through.
func WithDurability(d Durability) Option {
	return func(o *options) { o.durability = d }
}

// WithBestEffort makes inserts succeed even when the durability hook fails.
// The failure is logged and the vector is applied in memory only.
func WithBestEffort(enabled bool) Option {
	return func(o *options) { o.bestEffort = enabled }
}

// WithWorkers sets the size of the scatter worker pool.
// The default is max(shards, GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIDFunc replaces the UUID generator.
func WithIDFunc(fn IDFunc) Option {
	return func(o *options) { o.newID = fn }
}

// Sharded partitions vectors across a fixed number of in-memory shards.
//
// Inserts hold the gate shared, so they proceed concurrently and can share
// a log sync. Exclusive holders (Checkpoint, Load, Close) therefore see
// every logged insert already applied. Searches do not touch the gate: the
// shard read locks are enough to never observe a half-written row.
type Sharded struct {
	gate   sync.RWMutex
	shards []*MapStore
	dim    atomic.Int64
	// pinMu serializes inserts while the dimension is still open.
	pinMu sync.Mutex

	durability Durability
	bestEffort bool
	pool       *WorkerPool
	logger     *slog.Logger
	newID      IDFunc

	closed atomic.Bool
}

// NewSharded creates a coordinator with shardCount empty shards.
func NewSharded(shardCount int, optFns ...Option) (*Sharded, error) {
	if shardCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardCount, shardCount)
	}

	o := options{
		durability: NoopDurability{},
		newID:      NewID,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.dimension < 0 {
		return nil, &ErrDimensionMismatch{Expected: 0, Actual: o.dimension}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.workers <= 0 {
		o.workers = max(shardCount, runtime.GOMAXPROCS(0))
	}

	shards := make([]*MapStore, shardCount)
	for i := range shards {
		shards[i] = NewMapStore(o.dimension)
	}

	s := &Sharded{
		shards:     shards,
		durability: o.durability,
		bestEffort: o.bestEffort,
		pool:       NewWorkerPool(o.workers),
		logger:     o.logger,
		newID:      o.newID,
	}
	s.dim.Store(int64(o.dimension))
	return s, nil
}

// ShardCount returns the number of shards.
func (s *Sharded) ShardCount() int { return len(s.shards) }

// Dimension returns the pinned vector length, or 0 if not yet pinned.
func (s *Sharded) Dimension() int { return int(s.dim.Load()) }

// checkVector validates v against the pinned dimension, if any.
func (s *Sharded) checkVector(v []float32) error {
	if len(v) == 0 || !distance.IsFinite(v) {
		return ErrInvalidVector
	}
	if want := s.dim.Load(); want != 0 && int(want) != len(v) {
		return &ErrDimensionMismatch{Expected: int(want), Actual: len(v)}
	}
	return nil
}

// Insert stores a copy of vector under a fresh ID and returns the ID.
//
// The insert is logged through the durability hook first. If that fails the
// vector is not stored and the error wraps ErrPersistence, unless the
// coordinator runs in best-effort mode.
func (s *Sharded) Insert(ctx context.Context, vector []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.closed.Load() {
		return "", ErrClosed
	}
	if err := s.checkVector(vector); err != nil {
		return "", err
	}
	if s.dim.Load() == 0 {
		// The dimension is pinned only by an insert that is actually stored.
		s.pinMu.Lock()
		defer s.pinMu.Unlock()

		if err := s.checkVector(vector); err != nil {
			return "", err
		}
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	id := s.newID()
	shard := Route(id, len(s.shards))

	if err := s.durability.LogInsert(id, v); err != nil {
		if !s.bestEffort {
			return "", fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		s.logger.Error("insert not persisted", "id", id, "shard", shard, "error", err)
	}

	if err := s.shards[shard].Put(id, v); err != nil {
		return "", err
	}
	s.dim.CompareAndSwap(0, int64(len(v)))

	s.logger.Debug("insert completed", "id", id, "shard", shard)
	return id, nil
}

// Search returns up to limit stored vectors most similar to query, best
// first. Ties keep shard order, then insertion order within the shard.
func (s *Sharded) Search(ctx context.Context, query []float32, limit int) ([]model.Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := s.checkVector(query); err != nil {
		return nil, err
	}
	if s.Dimension() == 0 {
		// Nothing was ever stored.
		return []model.Match{}, nil
	}

	s.logger.Debug("search broadcast", "shards", len(s.shards), "limit", limit)

	qnorm := distance.Norm(query)
	parts := make([][]model.Match, len(s.shards))

	var wg sync.WaitGroup
	for i, shard := range s.shards {
		if shard.Len() == 0 {
			continue
		}

		wg.Add(1)
		err := s.pool.Submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			// Shard-local selection keeps the merge input at most
			// limit per shard.
			parts[i] = mergeTopK([][]model.Match{shard.Score(query, qnorm)}, limit)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit shard %d: %w", i, err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search cancelled: %w", err)
	}

	matches := mergeTopK(parts, limit)
	s.logger.Debug("search completed", "limit", limit, "results", len(matches))
	return matches, nil
}

// Get returns a copy of the vector stored under id, looking only in the
// shard the ID routes to.
func (s *Sharded) Get(id string) ([]float32, bool) {
	return s.shards[Route(id, len(s.shards))].Get(id)
}

// Len returns the total number of stored vectors.
func (s *Sharded) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Len()
	}
	return n
}

// ShardLens returns the number of vectors per shard.
func (s *Sharded) ShardLens() []int {
	out := make([]int, len(s.shards))
	for i, shard := range s.shards {
		out[i] = shard.Len()
	}
	return out
}

// Export returns a deep copy of the current state. It waits for in-flight
// inserts, so the copy contains every insert that has been logged.
func (s *Sharded) Export() *model.ShardSet {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.export()
}

func (s *Sharded) export() *model.ShardSet {
	set := &model.ShardSet{
		Dimension: s.Dimension(),
		Shards:    make([]model.Shard, len(s.shards)),
	}
	for i, shard := range s.shards {
		set.Shards[i] = shard.ToMap()
	}
	return set
}

// Checkpoint runs fn with a consistent copy of the state while inserts are
// held off. Inserts logged before fn returns are reflected in the copy.
func (s *Sharded) Checkpoint(fn func(set *model.ShardSet) error) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	return fn(s.export())
}

// Load replaces the current state with set. The shard count must match.
// Records stay in the shard set holds them in; they are not re-routed.
func (s *Sharded) Load(set *model.ShardSet) error {
	if len(set.Shards) != len(s.shards) {
		return &ErrShardCountMismatch{Expected: len(s.shards), Actual: len(set.Shards)}
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	dim := s.Dimension()
	if set.Dimension != 0 {
		if dim != 0 && dim != set.Dimension {
			return &ErrDimensionMismatch{Expected: dim, Actual: set.Dimension}
		}
		dim = set.Dimension
	}

	fresh := make([]*MapStore, len(s.shards))
	for i, shard := range set.Shards {
		fresh[i] = NewMapStore(dim)
		for _, id := range set.SortedIDs(i) {
			if err := fresh[i].Put(id, shard[id]); err != nil {
				return fmt.Errorf("load shard %d: %w", i, err)
			}
			dim = fresh[i].Dimension()
		}
	}

	// Swap rows in place so concurrent searches keep valid store pointers.
	for i, shard := range s.shards {
		shard.mu.Lock()
		shard.dim = dim
		shard.ids = fresh[i].ids
		shard.rows = fresh[i].rows
		shard.data = fresh[i].data
		shard.norms = fresh[i].norms
		shard.mu.Unlock()
	}
	s.dim.Store(int64(dim))
	return nil
}

// Close stops the worker pool and closes the durability hook.
func (s *Sharded) Close() error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.pool.Close()
	return s.durability.Close()
}
