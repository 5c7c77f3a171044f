package aether

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/aether/engine"
	"github.com/hupe1980/aether/model"
	"github.com/hupe1980/aether/persistence"
	"github.com/hupe1980/aether/resource"
)

// Match is a scored search hit.
type Match = model.Match

// idBytes approximates the memory held by one canonical UUID string.
const idBytes = 36

// DB is a sharded vector store. It is safe for concurrent use.
type DB struct {
	opts    options
	engine  *engine.Sharded
	pm      *persistence.Manager // nil without a data directory
	rc      *resource.Controller
	logger  *Logger
	metrics MetricsCollector

	recovery persistence.RecoveryStats

	// bgMu orders starting background checkpoints against Close.
	bgMu          sync.Mutex
	bg            sync.WaitGroup
	checkpointing atomic.Bool
	closed        atomic.Bool
}

// Stats describes a DB.
type Stats struct {
	Shards     int
	Dimension  int
	Vectors    int
	ShardSizes []int

	// MemoryBytes is the approximate memory held by stored vectors.
	MemoryBytes    int64
	ActiveSearches int64

	Persistent  bool
	Persistence persistence.Stats
	Recovery    persistence.RecoveryStats
}

// Open creates a store, recovering it from the data directory if one is
// configured.
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	if o.shards <= 0 {
		return nil, &ErrInvalidShardCount{Shards: o.shards}
	}
	if o.dimension < 0 {
		return nil, &ErrDimensionMismatch{Expected: 0, Actual: o.dimension}
	}

	db := &DB{
		opts:    o,
		rc:      resource.NewController(o.limits),
		logger:  o.logger,
		metrics: o.metricsCollector,
	}

	shards, dim := o.shards, o.dimension
	var set *model.ShardSet
	durability := engine.Durability(engine.NoopDurability{})

	if o.dataDir != "" {
		logger := db.logger.WithDataDir(o.dataDir)

		pm, err := persistence.Open(persistence.Options{
			Dir:             o.dataDir,
			FS:              o.fs,
			Durability:      o.durability,
			Compression:     o.compression,
			CheckpointBytes: o.checkpointBytes,
			CheckpointEvery: o.checkpointEvery,
			Backup:          o.backup,
			Resources:       db.rc,
			Logger:          logger.Logger,
		})
		if err != nil {
			return nil, translateError(err)
		}

		set, db.recovery, err = pm.Recover(ctx, shards, dim)
		if err != nil {
			logger.LogRecovery(ctx, db.recovery, 0, err)
			return nil, errors.Join(translateError(err), pm.Close())
		}
		logger.LogRecovery(ctx, db.recovery, set.Len(), nil)

		shards, dim = len(set.Shards), set.Dimension
		db.pm = pm
		durability = pm
	}

	eng, err := engine.NewSharded(shards,
		engine.WithDimension(dim),
		engine.WithDurability(durability),
		engine.WithBestEffort(o.bestEffort),
		engine.WithWorkers(o.workers),
		engine.WithLogger(db.logger.Logger),
	)
	if err != nil {
		return nil, errors.Join(translateError(err), durability.Close())
	}
	db.engine = eng

	if set != nil {
		if err := eng.Load(set); err != nil {
			return nil, errors.Join(translateError(err), eng.Close())
		}
		db.rc.ForceReserveMemory(int64(set.Len()) * recordBytes(set.Dimension))
	}
	return db, nil
}

func recordBytes(dim int) int64 {
	return int64(dim)*4 + idBytes
}

// Insert stores a copy of vector and returns its new ID.
//
// With a data directory the insert is logged first. If logging fails the
// vector is not stored and the error wraps ErrPersistence, unless
// WithBestEffortDurability is set.
func (db *DB) Insert(ctx context.Context, vector []float32) (string, error) {
	start := time.Now()

	id, err := db.insert(ctx, vector)
	err = translateError(err)

	db.metrics.RecordInsert(time.Since(start), err)
	db.logger.LogInsert(ctx, id, len(vector), err)
	if err != nil {
		return "", err
	}

	db.maybeCheckpoint()
	return id, nil
}

func (db *DB) insert(ctx context.Context, vector []float32) (string, error) {
	if db.closed.Load() {
		return "", ErrClosed
	}

	size := recordBytes(len(vector))
	if err := db.rc.ReserveMemory(size); err != nil {
		return "", err
	}
	id, err := db.engine.Insert(ctx, vector)
	if err != nil {
		db.rc.ReleaseMemory(size)
		return "", err
	}
	return id, nil
}

// Search returns up to limit stored vectors most similar to query, best
// first. A limit of 0 means DefaultLimit. An empty store returns no matches.
func (db *DB) Search(ctx context.Context, query []float32, limit int) ([]Match, error) {
	start := time.Now()

	if limit == 0 {
		limit = DefaultLimit
	}

	matches, err := db.search(ctx, query, limit)
	err = translateError(err)

	db.metrics.RecordSearch(limit, len(matches), time.Since(start), err)
	db.logger.LogSearch(ctx, limit, len(matches), err)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (db *DB) search(ctx context.Context, query []float32, limit int) ([]Match, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if db.closed.Load() {
		return nil, ErrClosed
	}

	if err := db.rc.AcquireSearch(ctx); err != nil {
		return nil, err
	}
	defer db.rc.ReleaseSearch()

	return db.engine.Search(ctx, query, limit)
}

// Get returns a copy of the vector stored under id.
func (db *DB) Get(id string) ([]float32, bool) {
	return db.engine.Get(id)
}

// Len returns the number of stored vectors.
func (db *DB) Len() int {
	return db.engine.Len()
}

// Dimension returns the vector length, or 0 while it is not pinned.
func (db *DB) Dimension() int {
	return db.engine.Dimension()
}

// ShardCount returns the number of shards.
func (db *DB) ShardCount() int {
	return db.engine.ShardCount()
}

// Checkpoint writes a snapshot and truncates the log. Inserts wait while it
// runs; searches do not. It is a no-op without a data directory.
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.checkpoint(ctx, "manual")
}

func (db *DB) checkpoint(ctx context.Context, reason string) error {
	if db.pm == nil {
		return nil
	}

	start := time.Now()
	records := 0
	err := db.engine.Checkpoint(func(set *model.ShardSet) error {
		records = set.Len()
		return db.pm.Checkpoint(ctx, set)
	})
	err = translateError(err)

	db.metrics.RecordCheckpoint(time.Since(start), err)
	db.logger.LogCheckpoint(ctx, reason, records, err)
	return err
}

// maybeCheckpoint starts a background checkpoint once the log passes a
// threshold. At most one runs at a time.
func (db *DB) maybeCheckpoint() {
	if db.pm == nil || !db.pm.NeedsCheckpoint() {
		return
	}
	if !db.checkpointing.CompareAndSwap(false, true) {
		return
	}

	db.bgMu.Lock()
	defer db.bgMu.Unlock()
	if db.closed.Load() {
		db.checkpointing.Store(false)
		return
	}

	db.bg.Add(1)
	go func() {
		defer db.bg.Done()
		defer db.checkpointing.Store(false)
		_ = db.checkpoint(context.Background(), "threshold")
	}()
}

// Backup uploads the current snapshot to the backup store and waits for it.
func (db *DB) Backup(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.pm == nil {
		return ErrNoBackup
	}
	return translateError(db.pm.Backup(ctx))
}

// Stats returns current counters.
func (db *DB) Stats() Stats {
	st := Stats{
		Shards:         db.engine.ShardCount(),
		Dimension:      db.engine.Dimension(),
		Vectors:        db.engine.Len(),
		ShardSizes:     db.engine.ShardLens(),
		MemoryBytes:    db.rc.MemoryUsage(),
		ActiveSearches: db.rc.ActiveSearches(),
		Persistent:     db.pm != nil,
		Recovery:       db.recovery,
	}
	if db.pm != nil {
		st.Persistence = db.pm.Stats()
	}
	return st
}

// Close checkpoints pending log records, waits for background work and
// releases the data directory. Closing twice is a no-op.
func (db *DB) Close() error {
	db.bgMu.Lock()
	if !db.closed.CompareAndSwap(false, true) {
		db.bgMu.Unlock()
		return nil
	}
	db.bgMu.Unlock()

	db.bg.Wait()

	if db.pm != nil && db.pm.Stats().WALRecords > 0 {
		// On failure the log is kept and replayed by the next Open.
		_ = db.checkpoint(context.Background(), "close")
	}
	return translateError(db.engine.Close())
}
