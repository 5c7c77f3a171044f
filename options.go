package aether

import (
	"log/slog"

	"github.com/hupe1980/aether/blobstore"
	afs "github.com/hupe1980/aether/internal/fs"
	"github.com/hupe1980/aether/persistence"
	"github.com/hupe1980/aether/resource"
	"github.com/hupe1980/aether/snapshot"
	"github.com/hupe1980/aether/wal"
)

const (
	// DefaultShards is the number of shards of a new store.
	DefaultShards = 2

	// DefaultLimit is the number of matches Search returns for limit 0.
	DefaultLimit = 3
)

// Durability controls when Insert returns relative to the log fsync.
type Durability = wal.Durability

const (
	// DurabilitySync returns once the insert is fsynced. Default.
	DurabilitySync = wal.DurabilitySync
	// DurabilityAsync returns once the insert reached the OS page cache.
	DurabilityAsync = wal.DurabilityAsync
)

// Compression is the snapshot compression algorithm.
type Compression = snapshot.Compression

const (
	CompressionNone = snapshot.CompressionNone
	CompressionLZ4  = snapshot.CompressionLZ4
	CompressionZstd = snapshot.CompressionZstd
)

// ResourceLimits bounds searches, memory and backup IO. Zero means unlimited.
type ResourceLimits = resource.Config

type options struct {
	dataDir          string
	shards           int
	dimension        int
	durability       Durability
	bestEffort       bool
	checkpointBytes  int64
	checkpointEvery  int
	compression      Compression
	backup           blobstore.Store
	limits           ResourceLimits
	workers          int
	fs               afs.FileSystem
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithDataDir persists the store in dir. Without it the store lives in
// memory only and every persistence option is ignored.
func WithDataDir(dir string) Option {
	return func(o *options) {
		o.dataDir = dir
	}
}

// WithShards sets the number of shards (default 2).
//
// The shard count of persisted data cannot change: when the data directory
// already holds a snapshot, its shard count wins and a warning is logged.
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// WithDimension fixes the vector length. 0 (the default) pins it on the
// first insert. Open fails if persisted data has another dimension.
func WithDimension(d int) Option {
	return func(o *options) {
		o.dimension = d
	}
}

// WithDurability sets the log durability (default DurabilitySync).
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithBestEffortDurability keeps inserts succeeding when the log cannot be
// written. The failure is logged and the vector lives in memory only until
// the next successful checkpoint.
func WithBestEffortDurability() Option {
	return func(o *options) {
		o.bestEffort = true
	}
}

// WithCheckpointBytes checkpoints once the log grows past n bytes
// (default 64 MiB). A negative value disables the size trigger.
func WithCheckpointBytes(n int64) Option {
	return func(o *options) {
		o.checkpointBytes = n
	}
}

// WithCheckpointEvery checkpoints after n logged inserts. 0 disables it.
func WithCheckpointEvery(n int) Option {
	return func(o *options) {
		o.checkpointEvery = n
	}
}

// WithCompression sets the snapshot compression (default none).
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithBackup copies every snapshot to store. A data directory without a
// snapshot is seeded from the backup on Open.
func WithBackup(store blobstore.Store) Option {
	return func(o *options) {
		o.backup = store
	}
}

// WithResourceLimits bounds concurrent searches, vector memory and backup
// bandwidth.
func WithResourceLimits(limits ResourceLimits) Option {
	return func(o *options) {
		o.limits = limits
	}
}

// WithWorkers sets the size of the search worker pool.
// The default is max(shards, GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithFileSystem replaces the file system used for the data directory.
func WithFileSystem(fs afs.FileSystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &aether.BasicMetricsCollector{}
//	db, _ := aether.Open(ctx, aether.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := aether.NewJSONLogger(slog.LevelInfo)
//	db, _ := aether.Open(ctx, aether.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		shards:           DefaultShards,
		checkpointBytes:  persistence.DefaultCheckpointBytes,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
