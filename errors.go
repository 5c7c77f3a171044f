package aether

import (
	"errors"
	"fmt"

	"github.com/hupe1980/aether/engine"
	"github.com/hupe1980/aether/persistence"
	"github.com/hupe1980/aether/resource"
)

var (
	// ErrClosed is returned when operating on a closed DB.
	ErrClosed = errors.New("aether: closed")

	// ErrInvalidLimit is returned for a negative search limit.
	ErrInvalidLimit = errors.New("aether: limit must not be negative")

	// ErrInvalidVector is returned for empty vectors or vectors containing
	// NaN or Inf.
	ErrInvalidVector = errors.New("aether: vector must be non-empty and finite")

	// ErrPersistence is returned when an insert cannot be logged.
	ErrPersistence = errors.New("aether: persistence failure")

	// ErrMemoryLimit is returned when an insert would exceed the configured
	// memory limit.
	ErrMemoryLimit = errors.New("aether: memory limit exceeded")

	// ErrNoBackup is returned by Backup without a backup store or data
	// directory.
	ErrNoBackup = errors.New("aether: no backup store configured")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidShardCount indicates a non-positive shard count.
type ErrInvalidShardCount struct {
	Shards int
	cause  error
}

func (e *ErrInvalidShardCount) Error() string {
	return fmt.Sprintf("invalid shard count: %d", e.Shards)
}

func (e *ErrInvalidShardCount) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *engine.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	switch {
	case errors.Is(err, engine.ErrClosed), errors.Is(err, persistence.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, engine.ErrInvalidVector):
		return fmt.Errorf("%w: %w", ErrInvalidVector, err)
	case errors.Is(err, engine.ErrInvalidLimit):
		return fmt.Errorf("%w: %w", ErrInvalidLimit, err)
	case errors.Is(err, engine.ErrPersistence):
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	case errors.Is(err, resource.ErrMemoryLimit):
		return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
	case errors.Is(err, persistence.ErrNoBackup):
		return fmt.Errorf("%w: %w", ErrNoBackup, err)
	}
	return err
}
