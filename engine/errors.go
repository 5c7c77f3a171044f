package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operating on a closed coordinator.
	ErrClosed = errors.New("engine: closed")

	// ErrInvalidLimit is returned when a search limit is not positive.
	ErrInvalidLimit = errors.New("engine: limit must be positive")

	// ErrInvalidVector is returned for empty vectors or vectors containing NaN or Inf.
	ErrInvalidVector = errors.New("engine: vector must be non-empty and finite")

	// ErrInvalidShardCount is returned when the shard count is not positive.
	ErrInvalidShardCount = errors.New("engine: shard count must be positive")

	// ErrPersistence wraps failures of the durability hook.
	ErrPersistence = errors.New("engine: persistence failure")
)

// ErrDimensionMismatch is returned when a vector length differs from the
// dimension the store is pinned to.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("engine: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrShardCountMismatch is returned when loaded state has a different number
// of shards than the coordinator.
type ErrShardCountMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrShardCountMismatch) Error() string {
	return fmt.Sprintf("engine: shard count mismatch: expected %d, got %d", e.Expected, e.Actual)
}
