// Package resource bounds what the store may consume: concurrent searches,
// memory held by stored vectors, background jobs and backup IO bandwidth.
//
// A nil *Controller imposes no limits, so callers never need to check.
package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimit is returned when a reservation would exceed the memory limit.
var ErrMemoryLimit = errors.New("resource: memory limit exceeded")

// Config holds resource limits. Zero values mean unlimited unless noted.
type Config struct {
	// MaxConcurrentSearches bounds searches running at the same time.
	MaxConcurrentSearches int64

	// MemoryLimitBytes is the hard limit for vector data held in memory.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent background
	// jobs (backup uploads). Defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec throttles background IO.
	IOLimitBytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	searchSem *semaphore.Weighted // nil if unlimited
	searches  atomic.Int64

	memUsed atomic.Int64

	bgSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.MaxConcurrentSearches > 0 {
		c.searchSem = semaphore.NewWeighted(cfg.MaxConcurrentSearches)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireSearch admits one search, blocking while the limit is reached.
func (c *Controller) AcquireSearch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.searchSem != nil {
		if err := c.searchSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.searches.Add(1)
	return nil
}

// ReleaseSearch ends a search admitted by AcquireSearch.
func (c *Controller) ReleaseSearch() {
	if c == nil {
		return
	}
	c.searches.Add(-1)
	if c.searchSem != nil {
		c.searchSem.Release(1)
	}
}

// ActiveSearches returns the number of admitted searches.
func (c *Controller) ActiveSearches() int64 {
	if c == nil {
		return 0
	}
	return c.searches.Load()
}

// ReserveMemory accounts for bytes of new data. It fails with
// ErrMemoryLimit instead of blocking, since stored vectors are never freed.
func (c *Controller) ReserveMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	for {
		used := c.memUsed.Load()
		if c.cfg.MemoryLimitBytes > 0 && used+bytes > c.cfg.MemoryLimitBytes {
			return ErrMemoryLimit
		}
		if c.memUsed.CompareAndSwap(used, used+bytes) {
			return nil
		}
	}
}

// ForceReserveMemory accounts for bytes without checking the limit. It is
// used for state recovered at startup.
func (c *Controller) ForceReserveMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(bytes)
}

// ReleaseMemory returns a reservation.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireBackground reserves a background worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireIO waits until the IO limit allows bytes more bytes. Requests
// larger than the limiter burst are split.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
