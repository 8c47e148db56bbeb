// Package cache provides the run-scoped fit cache: at most one sampler
// invocation per distinct model specification per run. There is no eviction
// policy on purpose - entries live until Clear, because a workflow run is
// the whole lifetime.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/CraigKelly/bayescmp/sampler"
	"github.com/CraigKelly/bayescmp/spec"
)

// A FitFunc computes a fit for a spec - normally an Adapter's Fit method.
type FitFunc func(ctx context.Context, sp *spec.ModelSpec) (*sampler.FitResult, error)

// Stats reports cache activity counters.
type Stats struct {
	Hits   int64
	Misses int64
	Fits   int64
}

// A Cache maps canonical spec keys to fit results. Concurrent requests for
// the same key share one computation (the rest block on it); distinct keys
// fit in parallel up to the configured admission limit, beyond which
// requests queue. Failed results are stored like successes so one model's
// failure is visible to every requester, EXCEPT timeouts and cancellations,
// which are returned to the waiters of that computation but never stored -
// a fresh request may retry.
type Cache struct {
	mu      sync.RWMutex
	entries map[spec.CacheKey]*sampler.FitResult

	flight  singleflight.Group
	sem     *semaphore.Weighted
	timeout time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	fits   atomic.Int64
}

// New creates a cache admitting up to maxConcurrent simultaneous fits and
// applying timeout to each fit (0 means no per-fit timeout beyond the
// caller's context).
func New(maxConcurrent int64, timeout time.Duration) *Cache {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Cache{
		entries: make(map[spec.CacheKey]*sampler.FitResult),
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
	}
}

// GetOrFit returns the cached result for the spec, computing it with fn on
// first request. The returned error is only for infrastructure failures
// from fn; sampler-level failures arrive as Failed results.
func (c *Cache) GetOrFit(ctx context.Context, sp *spec.ModelSpec, fn FitFunc) (*sampler.FitResult, error) {
	if sp == nil {
		return nil, errors.New("No spec supplied")
	}
	key := sp.Key()

	if res, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return res, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(string(key), func() (interface{}, error) {
		// A just-finished flight may have stored this key already
		if res, ok := c.lookup(key); ok {
			return res, nil
		}
		return c.fit(ctx, key, sp, fn)
	})
	if err != nil {
		return nil, err
	}

	return v.(*sampler.FitResult), nil
}

// fit runs one admission-controlled, deadline-bounded computation.
func (c *Cache) fit(ctx context.Context, key spec.CacheKey, sp *spec.ModelSpec, fn FitFunc) (*sampler.FitResult, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		// Gave up while queued - same shape as a fit-level timeout/cancel
		return admissionFailure(sp, err), nil
	}
	defer c.sem.Release(1)

	fctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := fn(fctx, sp)
	if err != nil {
		return nil, errors.Wrapf(err, "Fit function failed for %s", key)
	}
	if res == nil {
		return nil, errors.Errorf("Fit function returned no result for %s", key)
	}
	c.fits.Add(1)

	if !res.Retryable() {
		c.store(key, res)
	}
	return res, nil
}

func admissionFailure(sp *spec.ModelSpec, err error) *sampler.FitResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return sampler.Failure(sp, sampler.ReasonTimeout, "timed out waiting for a fit slot")
	}
	return sampler.Failure(sp, sampler.ReasonCanceled, "canceled while waiting for a fit slot")
}

func (c *Cache) lookup(key spec.CacheKey) (*sampler.FitResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok
}

func (c *Cache) store(key spec.CacheKey, res *sampler.FitResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = res
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the activity counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Fits:   c.fits.Load(),
	}
}

// Clear drops every entry. This is the only eviction: the cache is scoped
// to a single workflow run and torn down with it.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[spec.CacheKey]*sampler.FitResult)
}
