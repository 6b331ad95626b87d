// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"encoding/hex"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
)

// Default configuration values.
const (
	// DefaultTTL is how long a cached vector stays valid.
	DefaultTTL = 15 * time.Minute

	// DefaultJanitorInterval is how often expired entries are swept.
	DefaultJanitorInterval = 5 * time.Minute

	// DefaultMaxEntries caps the cache size. Query vectors are small, so
	// this is a safety valve, not a tuning knob.
	DefaultMaxEntries = 4096
)

// CacheOptions configures Cache behavior.
type CacheOptions struct {
	// TTL is the lifetime of a cached vector.
	TTL time.Duration

	// JanitorInterval controls the expired-entry sweep. Zero disables
	// the janitor; expired entries are then only replaced on access.
	JanitorInterval time.Duration

	// MaxEntries caps the number of cached vectors.
	MaxEntries int

	// Breaker, when set, guards provider calls. A provider outage trips
	// it and subsequent misses fail fast instead of piling up.
	Breaker *breaker.CircuitBreaker
}

// DefaultCacheOptions returns sensible defaults.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		TTL:             DefaultTTL,
		JanitorInterval: DefaultJanitorInterval,
		MaxEntries:      DefaultMaxEntries,
	}
}

// CacheOption is a functional option for configuring Cache.
type CacheOption func(*CacheOptions)

// WithTTL sets the vector lifetime.
func WithTTL(d time.Duration) CacheOption {
	return func(o *CacheOptions) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithJanitorInterval sets the expired-entry sweep interval.
func WithJanitorInterval(d time.Duration) CacheOption {
	return func(o *CacheOptions) {
		o.JanitorInterval = d
	}
}

// WithMaxEntries caps the cache size.
func WithMaxEntries(n int) CacheOption {
	return func(o *CacheOptions) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithBreaker guards provider calls with the given breaker.
func WithBreaker(cb *breaker.CircuitBreaker) CacheOption {
	return func(o *CacheOptions) {
		o.Breaker = cb
	}
}

// CacheStats is an observability snapshot.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// cacheEntry is one memoized vector tagged with the epoch of its
// collection at compute time.
type cacheEntry struct {
	vector    []float32
	epoch     uint64
	expiresAt int64 // Unix milliseconds
}

// Cache memoizes text→vector computation per collection.
//
// The key is a stable hash of (model, normalized text) scoped by the
// collection the vector will be searched against. BumpEpoch(collection)
// increments that collection's epoch counter, so every previously stored
// entry for it fails the epoch comparison on its next lookup — lazy
// invalidation, no enumeration.
//
// Thread Safety: safe for concurrent use. Concurrent misses on the same
// key are deduplicated with singleflight; recompute would be idempotent,
// but there is no reason to pay for an embedding twice.
type Cache struct {
	provider Provider
	options  CacheOptions

	mu      sync.RWMutex
	entries map[string]cacheEntry
	epochs  map[string]uint64

	flight singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
}

// NewCache creates a cache in front of the given provider and starts the
// janitor when an interval is configured. Call Close when done.
func NewCache(provider Provider, opts ...CacheOption) *Cache {
	options := DefaultCacheOptions()
	for _, opt := range opts {
		opt(&options)
	}

	c := &Cache{
		provider:    provider,
		options:     options,
		entries:     make(map[string]cacheEntry),
		epochs:      make(map[string]uint64),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}

	if options.JanitorInterval > 0 {
		go c.janitor()
	} else {
		close(c.janitorDone)
	}
	return c
}

// Vector returns the embedding for text, scoped to collection, computing
// it through the provider (and breaker, if configured) on a miss or a
// stale epoch.
func (c *Cache) Vector(ctx context.Context, collection, text string) ([]float32, error) {
	norm := normalizeText(text)
	key := c.cacheKey(collection, norm)

	// The epoch is captured before any compute so a bump that lands
	// mid-flight marks the stored entry stale rather than fresh.
	epoch := c.currentEpoch(collection)

	if vec, ok := c.lookup(key, epoch); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A flight member that queued behind the winner finds the entry
		// already stored.
		if vec, ok := c.lookup(key, epoch); ok {
			return vec, nil
		}
		vec, err := c.compute(ctx, norm)
		if err != nil {
			return nil, err
		}
		c.store(key, vec, epoch)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// BumpEpoch increments collection's epoch counter. All prior entries for
// that collection become misses lazily.
func (c *Cache) BumpEpoch(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[collection]++
}

// Epoch returns collection's current epoch counter.
func (c *Cache) Epoch(collection string) uint64 {
	return c.currentEpoch(collection)
}

// Model exposes the underlying provider's model name.
func (c *Cache) Model() string {
	return c.provider.Model()
}

// Stats returns current cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
	}
}

// Close stops the janitor. Safe to call multiple times.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.janitorStop)
	})
	<-c.janitorDone
}

// lookup returns the cached vector when present, epoch-fresh, and
// unexpired.
func (c *Cache) lookup(key string, epoch uint64) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.epoch != epoch || time.Now().UnixMilli() >= e.expiresAt {
		return nil, false
	}
	return e.vector, true
}

// compute calls the provider, through the breaker when configured.
func (c *Cache) compute(ctx context.Context, text string) ([]float32, error) {
	if c.options.Breaker == nil {
		return c.provider.Embed(ctx, text)
	}

	var vec []float32
	err := c.options.Breaker.ExecuteContext(ctx, func(callCtx context.Context) error {
		v, err := c.provider.Embed(callCtx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// store inserts a computed vector, evicting an arbitrary entry when the
// cache is at capacity.
func (c *Cache) store(key string, vec []float32, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.options.MaxEntries {
		for k := range c.entries {
			delete(c.entries, k)
			c.evictions.Add(1)
			break
		}
	}

	c.entries[key] = cacheEntry{
		vector:    vec,
		epoch:     epoch,
		expiresAt: time.Now().Add(c.options.TTL).UnixMilli(),
	}
}

func (c *Cache) currentEpoch(collection string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[collection]
}

// cacheKey builds the collection-scoped key from the FNV-64a hash of
// (model, normalized text).
func (c *Cache) cacheKey(collection, normalizedText string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.provider.Model()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalizedText))
	return collection + ":" + hex.EncodeToString(h.Sum(nil))
}

// janitor sweeps expired entries on the configured interval.
func (c *Cache) janitor() {
	defer close(c.janitorDone)

	ticker := time.NewTicker(c.options.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.janitorStop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes every expired entry.
func (c *Cache) sweep() {
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now >= e.expiresAt {
			delete(c.entries, k)
			c.evictions.Add(1)
		}
	}
}

// normalizeText trims, collapses runs of whitespace, and lowercases so
// trivially different spellings of the same query share a cache entry.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
