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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
)

// countingProvider records how many times Embed runs.
type countingProvider struct {
	calls atomic.Int64
	err   error
	block chan struct{}
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return []float32{float32(len(text)), 1, 2}, nil
}

func (p *countingProvider) Model() string { return "counting" }

func newTestCache(p Provider, opts ...CacheOption) *Cache {
	base := []CacheOption{WithJanitorInterval(0)}
	return NewCache(p, append(base, opts...)...)
}

func TestCache_HitAvoidsSecondProviderCall(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Vector(ctx, "Document", "permission denied")
	require.NoError(t, err)

	second, err := c.Vector(ctx, "Document", "permission denied")
	require.NoError(t, err)

	assert.Equal(t, first, second, "cached vector must be identical")
	assert.Equal(t, int64(1), p.calls.Load(), "provider must be invoked once")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_NormalizationSharesEntries(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p)
	defer c.Close()

	ctx := context.Background()
	_, err := c.Vector(ctx, "Document", "  Permission   DENIED ")
	require.NoError(t, err)
	_, err = c.Vector(ctx, "Document", "permission denied")
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.calls.Load(), "normalized spellings must share one entry")
}

func TestCache_BumpEpochInvalidatesLazily(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p)
	defer c.Close()

	ctx := context.Background()
	_, err := c.Vector(ctx, "Document", "query")
	require.NoError(t, err)

	c.BumpEpoch("Document")
	assert.Equal(t, uint64(1), c.Epoch("Document"))

	_, err = c.Vector(ctx, "Document", "query")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.calls.Load(), "stale epoch must recompute")
}

func TestCache_BumpEpochScopedToCollection(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p)
	defer c.Close()

	ctx := context.Background()
	_, err := c.Vector(ctx, "Document", "query")
	require.NoError(t, err)
	_, err = c.Vector(ctx, "Runbook", "query")
	require.NoError(t, err)
	require.Equal(t, int64(2), p.calls.Load())

	c.BumpEpoch("Document")

	// Runbook entry is untouched.
	_, err = c.Vector(ctx, "Runbook", "query")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.calls.Load())

	// Document entry recomputes.
	_, err = c.Vector(ctx, "Document", "query")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.calls.Load())
}

func TestCache_TTLExpiryRecomputes(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p, WithTTL(time.Millisecond))
	defer c.Close()

	ctx := context.Background()
	_, err := c.Vector(ctx, "Document", "query")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.Vector(ctx, "Document", "query")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestCache_SingleFlightDeduplicatesConcurrentMisses(t *testing.T) {
	p := &countingProvider{block: make(chan struct{})}
	c := newTestCache(p)
	defer c.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Vector(ctx, "Document", "query")
		}()
	}

	// Let the racers queue behind the in-flight compute, then release it.
	time.Sleep(20 * time.Millisecond)
	close(p.block)
	wg.Wait()

	assert.Equal(t, int64(1), p.calls.Load(), "concurrent misses must share one compute")
}

func TestCache_ProviderErrorPropagates(t *testing.T) {
	p := &countingProvider{err: errors.New("embedding backend down")}
	c := newTestCache(p)
	defer c.Close()

	_, err := c.Vector(context.Background(), "Document", "query")
	require.Error(t, err)

	// Errors are not cached; the next call tries again.
	_, err = c.Vector(context.Background(), "Document", "query")
	require.Error(t, err)
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestCache_BreakerFailsFastWhenOpen(t *testing.T) {
	p := &countingProvider{err: errors.New("embedding backend down")}
	cb := breaker.New("embedding", breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	c := newTestCache(p, WithBreaker(cb))
	defer c.Close()

	ctx := context.Background()
	_, _ = c.Vector(ctx, "Document", "a")
	_, _ = c.Vector(ctx, "Document", "b")
	require.Equal(t, breaker.StateOpen, cb.State())

	_, err := c.Vector(ctx, "Document", "c")
	require.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, int64(2), p.calls.Load(), "open breaker must not touch the provider")
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p, WithTTL(time.Millisecond))
	defer c.Close()

	ctx := context.Background()
	_, err := c.Vector(ctx, "Document", "one")
	require.NoError(t, err)
	_, err = c.Vector(ctx, "Document", "two")
	require.NoError(t, err)
	require.Equal(t, 2, c.Stats().Entries)

	time.Sleep(5 * time.Millisecond)
	c.sweep()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(2), stats.Evictions)
}

func TestCache_MaxEntriesEvicts(t *testing.T) {
	p := &countingProvider{}
	c := newTestCache(p, WithMaxEntries(2))
	defer c.Close()

	ctx := context.Background()
	for _, q := range []string{"one", "two", "three"} {
		_, err := c.Vector(ctx, "Document", q)
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.Entries, 2)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello world"},
		{"  spaced\tout\n", "spaced out"},
		{"", ""},
		{"MiXeD", "mixed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeText(tc.in))
	}
}
