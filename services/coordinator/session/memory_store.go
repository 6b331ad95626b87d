// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// memoryPurgeInterval is how often expired sessions are swept.
const memoryPurgeInterval = 10 * time.Minute

// MemoryStore keeps sessions in process memory with TTL expiry. It is
// the default store; sessions do not survive restarts, which multi-turn
// clients already tolerate by re-sending previous_context_ids.
type MemoryStore struct {
	// mu serializes Put and Delete; go-cache has no compare-and-swap,
	// so the version check and the write must be one critical section.
	mu sync.Mutex
	c  *cache.Cache
}

// NewMemoryStore builds a store whose sessions expire after ttl of
// inactivity. Non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{c: cache.New(ttl, memoryPurgeInterval)}
}

// Get returns a copy of the session, or ErrSessionNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	v, ok := s.c.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v.(*State).Clone(), nil
}

// Put applies the optimistic write described on Store.
func (s *MemoryStore) Put(_ context.Context, state *State, expectedVersion uint64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.c.Get(state.ID)
	if expectedVersion == 0 {
		if exists {
			return nil, ErrVersionConflict
		}
	} else {
		if !exists {
			return nil, ErrSessionNotFound
		}
		if current.(*State).Version != expectedVersion {
			return nil, ErrVersionConflict
		}
	}

	stored := state.Clone()
	stored.Version = expectedVersion + 1
	// Set with the default expiration refreshes the idle TTL.
	s.c.Set(state.ID, stored, cache.DefaultExpiration)
	return stored.Clone(), nil
}

// Delete removes the session, or reports ErrSessionNotFound.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.c.Get(id); !ok {
		return ErrSessionNotFound
	}
	s.c.Delete(id)
	return nil
}

// List returns copies of all live sessions, most recently active first.
func (s *MemoryStore) List(_ context.Context) ([]*State, error) {
	items := s.c.Items()
	out := make([]*State, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*State).Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActiveAt != out[j].LastActiveAt {
			return out[i].LastActiveAt > out[j].LastActiveAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
