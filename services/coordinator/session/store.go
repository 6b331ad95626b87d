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
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionConflict is returned when a Put races a concurrent
	// update. Callers reload, re-apply, and retry.
	ErrVersionConflict = errors.New("session version conflict")
)

// DefaultTTL is how long an idle session survives. Every successful Put
// resets the clock.
const DefaultTTL = time.Hour

// Store persists session state with optimistic concurrency.
//
// Put semantics: expectedVersion 0 creates the session and fails with
// ErrVersionConflict if the ID already exists; a non-zero expectedVersion
// updates the session only when the stored version matches, failing with
// ErrSessionNotFound (gone) or ErrVersionConflict (raced) otherwise. On
// success the returned state carries version expectedVersion+1 and the
// idle TTL is refreshed.
//
// Implementations clone on the way in and out; callers never share
// memory with the store.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Put(ctx context.Context, state *State, expectedVersion uint64) (*State, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*State, error)
}
