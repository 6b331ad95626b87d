// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns multi-turn conversation state: which chunks a
// client has already seen, how many turns it has taken, and the queries
// it asked. The manager coordinates retrieval, compression, and
// suggestion assembly around that state.
package session

import (
	"time"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

// MaxTrackedQueries bounds the per-session query history. Older queries
// roll off; the sent-chunk set is what dedup correctness depends on and
// is never trimmed within a session's lifetime.
const MaxTrackedQueries = 100

// State is one session's mutable record.
//
// # Fields
//
//   - ID: Session identifier, a UUID assigned at creation.
//   - CreatedAt / LastActiveAt: Unix milliseconds.
//   - TurnCount: Completed context turns.
//   - SentChunkIDs: Chunk IDs already delivered to this session. Grows
//     monotonically for the session's lifetime.
//   - Queries: Recent queries, most recent last, capped at
//     MaxTrackedQueries.
//   - Version: Optimistic concurrency stamp managed by the Store. Zero
//     means never persisted.
type State struct {
	ID           string          `json:"id"`
	CreatedAt    int64           `json:"created_at"`
	LastActiveAt int64           `json:"last_active_at"`
	TurnCount    int             `json:"turn_count"`
	SentChunkIDs map[string]bool `json:"sent_chunk_ids"`
	Queries      []string        `json:"queries"`
	Version      uint64          `json:"version"`
}

// NewState builds a fresh session record. Version stays zero until the
// first Put persists it.
func NewState(id string, now time.Time) *State {
	ms := now.UnixMilli()
	return &State{
		ID:           id,
		CreatedAt:    ms,
		LastActiveAt: ms,
		SentChunkIDs: map[string]bool{},
	}
}

// Clone deep-copies the state so stores and callers never share maps.
func (s *State) Clone() *State {
	out := *s
	out.SentChunkIDs = make(map[string]bool, len(s.SentChunkIDs))
	for id, v := range s.SentChunkIDs {
		out.SentChunkIDs[id] = v
	}
	out.Queries = append([]string(nil), s.Queries...)
	return &out
}

// RecordTurn folds one completed turn into the state.
func (s *State) RecordTurn(query string, chunkIDs []string, now time.Time) {
	s.TurnCount++
	s.LastActiveAt = now.UnixMilli()
	if s.SentChunkIDs == nil {
		s.SentChunkIDs = map[string]bool{}
	}
	for _, id := range chunkIDs {
		if id != "" {
			s.SentChunkIDs[id] = true
		}
	}
	s.Queries = append(s.Queries, query)
	if len(s.Queries) > MaxTrackedQueries {
		s.Queries = s.Queries[len(s.Queries)-MaxTrackedQueries:]
	}
}

// Snapshot converts the state to its read-only wire form.
func (s *State) Snapshot() datatypes.SessionSnapshot {
	return datatypes.SessionSnapshot{
		SessionID:      s.ID,
		CreatedAt:      s.CreatedAt,
		LastActiveAt:   s.LastActiveAt,
		TurnCount:      s.TurnCount,
		SentChunkCount: len(s.SentChunkIDs),
		Queries:        append([]string(nil), s.Queries...),
	}
}
