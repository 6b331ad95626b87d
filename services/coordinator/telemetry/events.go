// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry records retrieval lifecycle events to an embedded
// journal. Events feed tuning and debugging: what was asked, what was
// served, and how confident the client said it was. Recording is
// asynchronous and lossy so a slow disk never stalls a request.
package telemetry

import "time"

// Kind classifies a journal event.
type Kind string

const (
	// KindTurn records one completed retrieval turn.
	KindTurn Kind = "turn"

	// KindFeedback records a confidence evaluation.
	KindFeedback Kind = "feedback"

	// KindSessionDeleted records an explicit session teardown.
	KindSessionDeleted Kind = "session_deleted"

	// KindEpochBump records an embedding cache invalidation.
	KindEpochBump Kind = "epoch_bump"
)

// Event is one journal record. Fields beyond Seq, Kind, and RecordedAt
// are populated per kind; unused fields stay at their zero value and are
// omitted from the stored JSON.
type Event struct {
	// Seq is assigned by the journal on append.
	Seq uint64 `json:"seq"`

	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id,omitempty"`

	// Turn fields.
	Turn        int      `json:"turn,omitempty"`
	Query       string   `json:"query,omitempty"`
	TokenCount  int      `json:"token_count,omitempty"`
	ChunkCount  int      `json:"chunk_count,omitempty"`
	Collections []string `json:"collections,omitempty"`
	Truncated   bool     `json:"truncated,omitempty"`

	// Feedback fields.
	Confidence   float64 `json:"confidence,omitempty"`
	ShouldRefine bool    `json:"should_refine,omitempty"`

	// Epoch bump fields.
	Epoch uint64 `json:"epoch,omitempty"`

	// RecordedAt is set by the journal when left zero.
	RecordedAt time.Time `json:"recorded_at"`
}
