// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the coordinator service.
//
// This file contains the retrievable-unit types shared by the retrieval,
// compression, and session packages.
package datatypes

import "strings"

// ChunkMetadata carries the indexed properties of a chunk that matter to
// ranking and suggestions. Everything else stays in the vector store.
type ChunkMetadata struct {
	// Source identifies the document or system the chunk came from.
	Source string `json:"source,omitempty"`

	// Category is the taxonomy bucket assigned at ingestion time
	// (for example "containers", "networking", "auth").
	Category string `json:"category,omitempty"`

	// IngestedAt is a Unix timestamp in milliseconds. Zero when the
	// collection schema predates the field.
	IngestedAt int64 `json:"ingested_at,omitempty"`
}

// KnowledgeChunk is one retrievable unit of indexed text.
//
// # Fields
//
//   - ChunkID: Stable identifier, preserved across reindexing where the
//     ingestion pipeline can manage it. Falls back to the store's object ID.
//   - Collection: The collection the chunk was retrieved from.
//   - Text: The chunk content.
//   - Metadata: Source and category information.
//   - Score: Query-specific relevance in [0,1]. Ephemeral: never persisted,
//     only meaningful within the request that produced it.
type KnowledgeChunk struct {
	ChunkID    string        `json:"chunk_id"`
	Collection string        `json:"collection"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	Score      float64       `json:"score,omitempty"`
}

// ContextBundle is the output of compression: the chunks that fit the
// caller's token budget, deduplicated and in rank order.
//
// Invariant: TokenCount is at or under the max_tokens the bundle was built
// for. The budget is never silently exceeded.
type ContextBundle struct {
	Chunks              []KnowledgeChunk   `json:"chunks"`
	TokenCount          int                `json:"token_count"`
	CollectionsSearched []CollectionStatus `json:"collections_searched"`
	Truncated           bool               `json:"truncated"`
	Warnings            []string           `json:"warnings,omitempty"`
}

// Render joins the bundle's chunk texts with blank lines into the context
// string sent to the caller. Token estimation accounts for the joiners via
// its per-chunk overhead margin.
func (b *ContextBundle) Render() string {
	if len(b.Chunks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(b.Chunks))
	for _, c := range b.Chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// ChunkIDs returns the bundle's chunk IDs in order.
func (b *ContextBundle) ChunkIDs() []string {
	ids := make([]string, 0, len(b.Chunks))
	for _, c := range b.Chunks {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

// Categories returns the distinct chunk categories present in the bundle.
// Used to derive follow-up suggestions from the categories that are absent.
func (b *ContextBundle) Categories() map[string]bool {
	seen := make(map[string]bool, len(b.Chunks))
	for _, c := range b.Chunks {
		if c.Metadata.Category != "" {
			seen[c.Metadata.Category] = true
		}
	}
	return seen
}
