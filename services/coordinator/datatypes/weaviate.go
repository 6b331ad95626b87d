// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the expected
// response shape.
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Knowledge Class Response Types
// =============================================================================

// KnowledgeQueryResponse represents a Get query against any knowledge
// collection. The Get map is keyed by class name because collections are
// configured at runtime rather than fixed at compile time.
type KnowledgeQueryResponse struct {
	Get map[string][]KnowledgeResult `json:"Get"`
}

// KnowledgeResult represents a single knowledge chunk from a query.
type KnowledgeResult struct {
	ChunkID    string `json:"chunk_id"`
	Content    string `json:"content"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	IngestedAt int64  `json:"ingested_at"`
	Additional struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// ToChunk converts a query result to a KnowledgeChunk. The Weaviate object
// ID stands in for chunk_id when the property was never ingested.
func (r *KnowledgeResult) ToChunk(collection string) KnowledgeChunk {
	id := r.ChunkID
	if id == "" {
		id = r.Additional.ID
	}
	var score float64
	if r.Additional.Certainty != nil {
		score = float64(*r.Additional.Certainty)
	}
	return KnowledgeChunk{
		ChunkID:    id,
		Collection: collection,
		Text:       r.Content,
		Score:      score,
		Metadata: ChunkMetadata{
			Source:     r.Source,
			Category:   r.Category,
			IngestedAt: r.IngestedAt,
		},
	}
}

// AggregateCountResponse represents an Aggregate meta count query.
// The Aggregate map is keyed by class name, matching KnowledgeQueryResponse.
type AggregateCountResponse struct {
	Aggregate map[string][]struct {
		Meta struct {
			Count int64 `json:"count"`
		} `json:"meta"`
	} `json:"Aggregate"`
}

// CountFor extracts the object count for one class, 0 when absent.
func (a *AggregateCountResponse) CountFor(class string) int64 {
	groups := a.Aggregate[class]
	if len(groups) == 0 {
		return 0
	}
	return groups[0].Meta.Count
}
