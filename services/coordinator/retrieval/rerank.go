// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

// Candidate couples a chunk with the weight of the query variant that
// found it.
type Candidate struct {
	Chunk  datatypes.KnowledgeChunk
	Weight float64
}

// RerankOptions tunes merge scoring.
type RerankOptions struct {
	// CategoryBoosts multiplies scores of chunks in the named categories.
	CategoryBoosts map[string]float64

	// RecencyBoost multiplies scores of chunks ingested within
	// RecencyWindow. Default: 1.05 over 30 days.
	RecencyBoost  float64
	RecencyWindow time.Duration

	// Now overrides the clock for recency checks. Zero means time.Now().
	Now time.Time
}

// DefaultRerankOptions returns the production boosts.
func DefaultRerankOptions() RerankOptions {
	return RerankOptions{
		RecencyBoost:  1.05,
		RecencyWindow: 30 * 24 * time.Hour,
	}
}

// Rerank merges candidates from every (variant, collection) search into
// one ranked list.
//
// A chunk found under several variants keeps the maximum weighted score
// seen for it. Category and recency boosts apply after weighting. The
// result is sorted by score descending with chunk ID as tiebreak, so
// identical inputs always rank identically.
func Rerank(candidates []Candidate, opts RerankOptions) []datatypes.KnowledgeChunk {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	best := make(map[string]datatypes.KnowledgeChunk, len(candidates))
	for i, cand := range candidates {
		chunk := cand.Chunk
		score := chunk.Score * cand.Weight

		if mult, ok := opts.CategoryBoosts[chunk.Metadata.Category]; ok && mult > 0 {
			score *= mult
		}
		if opts.RecencyBoost > 1 && opts.RecencyWindow > 0 && chunk.Metadata.IngestedAt > 0 {
			ingested := time.UnixMilli(chunk.Metadata.IngestedAt)
			if now.Sub(ingested) <= opts.RecencyWindow {
				score *= opts.RecencyBoost
			}
		}
		chunk.Score = score

		key := chunk.ChunkID
		if key == "" {
			key = fmt.Sprintf("anon-%d", i)
		}
		if prev, ok := best[key]; !ok || score > prev.Score {
			best[key] = chunk
		}
	}

	ranked := make([]datatypes.KnowledgeChunk, 0, len(best))
	for _, chunk := range best {
		ranked = append(ranked, chunk)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	return ranked
}
