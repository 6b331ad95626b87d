// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compress

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultMinTruncateBudget is the smallest remaining budget worth
	// truncating a chunk into. Below this a fragment carries too little
	// meaning to justify its overhead.
	DefaultMinTruncateBudget = 64

	// minTruncateChars bounds the halving search when shrinking a chunk
	// to fit a budget.
	minTruncateChars = 24

	// WarnBudgetTooSmall is attached to an empty bundle when not even a
	// truncated fragment of any chunk fits the requested budget.
	WarnBudgetTooSmall = "token budget too small for any chunk"
)

// truncationSeparators order boundary preference for cutting a chunk:
// paragraph, line, sentence, then word.
var truncationSeparators = []string{"\n\n", "\n", ". ", " "}

// =============================================================================
// Compressor
// =============================================================================

// CompressorOption configures a Compressor.
type CompressorOption func(*Compressor)

// WithMinTruncateBudget overrides the smallest budget a chunk will be
// truncated into.
func WithMinTruncateBudget(tokens int) CompressorOption {
	return func(c *Compressor) {
		if tokens > 0 {
			c.minTruncateBudget = tokens
		}
	}
}

// Compressor packs ranked chunks into a bundle whose estimated token
// count never exceeds the caller's budget.
//
// # Description
//
// Chunks are consumed in the order given, which the retrieval layer has
// already sorted by descending relevance. Chunks the session has already
// delivered are dropped. When the next chunk would overflow the budget it
// is truncated at the nearest paragraph, line, sentence, or word boundary
// rather than skipped; only when no boundary cut fits does packing move
// on to smaller chunks.
type Compressor struct {
	estimator         Estimator
	minTruncateBudget int
}

// NewCompressor builds a Compressor around the given estimator.
func NewCompressor(est Estimator, opts ...CompressorOption) *Compressor {
	c := &Compressor{
		estimator:         est,
		minTruncateBudget: DefaultMinTruncateBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress packs ranked chunks into at most maxTokens estimated tokens.
//
// alreadySent holds chunk IDs the session has delivered on earlier turns;
// those chunks are silently skipped and never count against the budget.
// The returned bundle's TokenCount is the sum of the per-chunk estimates,
// so it is always <= maxTokens. When truncation or chunk loss occurred
// the bundle's Truncated flag is set; WarnBudgetTooSmall is added only
// when chunks were available but none fit. An empty input, or one fully
// deduplicated away, returns an empty bundle with no flags: nothing was
// cut.
func (c *Compressor) Compress(ranked []datatypes.KnowledgeChunk, maxTokens int, alreadySent map[string]bool) datatypes.ContextBundle {
	bundle := datatypes.ContextBundle{}
	if maxTokens <= 0 {
		bundle.Truncated = true
		bundle.Warnings = append(bundle.Warnings, WarnBudgetTooSmall)
		return bundle
	}

	seen := make(map[string]bool, len(ranked))
	used := 0
	candidates := 0
	skipped := false
	for _, chunk := range ranked {
		if chunk.Text == "" {
			continue
		}
		if chunk.ChunkID != "" {
			if alreadySent[chunk.ChunkID] || seen[chunk.ChunkID] {
				continue
			}
			seen[chunk.ChunkID] = true
		}
		candidates++

		est := c.estimator.EstimateTokens(chunk.Text)
		if used+est <= maxTokens {
			bundle.Chunks = append(bundle.Chunks, chunk)
			used += est
			continue
		}

		// Overflow. Try to cut this chunk down to the remaining budget
		// before considering anything smaller.
		remaining := maxTokens - used
		if cut, cutTokens, ok := c.truncate(chunk.Text, remaining); ok {
			chunk.Text = cut
			bundle.Chunks = append(bundle.Chunks, chunk)
			used += cutTokens
			bundle.Truncated = true
			break
		}

		// Not even a fragment fits the remnant; a later, smaller chunk
		// still might.
		skipped = true
	}

	bundle.TokenCount = used
	if skipped {
		bundle.Truncated = true
	}
	if candidates > 0 && len(bundle.Chunks) == 0 {
		bundle.Truncated = true
		bundle.Warnings = append(bundle.Warnings, WarnBudgetTooSmall)
	}
	return bundle
}

// truncate cuts text at the best available boundary so that its estimate
// fits budget tokens. Returns the cut text, its estimate, and whether a
// useful cut was found.
func (c *Compressor) truncate(text string, budget int) (string, int, bool) {
	if budget < c.minTruncateBudget {
		return "", 0, false
	}

	// Start from a generous character target and halve until the head
	// piece's estimate fits. The splitter prefers paragraph over line
	// over sentence over word boundaries.
	for target := budget * heuristicBytesPerToken; target >= minTruncateChars; target /= 2 {
		head := headPiece(text, target)
		if head == "" {
			return "", 0, false
		}
		if est := c.estimator.EstimateTokens(head); est <= budget {
			return head, est, true
		}
	}
	return "", 0, false
}

// headPiece returns the first boundary-aligned piece of text no longer
// than target characters.
func headPiece(text string, target int) string {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(target),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(truncationSeparators),
	)
	pieces, err := splitter.SplitText(text)
	if err != nil || len(pieces) == 0 {
		// Fall back to a hard cut on a rune boundary.
		return hardCut(text, target)
	}
	return strings.TrimSpace(pieces[0])
}

// hardCut trims text to at most target bytes without splitting a rune.
func hardCut(text string, target int) string {
	if len(text) <= target {
		return strings.TrimSpace(text)
	}
	cut := text[:target]
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size != 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return strings.TrimSpace(cut)
}
