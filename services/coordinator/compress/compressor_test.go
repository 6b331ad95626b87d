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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

// wordEstimator counts whitespace-separated words. It keeps budgets easy
// to reason about in tests.
type wordEstimator struct{}

func (wordEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func chunk(id, text string) datatypes.KnowledgeChunk {
	return datatypes.KnowledgeChunk{
		ChunkID:    id,
		Collection: "TestCollection",
		Text:       text,
	}
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestCompress_AllFitWithinBudget(t *testing.T) {
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("a", "alpha beta gamma"),
		chunk("b", "delta epsilon"),
		chunk("c", "zeta"),
	}

	bundle := c.Compress(ranked, 100, nil)

	require.Len(t, bundle.Chunks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, bundle.ChunkIDs())
	assert.Equal(t, 6, bundle.TokenCount)
	assert.False(t, bundle.Truncated)
	assert.Empty(t, bundle.Warnings)
}

func TestCompress_AlreadySentSkipped(t *testing.T) {
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("a", "alpha beta"),
		chunk("b", "gamma delta"),
		chunk("c", "epsilon"),
	}

	bundle := c.Compress(ranked, 100, map[string]bool{"b": true})

	assert.Equal(t, []string{"a", "c"}, bundle.ChunkIDs())
	assert.Equal(t, 3, bundle.TokenCount)
	assert.False(t, bundle.Truncated)
}

func TestCompress_DuplicateIDsDropped(t *testing.T) {
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("a", "alpha beta"),
		chunk("a", "alpha beta"),
	}

	bundle := c.Compress(ranked, 100, nil)

	assert.Equal(t, []string{"a"}, bundle.ChunkIDs())
	assert.Equal(t, 2, bundle.TokenCount)
}

func TestCompress_TruncatesOverflowingChunk(t *testing.T) {
	c := NewCompressor(wordEstimator{}, WithMinTruncateBudget(10))
	long := words(200)
	ranked := []datatypes.KnowledgeChunk{
		chunk("big", long),
		chunk("small", "tail chunk"),
	}

	bundle := c.Compress(ranked, 50, nil)

	require.NotEmpty(t, bundle.Chunks)
	assert.True(t, bundle.Truncated)
	assert.LessOrEqual(t, bundle.TokenCount, 50)
	assert.Equal(t, "big", bundle.Chunks[0].ChunkID)
	assert.NotEmpty(t, bundle.Chunks[0].Text)
	assert.Less(t, len(bundle.Chunks[0].Text), len(long))
}

func TestCompress_SkipsWhenTruncationImpossible(t *testing.T) {
	// Remaining budget is below the truncation floor, so the oversized
	// chunk is skipped and a smaller later chunk still lands.
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("huge", words(500)),
		chunk("small", words(20)),
	}

	bundle := c.Compress(ranked, 30, nil)

	assert.Equal(t, []string{"small"}, bundle.ChunkIDs())
	assert.Equal(t, 20, bundle.TokenCount)
	assert.True(t, bundle.Truncated)
	assert.Empty(t, bundle.Warnings)
}

func TestCompress_NothingFits(t *testing.T) {
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("huge", words(500)),
	}

	bundle := c.Compress(ranked, 30, nil)

	assert.Empty(t, bundle.Chunks)
	assert.Zero(t, bundle.TokenCount)
	assert.True(t, bundle.Truncated)
	assert.Contains(t, bundle.Warnings, WarnBudgetTooSmall)
}

func TestCompress_ZeroBudget(t *testing.T) {
	c := NewCompressor(wordEstimator{})

	bundle := c.Compress([]datatypes.KnowledgeChunk{chunk("a", "alpha")}, 0, nil)

	assert.Empty(t, bundle.Chunks)
	assert.True(t, bundle.Truncated)
	assert.Contains(t, bundle.Warnings, WarnBudgetTooSmall)
}

func TestCompress_EmptyTextIgnored(t *testing.T) {
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("empty", ""),
		chunk("a", "alpha beta"),
	}

	bundle := c.Compress(ranked, 100, nil)

	assert.Equal(t, []string{"a"}, bundle.ChunkIDs())
}

func TestCompress_EmptyInput(t *testing.T) {
	c := NewCompressor(wordEstimator{})

	bundle := c.Compress(nil, 100, nil)

	assert.Empty(t, bundle.Chunks)
	assert.False(t, bundle.Truncated, "nothing was cut")
	assert.Empty(t, bundle.Warnings)
}

func TestCompress_AllAlreadySent(t *testing.T) {
	c := NewCompressor(wordEstimator{})
	ranked := []datatypes.KnowledgeChunk{
		chunk("a", "alpha beta"),
		chunk("b", "gamma delta"),
	}

	bundle := c.Compress(ranked, 100, map[string]bool{"a": true, "b": true})

	assert.Empty(t, bundle.Chunks)
	assert.Zero(t, bundle.TokenCount)
	assert.False(t, bundle.Truncated,
		"a fully deduplicated turn is not a budget problem")
	assert.Empty(t, bundle.Warnings)
}

func TestCompress_TruncatedTextEndsOnBoundary(t *testing.T) {
	c := NewCompressor(wordEstimator{}, WithMinTruncateBudget(5))
	text := "First sentence here. Second sentence follows. Third sentence closes."
	ranked := []datatypes.KnowledgeChunk{chunk("a", text)}

	bundle := c.Compress(ranked, 6, nil)

	require.NotEmpty(t, bundle.Chunks)
	got := bundle.Chunks[0].Text
	assert.NotEmpty(t, got)
	// A boundary cut never ends mid-word.
	assert.False(t, strings.HasSuffix(got, " "))
	assert.LessOrEqual(t, wordEstimator{}.EstimateTokens(got), 6)
}

func TestHeuristicEstimator(t *testing.T) {
	e := NewHeuristicEstimator()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one byte", "a", 5},
		{"three bytes", "abc", 5},
		{"four bytes", "abcd", 6},
		{"thirty bytes", strings.Repeat("x", 30), 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.EstimateTokens(tt.text))
		})
	}
}

func TestHardCut_RuneBoundary(t *testing.T) {
	// 'é' is two bytes; cutting at byte 2 lands mid-rune and must back up.
	assert.Equal(t, "a", hardCut("aéb", 2))
	assert.Equal(t, "aé", hardCut("aéb", 3))
	assert.Equal(t, "aéb", hardCut("aéb", 10))
}
