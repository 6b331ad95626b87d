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
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// MultiTurnContextRequest Validation Tests
// =============================================================================

func TestMultiTurnContextRequest_Validate_Success(t *testing.T) {
	req := &MultiTurnContextRequest{
		Query:     "how to fix permission denied in a container volume mount",
		MaxTokens: 2000,
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestMultiTurnContextRequest_Validate_MissingQuery(t *testing.T) {
	req := &MultiTurnContextRequest{MaxTokens: 2000}

	err := req.Validate()
	if err == nil {
		t.Fatal("expected error for missing query, got nil")
	}
	if !IsValidationError(err) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestMultiTurnContextRequest_Validate_OversizedQuery(t *testing.T) {
	req := &MultiTurnContextRequest{
		Query:     strings.Repeat("x", MaxQueryBytes+1),
		MaxTokens: 2000,
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized query, got nil")
	}
}

func TestMultiTurnContextRequest_Validate_MaxTokensRange(t *testing.T) {
	cases := []struct {
		name      string
		maxTokens int
		wantErr   bool
	}{
		{"zero", 0, true},
		{"negative", -5, true},
		{"minimum", 1, false},
		{"ceiling", MaxTokenBudget, false},
		{"over ceiling", MaxTokenBudget + 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &MultiTurnContextRequest{Query: "q", MaxTokens: tc.maxTokens}
			err := req.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("max_tokens=%d: expected error, got nil", tc.maxTokens)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("max_tokens=%d: unexpected error: %v", tc.maxTokens, err)
			}
		})
	}
}

// =============================================================================
// FeedbackRequest Validation Tests
// =============================================================================

func TestFeedbackRequest_Validate_Success(t *testing.T) {
	req := &FeedbackRequest{
		SessionID:  "abc",
		Confidence: 0.65,
		Gaps:       []string{"volume mount syntax", "selinux labels"},
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestFeedbackRequest_Validate_ConfidenceOutOfRange(t *testing.T) {
	req := &FeedbackRequest{SessionID: "abc", Confidence: 1.2}

	if err := req.Validate(); err == nil {
		t.Error("expected error for confidence > 1, got nil")
	}
}

func TestFeedbackRequest_Validate_TooManyGaps(t *testing.T) {
	gaps := make([]string, MaxGaps+1)
	for i := range gaps {
		gaps[i] = "gap"
	}
	req := &FeedbackRequest{SessionID: "abc", Confidence: 0.5, Gaps: gaps}

	if err := req.Validate(); err == nil {
		t.Error("expected error for too many gaps, got nil")
	}
}

// =============================================================================
// ContextBundle Tests
// =============================================================================

func TestContextBundle_Render_JoinsWithBlankLines(t *testing.T) {
	b := &ContextBundle{
		Chunks: []KnowledgeChunk{
			{ChunkID: "a", Text: "first"},
			{ChunkID: "b", Text: "second"},
		},
	}

	got := b.Render()
	want := "first\n\nsecond"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestContextBundle_Render_Empty(t *testing.T) {
	b := &ContextBundle{}
	if got := b.Render(); got != "" {
		t.Errorf("Render() on empty bundle = %q, want empty", got)
	}
}

func TestContextBundle_ChunkIDs_PreservesOrder(t *testing.T) {
	b := &ContextBundle{
		Chunks: []KnowledgeChunk{
			{ChunkID: "z"}, {ChunkID: "a"}, {ChunkID: "m"},
		},
	}

	ids := b.ChunkIDs()
	if len(ids) != 3 || ids[0] != "z" || ids[1] != "a" || ids[2] != "m" {
		t.Errorf("ChunkIDs() = %v, want [z a m]", ids)
	}
}

func TestContextBundle_Categories(t *testing.T) {
	b := &ContextBundle{
		Chunks: []KnowledgeChunk{
			{ChunkID: "a", Metadata: ChunkMetadata{Category: "containers"}},
			{ChunkID: "b", Metadata: ChunkMetadata{Category: "containers"}},
			{ChunkID: "c", Metadata: ChunkMetadata{Category: "networking"}},
			{ChunkID: "d"},
		},
	}

	cats := b.Categories()
	if len(cats) != 2 || !cats["containers"] || !cats["networking"] {
		t.Errorf("Categories() = %v, want containers and networking", cats)
	}
}

// =============================================================================
// ValidationError Tests
// =============================================================================

func TestValidationError_Error_WithField(t *testing.T) {
	err := NewValidationError("max_tokens", "must be positive")
	if err.Error() != "max_tokens: must be positive" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestIsValidationError_Wrapped(t *testing.T) {
	base := NewValidationError("query", "required")
	wrapped := errors.Join(errors.New("outer"), base)

	if !IsValidationError(wrapped) {
		t.Error("expected IsValidationError to see through wrapping")
	}
	if IsValidationError(errors.New("plain")) {
		t.Error("plain error should not be a ValidationError")
	}
}
