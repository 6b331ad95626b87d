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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
)

func TestTemplateExpander_OriginalAlwaysFirst(t *testing.T) {
	e := NewTemplateExpander()

	out, err := e.Expand(context.Background(), "How does the circuit breaker work?", 5)

	require.NoError(t, err)
	require.NotEmpty(t, out.Variants)
	assert.Equal(t, "How does the circuit breaker work?", out.Variants[0].Text)
	assert.Equal(t, 1.0, out.Variants[0].Weight)
}

func TestTemplateExpander_DerivedForms(t *testing.T) {
	e := NewTemplateExpander()

	out, err := e.Expand(context.Background(), "How does the circuit breaker work?", 5)

	require.NoError(t, err)
	texts := make([]string, 0, len(out.Variants))
	for _, v := range out.Variants {
		texts = append(texts, v.Text)
		if v.Text != out.Original {
			assert.Less(t, v.Weight, 1.0)
		}
	}
	assert.Contains(t, texts, "the circuit breaker work")
	assert.Contains(t, texts, "circuit breaker work")
}

func TestTemplateExpander_DeduplicatesForms(t *testing.T) {
	e := NewTemplateExpander()

	// Single-word query collapses most derived forms into the original.
	out, err := e.Expand(context.Background(), "goroutines", 5)

	require.NoError(t, err)
	seen := map[string]int{}
	for _, v := range out.Variants {
		seen[v.Text]++
	}
	for text, n := range seen {
		assert.Equal(t, 1, n, "variant %q appears more than once", text)
	}
}

func TestTemplateExpander_RespectsMaxVariants(t *testing.T) {
	e := NewTemplateExpander()

	out, err := e.Expand(context.Background(), "how to configure structured logging in services?", 2)

	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Variants), 2)
	assert.Equal(t, out.Original, out.Variants[0].Text)
}

func TestStripInterrogatives(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"How does retry backoff work?", "retry backoff work"},
		{"What is a goroutine?", "a goroutine"},
		{"plain query", "plain query"},
		{"Why?", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripInterrogatives(tt.in), "input %q", tt.in)
	}
}

func TestKeywordForm(t *testing.T) {
	got := keywordForm("What is the best way to handle errors in Go?")
	assert.Equal(t, "best way handle errors go", got)
}

func TestParseQueriesPayload(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "bare JSON",
			content: `{"queries": ["a", "b"]}`,
			want:    []string{"a", "b"},
		},
		{
			name:    "wrapped in prose and fences",
			content: "Sure, here you go:\n```json\n{\"queries\": [\"x\"]}\n```",
			want:    []string{"x"},
		},
		{
			name:    "no JSON object",
			content: "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			content: `{"queries": [`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQueriesPayload(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMExpander_RateLimitFallsBackToTemplates(t *testing.T) {
	// A zero-rate limiter denies every request, so the model client is
	// never touched.
	e := NewLLMExpander(nil, "test-model", WithRateLimit(0, 0))

	out, err := e.Expand(context.Background(), "How does retry backoff work?", 5)

	require.NoError(t, err)
	require.NotEmpty(t, out.Variants)
	assert.Equal(t, "How does retry backoff work?", out.Variants[0].Text)

	want, _ := NewTemplateExpander().Expand(context.Background(), "How does retry backoff work?", 5)
	assert.Equal(t, want.Variants, out.Variants)
}

func TestLLMExpander_OpenBreakerFallsBackToTemplates(t *testing.T) {
	cb := breaker.New("expansion", breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour, CallTimeout: time.Second})
	_ = cb.Execute(func() error { return errors.New("model down") })

	e := NewLLMExpander(nil, "test-model", WithExpansionBreaker(cb))

	out, err := e.Expand(context.Background(), "what is the session store?", 5)

	require.NoError(t, err)
	require.NotEmpty(t, out.Variants)
	assert.Equal(t, "what is the session store?", out.Variants[0].Text)
}
