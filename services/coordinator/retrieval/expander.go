// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval turns a query into ranked knowledge chunks: query
// expansion, breaker-guarded vector search per collection, and rerank.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
)

// =============================================================================
// Types
// =============================================================================

// DefaultMaxVariants caps how many query forms one request may search with,
// the original included.
const DefaultMaxVariants = 5

// QueryVariant is one searchable form of the user's query. Weight scales
// the scores of chunks found through this form during reranking.
type QueryVariant struct {
	Text   string
	Weight float64
}

// ExpandedQuery is the full set of forms a retrieval pass searches with.
// Variants always starts with the original query at weight 1.0.
type ExpandedQuery struct {
	Original string
	Variants []QueryVariant
}

// Expander rewrites a query into weighted variants.
type Expander interface {
	Expand(ctx context.Context, query string, maxVariants int) (ExpandedQuery, error)
}

// =============================================================================
// TemplateExpander
// =============================================================================

const (
	weightStripped = 0.85
	weightHowTo    = 0.8
	weightKeywords = 0.75
	weightModel    = 0.9
)

// interrogatives are leading words that carry no retrieval signal.
var interrogatives = map[string]bool{
	"how": true, "what": true, "why": true, "when": true, "where": true,
	"which": true, "who": true, "does": true, "do": true, "is": true,
	"are": true, "can": true, "should": true, "will": true, "did": true,
}

// stopwords are dropped by the keyword variant.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "with": true, "on": true, "at": true,
	"by": true, "is": true, "are": true, "was": true, "were": true, "be": true,
	"this": true, "that": true, "it": true, "as": true, "from": true,
	"about": true, "into": true, "i": true, "my": true, "me": true,
	"you": true, "your": true,
}

// TemplateExpander derives query variants with deterministic rewrites. It
// needs no model, no network, and is the fallback when the model-backed
// expander is unavailable.
type TemplateExpander struct{}

// NewTemplateExpander returns the rule-based expander.
func NewTemplateExpander() *TemplateExpander {
	return &TemplateExpander{}
}

// Expand derives up to maxVariants forms: the original, the original with
// leading interrogatives stripped, a "how to" reframing, and a bare
// keyword form. Duplicates collapse case-insensitively.
func (e *TemplateExpander) Expand(_ context.Context, query string, maxVariants int) (ExpandedQuery, error) {
	original := strings.TrimSpace(query)
	if maxVariants <= 0 || maxVariants > DefaultMaxVariants {
		maxVariants = DefaultMaxVariants
	}

	out := ExpandedQuery{Original: original}
	seen := map[string]bool{}
	add := func(text string, weight float64) {
		text = strings.TrimSpace(text)
		key := strings.ToLower(text)
		if text == "" || seen[key] || len(out.Variants) >= maxVariants {
			return
		}
		seen[key] = true
		out.Variants = append(out.Variants, QueryVariant{Text: text, Weight: weight})
	}

	add(original, 1.0)

	stripped := stripInterrogatives(original)
	add(stripped, weightStripped)
	if stripped != "" && !strings.HasPrefix(strings.ToLower(stripped), "how to") {
		add("how to "+stripped, weightHowTo)
	}
	add(keywordForm(original), weightKeywords)

	return out, nil
}

// stripInterrogatives removes leading question words and a trailing
// question mark.
func stripInterrogatives(query string) string {
	q := strings.TrimSuffix(strings.TrimSpace(query), "?")
	words := strings.Fields(q)
	for len(words) > 0 && interrogatives[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// keywordForm keeps only content-bearing words.
func keywordForm(query string) string {
	q := strings.TrimSuffix(strings.TrimSpace(query), "?")
	var kept []string
	for _, w := range strings.Fields(q) {
		lw := strings.ToLower(strings.Trim(w, ".,!:;\"'()"))
		if lw == "" || stopwords[lw] || interrogatives[lw] {
			continue
		}
		kept = append(kept, lw)
	}
	return strings.Join(kept, " ")
}

// =============================================================================
// LLMExpander
// =============================================================================

const expansionSystemPrompt = `You rewrite knowledge-base search queries. ` +
	`Given a query, produce alternative phrasings that surface related ` +
	`material: synonyms, the underlying concept, an error-message form if ` +
	`one applies. Respond with JSON only, no prose: {"queries": ["...", "..."]}`

// LLMExpander asks a chat model for query reformulations. Calls are rate
// limited and guarded by a circuit breaker; any failure falls back to
// rule-based expansion so retrieval never blocks on the model.
type LLMExpander struct {
	client   *openai.Client
	model    string
	limiter  *rate.Limiter
	breaker  *breaker.CircuitBreaker
	fallback Expander
}

// LLMExpanderOption configures an LLMExpander.
type LLMExpanderOption func(*LLMExpander)

// WithRateLimit overrides the default request rate (2 rps, burst 2).
func WithRateLimit(rps float64, burst int) LLMExpanderOption {
	return func(e *LLMExpander) {
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithExpansionBreaker guards model calls with the given breaker.
func WithExpansionBreaker(cb *breaker.CircuitBreaker) LLMExpanderOption {
	return func(e *LLMExpander) { e.breaker = cb }
}

// WithFallback overrides the expander used when the model is unavailable.
func WithFallback(f Expander) LLMExpanderOption {
	return func(e *LLMExpander) { e.fallback = f }
}

// NewLLMExpander builds a model-backed expander around an existing client.
func NewLLMExpander(client *openai.Client, model string, opts ...LLMExpanderOption) *LLMExpander {
	e := &LLMExpander{
		client:   client,
		model:    model,
		limiter:  rate.NewLimiter(rate.Limit(2), 2),
		fallback: NewTemplateExpander(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand asks the model for reformulations, falling back to templates on
// rate-limit pressure, breaker open, model error, or unparseable output.
func (e *LLMExpander) Expand(ctx context.Context, query string, maxVariants int) (ExpandedQuery, error) {
	original := strings.TrimSpace(query)
	if maxVariants <= 0 || maxVariants > DefaultMaxVariants {
		maxVariants = DefaultMaxVariants
	}

	if !e.limiter.Allow() {
		slog.Debug("Expansion rate limit hit, using template expansion")
		return e.fallback.Expand(ctx, query, maxVariants)
	}

	queries, err := e.requestVariants(ctx, original, maxVariants-1)
	if err != nil {
		slog.Warn("Model query expansion failed, using template expansion", "error", err)
		return e.fallback.Expand(ctx, query, maxVariants)
	}

	out := ExpandedQuery{Original: original}
	seen := map[string]bool{strings.ToLower(original): true}
	out.Variants = append(out.Variants, QueryVariant{Text: original, Weight: 1.0})
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] || len(out.Variants) >= maxVariants {
			continue
		}
		seen[key] = true
		out.Variants = append(out.Variants, QueryVariant{Text: q, Weight: weightModel})
	}
	return out, nil
}

// requestVariants runs one breaker-guarded chat completion and parses the
// JSON payload out of the reply.
func (e *LLMExpander) requestVariants(ctx context.Context, query string, n int) ([]string, error) {
	var queries []string
	call := func(ctx context.Context) error {
		req := openai.ChatCompletionRequest{
			Model: e.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: expansionSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Produce %d alternative queries for: %s", n, query)},
			},
			Temperature: 0.3,
		}
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("expansion completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("expansion returned no choices")
		}
		queries, err = parseQueriesPayload(resp.Choices[0].Message.Content)
		return err
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.ExecuteContext(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// parseQueriesPayload extracts {"queries": [...]} from model output that
// may be wrapped in prose or code fences.
func parseQueriesPayload(content string) ([]string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in expansion reply")
	}
	var payload struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("malformed expansion payload: %w", err)
	}
	return payload.Queries, nil
}
