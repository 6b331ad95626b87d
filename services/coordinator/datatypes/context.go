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
// This file contains the request and response types for the multi-turn
// context endpoint. Field names are the wire contract consumed by remote
// language-model clients and must stay stable across releases.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Request Limits
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a query string.
	// Oversized queries are rejected before any retrieval work happens.
	MaxQueryBytes = 8 * 1024 // 8KB

	// MaxTokenBudget is the largest max_tokens a caller may request.
	MaxTokenBudget = 32768

	// MaxPreviousContextIDs bounds the caller-supplied dedup set so a
	// stateless client cannot grow request bodies without limit.
	MaxPreviousContextIDs = 2048
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// coordValidate is the validator instance for coordinator datatypes.
var coordValidate *validator.Validate

func init() {
	coordValidate = validator.New()
	_ = coordValidate.RegisterValidation("querybytes", validateQueryBytes)
}

// validateQueryBytes checks byte length (not rune count) so multi-byte
// payloads cannot bypass the limit.
func validateQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Multi-Turn Context Types
// =============================================================================

// MultiTurnContextRequest is the body of POST /context/multi_turn.
//
// # Fields
//
//   - SessionID: Optional. Resume an existing session. When empty a new
//     session is created and its ID returned. An unknown non-empty ID is an
//     error, never silently replaced with a fresh session.
//   - Query: Required. The question or task to retrieve context for.
//   - ContextLevel: Detail level, one of "overview", "detailed",
//     "comprehensive". The legacy alias "standard" maps to "overview".
//     Empty defaults to "overview".
//   - PreviousContextIDs: Optional. Chunk IDs the caller already holds.
//     Merged with the session's own sent set for deduplication, which lets
//     stateless callers track their own dedup set.
//   - MaxTokens: Required. Token budget the returned context must respect.
//
// # Validation
//
//   - Query: required, at most MaxQueryBytes bytes
//   - MaxTokens: 1..MaxTokenBudget
//   - PreviousContextIDs: at most MaxPreviousContextIDs entries
type MultiTurnContextRequest struct {
	SessionID          string   `json:"session_id,omitempty"`
	Query              string   `json:"query" validate:"required,querybytes"`
	ContextLevel       string   `json:"context_level"`
	PreviousContextIDs []string `json:"previous_context_ids,omitempty" validate:"max=2048"`
	MaxTokens          int      `json:"max_tokens" validate:"required,gt=0,lte=32768"`
}

// Validate checks the request against its validation tags.
//
// Returns a *ValidationError describing the first offending field so
// handlers can surface a 400 with a stable shape.
func (r *MultiTurnContextRequest) Validate() error {
	if err := coordValidate.Struct(r); err != nil {
		return fromValidatorError(err)
	}
	return nil
}

// MultiTurnContextResponse is the body returned by POST /context/multi_turn.
//
// # Fields
//
//   - Context: Assembled context text, chunk texts joined by blank lines.
//   - ContextIDs: Chunk IDs included in Context, in rank order.
//   - Suggestions: 1-3 follow-up query suggestions drawn from knowledge
//     categories not represented in this result. May be empty.
//   - TokenCount: Conservative token estimate for Context. Always at or
//     under the requested max_tokens.
//   - CollectionsSearched: Per-collection outcome. Degraded entries were
//     skipped (breaker open) or failed after retries.
//   - SessionID: The session this turn was recorded against.
//   - TurnNumber: The session's turn counter after this call.
//   - Truncated: True when the budget forced a chunk to be cut at a text
//     boundary, or when nothing fit at all.
//   - Warnings: Human-readable notes (degraded collections, budget too
//     small). Never machine-parsed.
type MultiTurnContextResponse struct {
	Context             string             `json:"context"`
	ContextIDs          []string           `json:"context_ids"`
	Suggestions         []string           `json:"suggestions"`
	TokenCount          int                `json:"token_count"`
	CollectionsSearched []CollectionStatus `json:"collections_searched"`
	SessionID           string             `json:"session_id"`
	TurnNumber          int                `json:"turn_number"`
	Truncated           bool               `json:"truncated,omitempty"`
	Warnings            []string           `json:"warnings,omitempty"`
}

// CollectionStatus reports what happened to one collection during retrieval.
//
// Searched is false when the collection was skipped outright (breaker
// open). Degraded is true when the collection contributed nothing, whether
// skipped or failed after retries.
type CollectionStatus struct {
	Name     string `json:"name"`
	Searched bool   `json:"searched"`
	Degraded bool   `json:"degraded,omitempty"`
}
