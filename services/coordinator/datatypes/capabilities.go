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
// This file contains the progressive-disclosure wire types: capability
// manifests and token budget recommendations.
package datatypes

// CapabilityEntry describes one thing the knowledge base can help with.
type CapabilityEntry struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	TokenEstimate int    `json:"token_estimate"`
}

// CapabilityManifest answers "what can this system do" at a given detail
// level. Categories map taxonomy buckets to their entries.
//
// The manifest's token estimate is bounded by a per-level ceiling that holds
// regardless of registry growth; Truncated is set when entries were dropped
// to stay under it.
type CapabilityManifest struct {
	Level                string                       `json:"level"`
	Categories           map[string][]CapabilityEntry `json:"categories"`
	EstimatedTokens      int                          `json:"estimated_tokens"`
	TotalKnowledgePoints int64                        `json:"total_knowledge_points"`
	Truncated            bool                         `json:"truncated,omitempty"`
}

// CapabilitiesRequest is the body for POST /discovery/capabilities. The GET
// form carries the same fields as query parameters.
type CapabilitiesRequest struct {
	Level      string   `json:"level"`
	Categories []string `json:"categories,omitempty"`
}

// TokenBudgetRequest is the body of POST /discovery/token_budget.
type TokenBudgetRequest struct {
	TaskType string `json:"task_type" validate:"required"`
}

// Validate checks the request against its validation tags.
func (r *TokenBudgetRequest) Validate() error {
	if err := coordValidate.Struct(r); err != nil {
		return fromValidatorError(err)
	}
	return nil
}

// TokenBudgetResponse is the deterministic budget recommendation for a task
// type: how many context tokens to request at each effort tier.
type TokenBudgetResponse struct {
	Standard      int    `json:"standard"`
	Detailed      int    `json:"detailed"`
	Comprehensive int    `json:"comprehensive"`
	Description   string `json:"description"`
}
