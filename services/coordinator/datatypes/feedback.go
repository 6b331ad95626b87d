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
// This file contains the feedback-evaluation wire types. The consumer calls
// POST /feedback/evaluate after attempting a response, reporting how
// confident it is and which gaps it noticed; the coordinator answers with
// refinement queries worth running next.
package datatypes

const (
	// MaxGaps bounds the number of gap strings per feedback report.
	MaxGaps = 10

	// MaxGapBytes bounds a single gap string.
	MaxGapBytes = 1024
)

// FeedbackRequest is the body of POST /feedback/evaluate.
//
// # Fields
//
//   - SessionID: Required. The session whose turn produced the response.
//   - Response: The response text the consumer produced. Used only for
//     collection keyword matching, never stored.
//   - Confidence: Self-assessed confidence in [0,1].
//   - Gaps: Free-text descriptions of what the response was missing.
type FeedbackRequest struct {
	SessionID  string   `json:"session_id" validate:"required"`
	Response   string   `json:"response"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
	Gaps       []string `json:"gaps" validate:"max=10,dive,max=1024"`
}

// Validate checks the request against its validation tags.
func (r *FeedbackRequest) Validate() error {
	if err := coordValidate.Struct(r); err != nil {
		return fromValidatorError(err)
	}
	return nil
}

// RefinementSuggestion is the body returned by POST /feedback/evaluate.
//
// # Fields
//
//   - SuggestedQueries: One templated follow-up query per actionable gap,
//     order preserved.
//   - EstimatedConfidenceIncrease: Expected confidence gain if the
//     suggestions are pursued. Saturating in the number of gaps and never
//     promising past the acceptance threshold.
//   - ShouldRefine: True only when confidence is below the acceptance
//     threshold, at least one suggestion exists, and the session has not
//     exhausted its refinement turns.
//   - AvailableCollections: Collections likely to hold the missing
//     knowledge, matched by keyword against the taxonomy.
type RefinementSuggestion struct {
	SuggestedQueries            []string `json:"suggested_queries"`
	EstimatedConfidenceIncrease float64  `json:"estimated_confidence_increase"`
	ShouldRefine                bool     `json:"should_refine"`
	AvailableCollections        []string `json:"available_collections"`
}
