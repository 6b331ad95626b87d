// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compress fits ranked knowledge chunks into a token budget.
//
// Token estimation here is deliberately conservative: every estimator in
// this package returns a ceiling. Overestimating wastes a little budget;
// underestimating would overflow the consumer's context window, so the
// error direction is always up, never down.
package compress

import (
	"fmt"
	"math"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// tokenMargin inflates exact BPE counts to absorb drift between the
	// estimation encoding and whatever model the consumer actually runs.
	tokenMargin = 1.1

	// perChunkOverhead covers the joiners and framing added when chunks
	// are rendered into one context string.
	perChunkOverhead = 4

	// heuristicBytesPerToken divides byte length for the fallback
	// estimator. English text averages about four bytes per token, so
	// dividing by three overestimates on purpose.
	heuristicBytesPerToken = 3
)

// Estimator returns an upper bound on the tokens a language model will
// see for a piece of text. Implementations must never undercount.
type Estimator interface {
	EstimateTokens(text string) int
}

// TiktokenEstimator counts tokens with the cl100k family BPE and inflates
// the count by tokenMargin.
//
// Construction may fetch the encoding's vocabulary on first use; callers
// that must stay offline use NewHeuristicEstimator instead.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator builds an estimator for the given model name,
// falling back to cl100k_base when the model is unknown.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
		}
	}
	return &TiktokenEstimator{encoding: enc}, nil
}

// EstimateTokens returns ceil(exact × margin) + per-chunk overhead.
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	exact := len(e.encoding.Encode(text, nil, nil))
	return int(math.Ceil(float64(exact)*tokenMargin)) + perChunkOverhead
}

// HeuristicEstimator approximates tokens from byte length with no
// tokenizer data dependency. Used when the BPE vocabulary is unavailable
// and in tests.
type HeuristicEstimator struct{}

// NewHeuristicEstimator returns the byte-length estimator.
func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{}
}

// EstimateTokens returns ceil(bytes/3) + per-chunk overhead.
func (e *HeuristicEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text)
	est := n / heuristicBytesPerToken
	if n%heuristicBytesPerToken != 0 {
		est++
	}
	return est + perChunkOverhead
}
