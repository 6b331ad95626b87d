// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback turns a client's self-assessment into refinement
// guidance: whether another retrieval turn is worth it, which queries to
// run, and where to look.
package feedback

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

var tracer = otel.Tracer("aleutian.recall.feedback")

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// evaluationsTotal counts feedback evaluations by verdict
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_feedback_evaluations_total",
		Help: "Feedback evaluations by refine verdict",
	}, []string{"should_refine"})

	// reportedConfidence tracks the confidence clients report
	reportedConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_feedback_confidence",
		Help:    "Client-reported confidence per feedback report",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 9), // 0.1 to 0.9
	})
)

const (
	// DefaultConfidenceThreshold is the confidence at which a response
	// is considered good enough to stop refining.
	DefaultConfidenceThreshold = 0.85

	// DefaultMaxRefineTurns stops the refine loop regardless of
	// confidence, so a stuck client cannot spin forever.
	DefaultMaxRefineTurns = 5

	// DefaultMaxSuggestions caps suggested refinement queries.
	DefaultMaxSuggestions = 5

	// maxConfidenceGain is the asymptote of the estimated gain curve.
	maxConfidenceGain = 0.30
)

// SessionReader is the session lookup the evaluator needs. The session
// manager satisfies it.
type SessionReader interface {
	Snapshot(ctx context.Context, id string) (datatypes.SessionSnapshot, error)
}

// CollectionMatcher maps gap text to likely collections. The disclosure
// registry satisfies it.
type CollectionMatcher interface {
	MatchCollections(text string) []string
	AllCollections() []string
}

// Evaluator scores feedback reports deterministically: same gaps, same
// confidence, same session state, same answer.
type Evaluator struct {
	sessions SessionReader
	registry CollectionMatcher
	recorder telemetry.Recorder

	threshold      float64
	maxRefineTurns int
	maxSuggestions int
}

// EvaluatorOption customizes evaluator construction.
type EvaluatorOption func(*Evaluator)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(threshold float64) EvaluatorOption {
	return func(e *Evaluator) {
		if threshold > 0 && threshold <= 1 {
			e.threshold = threshold
		}
	}
}

// WithMaxRefineTurns overrides the refine-turn budget.
func WithMaxRefineTurns(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxRefineTurns = n
		}
	}
}

// WithRecorder attaches a telemetry recorder. Defaults to a no-op.
func WithRecorder(rec telemetry.Recorder) EvaluatorOption {
	return func(e *Evaluator) {
		if rec != nil {
			e.recorder = rec
		}
	}
}

// NewEvaluator builds an evaluator over the given session and taxonomy
// views.
func NewEvaluator(sessions SessionReader, registry CollectionMatcher, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		sessions:       sessions,
		registry:       registry,
		recorder:       telemetry.NopRecorder{},
		threshold:      DefaultConfidenceThreshold,
		maxRefineTurns: DefaultMaxRefineTurns,
		maxSuggestions: DefaultMaxSuggestions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate answers one feedback report.
//
// # Description
//
// Each actionable gap becomes one templated refinement query, shaped by
// what the gap looks like (an error, a how-to, or a concept). The
// estimated confidence gain saturates in the number of gaps and never
// promises more than the distance to the threshold. Refinement is only
// recommended while confidence is below threshold, at least one query
// exists, and the session has refine turns left.
func (e *Evaluator) Evaluate(ctx context.Context, req *datatypes.FeedbackRequest) (*datatypes.RefinementSuggestion, error) {
	ctx, span := tracer.Start(ctx, "feedback.Evaluate",
		trace.WithAttributes(
			attribute.String("session.id", req.SessionID),
			attribute.Float64("feedback.confidence", req.Confidence),
			attribute.Int("feedback.gaps", len(req.Gaps)),
		))
	defer span.End()

	snap, err := e.sessions.Snapshot(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("look up session %s: %w", req.SessionID, err)
	}

	queries := refinementQueries(req.Gaps, e.maxSuggestions)
	increase := e.estimatedIncrease(req.Confidence, len(queries))
	shouldRefine := req.Confidence < e.threshold &&
		len(queries) > 0 &&
		snap.TurnCount < e.maxRefineTurns

	collections := e.likelyCollections(req)

	evaluationsTotal.WithLabelValues(strconv.FormatBool(shouldRefine)).Inc()
	reportedConfidence.Observe(req.Confidence)

	e.recorder.Record(telemetry.Event{
		Kind:         telemetry.KindFeedback,
		SessionID:    req.SessionID,
		Confidence:   req.Confidence,
		ShouldRefine: shouldRefine,
	})

	span.SetAttributes(
		attribute.Bool("feedback.should_refine", shouldRefine),
		attribute.Float64("feedback.estimated_increase", increase),
		attribute.Int("feedback.suggested_queries", len(queries)),
	)

	return &datatypes.RefinementSuggestion{
		SuggestedQueries:            queries,
		EstimatedConfidenceIncrease: increase,
		ShouldRefine:                shouldRefine,
		AvailableCollections:        collections,
	}, nil
}

// estimatedIncrease models diminishing returns: each further gap closes
// half the remaining distance to the asymptote, and the estimate never
// exceeds the headroom below the threshold.
func (e *Evaluator) estimatedIncrease(confidence float64, queries int) float64 {
	if queries == 0 {
		return 0
	}
	headroom := e.threshold - confidence
	if headroom <= 0 {
		return 0
	}
	gain := maxConfidenceGain * (1 - math.Pow(0.5, float64(queries)))
	return math.Min(headroom, gain)
}

// likelyCollections keyword-matches the gaps and the response against
// the taxonomy. When nothing matches, every configured collection is
// returned; a refinement query can still search broadly.
func (e *Evaluator) likelyCollections(req *datatypes.FeedbackRequest) []string {
	text := strings.Join(req.Gaps, " ") + " " + req.Response
	if matched := e.registry.MatchCollections(text); len(matched) > 0 {
		return matched
	}
	return e.registry.AllCollections()
}

// errorMarkers flag gaps describing failures.
var errorMarkers = []string{
	"error", "panic", "fail", "exception", "denied", "refused",
	"timeout", "crash", "cannot", "unable",
}

// howToMarkers flag gaps asking for procedure.
var howToMarkers = []string{
	"how to", "how do", "steps", "configure", "set up", "setup",
	"install", "enable", "migrate",
}

// refinementQueries templates one follow-up query per actionable gap,
// preserving gap order and dropping duplicates.
func refinementQueries(gaps []string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, gap := range gaps {
		gap = strings.TrimSpace(gap)
		if gap == "" {
			continue
		}
		query := templateFor(gap)
		if seen[query] {
			continue
		}
		seen[query] = true
		out = append(out, query)
		if len(out) == limit {
			break
		}
	}
	return out
}

// templateFor shapes a query around what kind of gap this is.
func templateFor(gap string) string {
	lowered := strings.ToLower(gap)
	for _, marker := range errorMarkers {
		if strings.Contains(lowered, marker) {
			return "troubleshooting " + gap
		}
	}
	for _, marker := range howToMarkers {
		if strings.Contains(lowered, marker) {
			return "step-by-step guide for " + gap
		}
	}
	return "detailed explanation of " + gap
}
