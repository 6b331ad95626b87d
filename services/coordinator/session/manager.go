// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/disclosure"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/retrieval"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

var tracer = otel.Tracer("aleutian.recall.session")

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// turnsTotal counts completed context turns by detail level
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_turns_total",
		Help: "Completed context turns by detail level",
	}, []string{"level"})

	// turnErrors counts failed turns by failure type
	turnErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_turn_errors_total",
		Help: "Failed context turns by failure type",
	}, []string{"error_type"})

	// turnDuration tracks end-to-end turn latency
	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recall_turn_duration_seconds",
		Help:    "Context turn duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
	}, []string{"level"})

	// contextTokens tracks tokens served per turn
	contextTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_context_tokens",
		Help:    "Tokens served per context turn",
		Buckets: prometheus.ExponentialBuckets(125, 2, 9), // 125 to 32k
	})

	// contextChunks tracks chunks served per turn
	contextChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_context_chunks",
		Help:    "Knowledge chunks served per context turn",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})
)

const (
	// DefaultMaxSuggestions caps the follow-up suggestions attached to a
	// turn response.
	DefaultMaxSuggestions = 3

	// putRetries bounds optimistic-commit attempts when turns race on
	// one session.
	putRetries = 5

	// suggestionTopicRunes caps how much of the query is echoed into a
	// suggestion.
	suggestionTopicRunes = 60
)

// ContextRetriever is what the manager needs from the retrieval layer.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, collections []string, topKPerVariant int) (retrieval.Result, error)
}

// ContextCompressor fits ranked chunks into a token budget, skipping
// chunks the session has already seen.
type ContextCompressor interface {
	Compress(ranked []datatypes.KnowledgeChunk, maxTokens int, alreadySent map[string]bool) datatypes.ContextBundle
}

// CategorySource exposes the taxonomy facts the manager consumes:
// which collections to search and which categories exist for
// suggestion assembly. The disclosure registry satisfies it.
type CategorySource interface {
	Categories() []string
	AllCollections() []string
}

// Manager runs the multi-turn context flow: session bookkeeping around
// retrieval and compression.
type Manager struct {
	store      Store
	retriever  ContextRetriever
	compressor ContextCompressor
	registry   CategorySource
	recorder   telemetry.Recorder
	logger     *slog.Logger

	maxSuggestions int
	now            func() time.Time
	newID          func() string
}

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithRecorder attaches a telemetry recorder. Defaults to a no-op.
func WithRecorder(rec telemetry.Recorder) ManagerOption {
	return func(m *Manager) {
		if rec != nil {
			m.recorder = rec
		}
	}
}

// WithManagerLogger overrides the manager's logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMaxSuggestions overrides the suggestion cap.
func WithMaxSuggestions(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.maxSuggestions = n
		}
	}
}

// WithClock fixes the manager's clock. Tests use this.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides session ID generation. Tests use this.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager wires the multi-turn flow together.
func NewManager(store Store, retriever ContextRetriever, compressor ContextCompressor, registry CategorySource, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:          store,
		retriever:      retriever,
		compressor:     compressor,
		registry:       registry,
		recorder:       telemetry.NopRecorder{},
		logger:         slog.Default().With(slog.String("component", "session-manager")),
		maxSuggestions: DefaultMaxSuggestions,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetContext runs one retrieval turn.
//
// # Description
//
// Resolves the session (creating one when no ID is given; an unknown ID
// is ErrSessionNotFound, never a silent new session), retrieves and
// ranks chunks at the requested level, compresses them against the
// union of the session's sent set and the caller's previous_context_ids,
// then commits the turn with optimistic retries so concurrent turns on
// one session never lose dedup entries.
func (m *Manager) GetContext(ctx context.Context, req *datatypes.MultiTurnContextRequest) (*datatypes.MultiTurnContextResponse, error) {
	level, err := disclosure.ParseLevel(req.ContextLevel)
	if err != nil {
		turnErrors.WithLabelValues("validation").Inc()
		return nil, err
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "session.GetContext",
		trace.WithAttributes(
			attribute.String("context.level", level.String()),
			attribute.Int("context.max_tokens", req.MaxTokens),
			attribute.Bool("session.resumed", req.SessionID != ""),
		))
	defer span.End()

	state, err := m.resolveSession(ctx, req.SessionID)
	if err != nil {
		turnErrors.WithLabelValues("session").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", state.ID))

	collections := m.registry.AllCollections()
	result, err := m.retriever.Retrieve(ctx, req.Query, collections, level.TopKPerVariant())
	if err != nil {
		turnErrors.WithLabelValues("retrieval").Inc()
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	alreadySent := make(map[string]bool, len(state.SentChunkIDs)+len(req.PreviousContextIDs))
	for id := range state.SentChunkIDs {
		alreadySent[id] = true
	}
	for _, id := range req.PreviousContextIDs {
		if id != "" {
			alreadySent[id] = true
		}
	}

	bundle := m.compressor.Compress(result.Chunks, req.MaxTokens, alreadySent)
	bundle.CollectionsSearched = result.Collections

	chunkIDs := bundle.ChunkIDs()
	stored, err := m.commitTurn(ctx, state, req.Query, chunkIDs)
	if err != nil {
		turnErrors.WithLabelValues("commit").Inc()
		return nil, err
	}

	suggestions := m.suggestions(req.Query, &bundle)
	warnings := turnWarnings(&bundle)

	m.recorder.Record(telemetry.Event{
		Kind:        telemetry.KindTurn,
		SessionID:   stored.ID,
		Turn:        stored.TurnCount,
		Query:       req.Query,
		TokenCount:  bundle.TokenCount,
		ChunkCount:  len(bundle.Chunks),
		Collections: collectionNames(result.Collections),
		Truncated:   bundle.Truncated,
	})

	turnsTotal.WithLabelValues(level.String()).Inc()
	turnDuration.WithLabelValues(level.String()).Observe(time.Since(start).Seconds())
	contextTokens.Observe(float64(bundle.TokenCount))
	contextChunks.Observe(float64(len(bundle.Chunks)))

	span.SetAttributes(
		attribute.Int("context.chunks", len(bundle.Chunks)),
		attribute.Int("context.token_count", bundle.TokenCount),
		attribute.Bool("context.truncated", bundle.Truncated),
		attribute.Int("session.turn", stored.TurnCount),
	)
	m.logger.Debug("turn completed",
		slog.String("session_id", stored.ID),
		slog.Int("turn", stored.TurnCount),
		slog.Int("chunks", len(bundle.Chunks)),
		slog.Int("token_count", bundle.TokenCount))

	return &datatypes.MultiTurnContextResponse{
		Context:             bundle.Render(),
		ContextIDs:          chunkIDs,
		Suggestions:         suggestions,
		TokenCount:          bundle.TokenCount,
		CollectionsSearched: result.Collections,
		SessionID:           stored.ID,
		TurnNumber:          stored.TurnCount,
		Truncated:           bundle.Truncated,
		Warnings:            warnings,
	}, nil
}

// resolveSession loads the named session or creates a new record for an
// empty ID. The new record is not persisted until the turn commits, so
// failed turns leave no orphan sessions.
func (m *Manager) resolveSession(ctx context.Context, id string) (*State, error) {
	if id == "" {
		return NewState(m.newID(), m.now()), nil
	}
	state, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// commitTurn persists the turn with optimistic retries. On a version
// conflict the session is reloaded and this turn's additions re-applied
// on top, so neither racing turn's sent chunks are lost.
func (m *Manager) commitTurn(ctx context.Context, state *State, query string, chunkIDs []string) (*State, error) {
	turnTime := m.now()
	base := state
	expected := state.Version

	for attempt := 0; ; attempt++ {
		candidate := base.Clone()
		candidate.RecordTurn(query, chunkIDs, turnTime)

		stored, err := m.store.Put(ctx, candidate, expected)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= putRetries-1 {
			return nil, fmt.Errorf("commit session turn: %w", err)
		}

		m.logger.Debug("session commit raced, retrying",
			slog.String("session_id", state.ID),
			slog.Int("attempt", attempt+1))
		base, err = m.store.Get(ctx, state.ID)
		if err != nil {
			return nil, fmt.Errorf("reload session after conflict: %w", err)
		}
		expected = base.Version
	}
}

// suggestions proposes follow-up queries from taxonomy categories that
// contributed nothing to this turn's context.
func (m *Manager) suggestions(query string, bundle *datatypes.ContextBundle) []string {
	if m.maxSuggestions == 0 {
		return nil
	}
	present := bundle.Categories()
	topic := suggestionTopic(query)

	var out []string
	for _, category := range m.registry.Categories() {
		if present[category] {
			continue
		}
		out = append(out, fmt.Sprintf("%s aspects of %s", category, topic))
		if len(out) == m.maxSuggestions {
			break
		}
	}
	return out
}

// suggestionTopic trims the query into something that reads naturally
// inside a suggestion template.
func suggestionTopic(query string) string {
	topic := strings.TrimRight(strings.TrimSpace(query), "?!. ")
	if topic == "" {
		return "this topic"
	}
	runes := []rune(topic)
	if len(runes) <= suggestionTopicRunes {
		return topic
	}
	cut := string(runes[:suggestionTopicRunes])
	if i := strings.LastIndex(cut, " "); i > suggestionTopicRunes/3 {
		cut = cut[:i]
	}
	return cut
}

// turnWarnings folds compression warnings and per-collection failures
// into the response's human-readable warning list.
func turnWarnings(bundle *datatypes.ContextBundle) []string {
	warnings := append([]string(nil), bundle.Warnings...)
	for _, st := range bundle.CollectionsSearched {
		if !st.Degraded {
			continue
		}
		if st.Searched {
			warnings = append(warnings, fmt.Sprintf("collection %s: search failed, results omitted", st.Name))
		} else {
			warnings = append(warnings, fmt.Sprintf("collection %s: skipped, circuit open", st.Name))
		}
	}
	return warnings
}

func collectionNames(statuses []datatypes.CollectionStatus) []string {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, st.Name)
	}
	return names
}

// Snapshot returns the read-only view of a session.
func (m *Manager) Snapshot(ctx context.Context, id string) (datatypes.SessionSnapshot, error) {
	state, err := m.store.Get(ctx, id)
	if err != nil {
		return datatypes.SessionSnapshot{}, err
	}
	return state.Snapshot(), nil
}

// Delete tears a session down.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.recorder.Record(telemetry.Event{
		Kind:      telemetry.KindSessionDeleted,
		SessionID: id,
	})
	return nil
}

// List returns snapshots of all live sessions, most recently active
// first.
func (m *Manager) List(ctx context.Context) ([]datatypes.SessionSnapshot, error) {
	states, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]datatypes.SessionSnapshot, 0, len(states))
	for _, state := range states {
		out = append(out, state.Snapshot())
	}
	return out, nil
}
