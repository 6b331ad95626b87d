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
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/embedding"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// searchTotal counts per-variant vector searches by outcome. A
	// "skipped" search is one the open breaker never sent.
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_search_total",
		Help: "Vector searches by collection and outcome",
	}, []string{"collection", "result"})

	// searchDuration tracks vector search latency per collection
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recall_search_duration_seconds",
		Help:    "Vector search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"collection"})

	// retrieveCandidates tracks merged candidates per retrieval pass
	retrieveCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_retrieve_candidates",
		Help:    "Candidate chunks merged per retrieval pass",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})
)

const (
	// DefaultTopKPerVariant is how many chunks one variant pulls from one
	// collection.
	DefaultTopKPerVariant = 6

	// DefaultRetrieveVariants is how many query forms a retrieval pass
	// searches with.
	DefaultRetrieveVariants = 3

	// weaviateBreakerPrefix namespaces per-collection breaker names.
	weaviateBreakerPrefix = "weaviate:"
)

// Result is one retrieval pass: merged ranked chunks plus the
// per-collection outcome.
type Result struct {
	Chunks      []datatypes.KnowledgeChunk
	Collections []datatypes.CollectionStatus
	Variants    int
}

// Retriever fans a query out across collections.
//
// # Description
//
// One retrieval pass expands the query into weighted variants, embeds
// each variant through the shared cache, and runs one breaker-guarded
// search per (variant, collection) pair. Collections run concurrently;
// variants within a collection run sequentially so an open breaker stops
// wasted work early. A collection that contributes nothing is marked
// degraded, never fatal.
//
// # Thread Safety
//
// Safe for concurrent use.
type Retriever struct {
	expander Expander
	cache    *embedding.Cache
	searcher Searcher
	breakers *breaker.Registry

	maxVariants int
	rerank      RerankOptions
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithMaxVariants caps the query forms searched per pass.
func WithMaxVariants(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 && n <= DefaultMaxVariants {
			r.maxVariants = n
		}
	}
}

// WithRerankOptions overrides merge scoring.
func WithRerankOptions(opts RerankOptions) RetrieverOption {
	return func(r *Retriever) { r.rerank = opts }
}

// NewRetriever wires the retrieval pipeline together.
func NewRetriever(expander Expander, cache *embedding.Cache, searcher Searcher, breakers *breaker.Registry, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		expander:    expander,
		cache:       cache,
		searcher:    searcher,
		breakers:    breakers,
		maxVariants: DefaultRetrieveVariants,
		rerank:      DefaultRerankOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs one pass over the given collections.
//
// topKPerVariant bounds each individual search; 0 uses the default.
// The error return is reserved for request-level problems; dependency
// failures degrade collections instead.
func (r *Retriever) Retrieve(ctx context.Context, query string, collections []string, topKPerVariant int) (Result, error) {
	ctx, span := tracer.Start(ctx, "Retrieve")
	defer span.End()

	if topKPerVariant <= 0 {
		topKPerVariant = DefaultTopKPerVariant
	}

	expanded, err := r.expander.Expand(ctx, query, r.maxVariants)
	if err != nil || len(expanded.Variants) == 0 {
		if err != nil {
			slog.Warn("Query expansion failed, searching with original only", "error", err)
		}
		expanded = ExpandedQuery{
			Original: query,
			Variants: []QueryVariant{{Text: query, Weight: 1.0}},
		}
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
	)
	statuses := make([]datatypes.CollectionStatus, len(collections))

	var wg sync.WaitGroup
	for i, collection := range collections {
		wg.Add(1)
		go func(idx int, coll string) {
			defer wg.Done()
			cands, status := r.searchCollection(ctx, coll, expanded.Variants, topKPerVariant)
			mu.Lock()
			candidates = append(candidates, cands...)
			statuses[idx] = status
			mu.Unlock()
		}(i, collection)
	}
	wg.Wait()

	retrieveCandidates.Observe(float64(len(candidates)))

	ranked := Rerank(candidates, r.rerank)
	span.SetAttributes(
		attribute.Int("query.variant_count", len(expanded.Variants)),
		attribute.Int("retrieve.collections", len(collections)),
		attribute.Int("retrieve.candidates", len(candidates)),
		attribute.Int("retrieve.ranked", len(ranked)),
	)

	return Result{
		Chunks:      ranked,
		Collections: statuses,
		Variants:    len(expanded.Variants),
	}, nil
}

// searchCollection runs every variant against one collection behind its
// breaker. Returns the candidates found and the collection's outcome.
func (r *Retriever) searchCollection(ctx context.Context, collection string, variants []QueryVariant, topK int) ([]Candidate, datatypes.CollectionStatus) {
	status := datatypes.CollectionStatus{Name: collection}
	cb := r.breakers.Get(weaviateBreakerPrefix + collection)

	var candidates []Candidate
	contributed := false
	for _, variant := range variants {
		vec, err := r.cache.Vector(ctx, collection, variant.Text)
		if err != nil {
			slog.Warn("Embedding failed for variant",
				"collection", collection, "error", err)
			if errors.Is(err, breaker.ErrCircuitOpen) {
				// Embedding breaker open: later variants would fail the
				// same way.
				break
			}
			continue
		}

		var chunks []datatypes.KnowledgeChunk
		start := time.Now()
		err = cb.ExecuteContext(ctx, func(ctx context.Context) error {
			var serr error
			chunks, serr = r.searcher.Search(ctx, collection, vec, topK, SearchFilters{})
			return serr
		})
		if errors.Is(err, breaker.ErrCircuitOpen) {
			searchTotal.WithLabelValues(collection, "skipped").Inc()
			break
		}
		searchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
		if err != nil {
			searchTotal.WithLabelValues(collection, "error").Inc()
			slog.Warn("Collection search failed",
				"collection", collection, "error", err)
			status.Searched = true
			continue
		}

		searchTotal.WithLabelValues(collection, "ok").Inc()
		status.Searched = true
		contributed = true
		for _, chunk := range chunks {
			candidates = append(candidates, Candidate{Chunk: chunk, Weight: variant.Weight})
		}
	}

	status.Degraded = !contributed
	return candidates, status
}
