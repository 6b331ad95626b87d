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
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

var tracer = otel.Tracer("aleutian.recall.retrieval")

// ErrNotReady is returned by Live when Weaviate answers but reports
// itself unready.
var ErrNotReady = errors.New("weaviate is not ready")

// =============================================================================
// Searcher
// =============================================================================

// SearchFilters narrows a similarity search. Zero value means no filter.
type SearchFilters struct {
	// Category restricts results to chunks ingested under one category.
	Category string
}

func (f SearchFilters) where() *filters.WhereBuilder {
	if f.Category == "" {
		return nil
	}
	return filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Equal).
		WithValueString(f.Category)
}

// Searcher runs similarity searches against one knowledge collection.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, f SearchFilters) ([]datatypes.KnowledgeChunk, error)
	Live(ctx context.Context) error
}

// SearchConfig tunes retry behavior for Weaviate queries.
type SearchConfig struct {
	// RetryAttempts is how many times a failed query is retried.
	// Default: 2 (3 tries total).
	RetryAttempts int

	// InitialBackoff is the first retry delay; it doubles per attempt.
	// Default: 1s
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	// Default: 8s
	MaxBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0).
	// Default: 0.25
	RetryJitter float64

	// AttemptTimeout bounds a single query attempt.
	// Default: 4s
	AttemptTimeout time.Duration
}

// DefaultSearchConfig returns production defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RetryAttempts:  2,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
		RetryJitter:    0.25,
		AttemptTimeout: 4 * time.Second,
	}
}

// validateSearchConfig corrects invalid values, logging what it fixed.
func validateSearchConfig(config SearchConfig) SearchConfig {
	defaults := DefaultSearchConfig()

	if config.RetryAttempts < 0 {
		slog.Warn("Invalid RetryAttempts config, using default",
			"provided", config.RetryAttempts, "default", defaults.RetryAttempts)
		config.RetryAttempts = defaults.RetryAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RetryJitter < 0 || config.RetryJitter > 1 {
		slog.Warn("Invalid RetryJitter config, using default",
			"provided", config.RetryJitter, "default", defaults.RetryJitter)
		config.RetryJitter = defaults.RetryJitter
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	return config
}

// WeaviateSearcher implements Searcher over a Weaviate instance.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying client handles connection
// pooling.
type WeaviateSearcher struct {
	client *weaviate.Client
	config SearchConfig
}

// NewWeaviateSearcher creates a searcher with the given client and config.
func NewWeaviateSearcher(client *weaviate.Client, config SearchConfig) *WeaviateSearcher {
	return &WeaviateSearcher{
		client: client,
		config: validateSearchConfig(config),
	}
}

// NewClientFromURL builds a Weaviate client from a full URL such as
// "http://localhost:8080".
func NewClientFromURL(rawURL string) (*weaviate.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid weaviate url %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("weaviate url %q needs scheme and host", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// Search runs one nearVector query with bounded retries.
//
// # Description
//
// Failures retry with exponential backoff and jitter; only transient
// errors (timeouts, connection resets) are retried. The whole call is
// expected to run inside a circuit breaker, so retry exhaustion surfaces
// as a single failure to the breaker.
//
// # Outputs
//
//   - []datatypes.KnowledgeChunk: Results scored by certainty, best first.
//   - error: Non-nil when every attempt failed.
func (s *WeaviateSearcher) Search(ctx context.Context, collection string, vector []float32, topK int, f SearchFilters) ([]datatypes.KnowledgeChunk, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("top_k", topK),
	)

	fields := []graphql.Field{
		{Name: "chunk_id"},
		{Name: "content"},
		{Name: "source"},
		{Name: "category"},
		{Name: "ingested_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoffFor(attempt)):
			}
			slog.Debug("Retrying weaviate search",
				"collection", collection, "attempt", attempt)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
		builder := s.client.GraphQL().Get().
			WithClassName(collection).
			WithFields(fields...).
			WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
			WithLimit(topK)
		if wb := f.where(); wb != nil {
			builder = builder.WithWhere(wb)
		}
		result, err := builder.Do(attemptCtx)
		cancel()

		if err == nil {
			parsed, perr := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
			if perr != nil {
				return nil, fmt.Errorf("parse search results for %s: %w", collection, perr)
			}
			results := parsed.Get[collection]
			chunks := make([]datatypes.KnowledgeChunk, 0, len(results))
			for i := range results {
				chunks = append(chunks, results[i].ToChunk(collection))
			}
			return chunks, nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("weaviate search on %s failed: %w", collection, lastErr)
}

// Live reports whether Weaviate is reachable and ready.
func (s *WeaviateSearcher) Live(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate readiness probe: %w", err)
	}
	if !ready {
		return ErrNotReady
	}
	return nil
}

// Count returns the number of objects in a collection via an aggregate
// meta count.
func (s *WeaviateSearcher) Count(ctx context.Context, collection string) (int64, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(collection).
		WithFields(graphql.Field{
			Name: "meta",
			Fields: []graphql.Field{
				{Name: "count"},
			},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate count on %s: %w", collection, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.AggregateCountResponse](result)
	if err != nil {
		return 0, fmt.Errorf("parse aggregate count for %s: %w", collection, err)
	}
	return parsed.CountFor(collection), nil
}

// backoffFor returns the delay before the given retry attempt, with
// jitter so concurrent retries spread out.
func (s *WeaviateSearcher) backoffFor(attempt int) time.Duration {
	backoff := s.config.InitialBackoff * time.Duration(1<<(attempt-1))
	if backoff > s.config.MaxBackoff {
		backoff = s.config.MaxBackoff
	}

	jitterRange := float64(backoff) * s.config.RetryJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	backoff = time.Duration(float64(backoff) + jitter)
	if backoff < 0 {
		backoff = s.config.InitialBackoff
	}
	return backoff
}

// retryable reports whether an error is worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
