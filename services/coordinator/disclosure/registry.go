// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package disclosure

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

var tracer = otel.Tracer("aleutian.recall.disclosure")

const (
	// DefaultCountTTL bounds how often the knowledge-point aggregate is
	// recomputed against the vector store.
	DefaultCountTTL = 60 * time.Second

	// categoryHeaderTokens is the manifest overhead charged once per
	// category that contributes at least one entry.
	categoryHeaderTokens = 8

	// reloadDebounce coalesces the event bursts editors produce when
	// saving the taxonomy file.
	reloadDebounce = 200 * time.Millisecond
)

// CollectionCounter reports how many objects a collection holds. The
// Weaviate searcher satisfies this; tests substitute fakes.
type CollectionCounter interface {
	Count(ctx context.Context, collection string) (int64, error)
}

// Registry serves capability manifests from the taxonomy and keeps the
// taxonomy fresh when it is backed by a file.
//
// # Description
//
// The registry is the read side of progressive disclosure: callers ask
// "what do you know" at a detail level, and the registry answers without
// touching the knowledge base except for a cached object count. When a
// taxonomy file is configured, edits to it are picked up automatically
// so operators can extend coverage without restarting the coordinator.
type Registry struct {
	mu       sync.RWMutex
	taxonomy *Taxonomy

	path      string
	cleanPath string

	collections []string
	counter     CollectionCounter

	countMu     sync.Mutex
	countTTL    time.Duration
	cachedCount int64
	countAt     time.Time

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithCountTTL overrides how long knowledge-point counts are cached.
// A non-positive TTL disables caching.
func WithCountTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.countTTL = ttl
	}
}

// NewRegistry builds a registry over the given collections. When
// taxonomyPath is empty the compiled-in taxonomy is used; otherwise the
// file is loaded, validated, and watched for changes. counter may be nil,
// in which case knowledge-point totals report zero.
func NewRegistry(taxonomyPath string, collections []string, counter CollectionCounter, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		path:        taxonomyPath,
		collections: collections,
		counter:     counter,
		countTTL:    DefaultCountTTL,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if taxonomyPath == "" {
		r.taxonomy = DefaultTaxonomy()
		return r, nil
	}

	tax, err := LoadTaxonomy(taxonomyPath)
	if err != nil {
		return nil, err
	}
	r.taxonomy = tax
	r.cleanPath = filepath.Clean(taxonomyPath)

	// Watch the directory rather than the file: editors commonly save
	// through a rename, which drops a watch on the file itself.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Taxonomy watcher unavailable, hot reload disabled",
			"path", taxonomyPath, "error", err)
		return r, nil
	}
	if err := watcher.Add(filepath.Dir(taxonomyPath)); err != nil {
		watcher.Close()
		slog.Warn("Taxonomy watcher unavailable, hot reload disabled",
			"path", taxonomyPath, "error", err)
		return r, nil
	}
	r.watcher = watcher
	go r.watch()
	return r, nil
}

// Close stops the file watcher. Safe to call more than once.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

func (r *Registry) watch() {
	var debounce *time.Timer
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.cleanPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, r.reload)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Taxonomy watcher error", "error", err)
		}
	}
}

// reload re-reads the taxonomy file. A broken edit keeps the previous
// taxonomy in place so manifests never go dark mid-edit.
func (r *Registry) reload() {
	tax, err := LoadTaxonomy(r.path)
	if err != nil {
		slog.Warn("Taxonomy reload failed, keeping previous version",
			"path", r.path, "error", err)
		return
	}
	r.mu.Lock()
	r.taxonomy = tax
	r.mu.Unlock()
	slog.Info("Taxonomy reloaded", "path", r.path, "categories", len(tax.Categories))
}

// =============================================================================
// Manifest Assembly
// =============================================================================

// Capabilities assembles the manifest for a level, optionally filtered to
// the named categories. Entry order follows the taxonomy; assembly stops
// once the level's token ceiling would be exceeded and marks the manifest
// truncated.
func (r *Registry) Capabilities(ctx context.Context, level Level, categories []string) *datatypes.CapabilityManifest {
	ctx, span := tracer.Start(ctx, "disclosure.Capabilities",
		trace.WithAttributes(
			attribute.String("manifest.level", level.String()),
			attribute.Int("manifest.category_filter", len(categories)),
		))
	defer span.End()

	var filter map[string]bool
	if len(categories) > 0 {
		filter = make(map[string]bool, len(categories))
		for _, name := range categories {
			filter[strings.ToLower(name)] = true
		}
	}

	ceiling := level.ManifestTokenCeiling()
	manifest := &datatypes.CapabilityManifest{
		Level:      level.String(),
		Categories: map[string][]datatypes.CapabilityEntry{},
	}

	r.mu.RLock()
	tax := r.taxonomy
	r.mu.RUnlock()

	used := 0
assemble:
	for _, cat := range tax.Categories {
		if filter != nil && !filter[strings.ToLower(cat.Name)] {
			continue
		}
		first := true
		for _, topic := range cat.Topics {
			if topic.parsedLevel > level {
				continue
			}
			cost := topic.TokenEstimate
			if first {
				cost += categoryHeaderTokens
			}
			if used+cost > ceiling {
				manifest.Truncated = true
				break assemble
			}
			manifest.Categories[cat.Name] = append(manifest.Categories[cat.Name], datatypes.CapabilityEntry{
				Name:          topic.Name,
				Description:   topic.Description,
				TokenEstimate: topic.TokenEstimate,
			})
			used += cost
			first = false
		}
	}
	manifest.EstimatedTokens = used
	manifest.TotalKnowledgePoints = r.totalPoints(ctx)

	span.SetAttributes(
		attribute.Int("manifest.estimated_tokens", manifest.EstimatedTokens),
		attribute.Bool("manifest.truncated", manifest.Truncated),
	)
	return manifest
}

// totalPoints sums object counts across the configured collections,
// serving from cache inside the TTL. Collections that fail to report are
// counted as zero; discovery stays available when the store is not.
func (r *Registry) totalPoints(ctx context.Context) int64 {
	if r.counter == nil || len(r.collections) == 0 {
		return 0
	}

	r.countMu.Lock()
	defer r.countMu.Unlock()
	if r.countTTL > 0 && time.Since(r.countAt) < r.countTTL {
		return r.cachedCount
	}

	var total int64
	for _, collection := range r.collections {
		n, err := r.counter.Count(ctx, collection)
		if err != nil {
			slog.Warn("Knowledge point count unavailable",
				"collection", collection, "error", err)
			continue
		}
		total += n
	}
	r.cachedCount = total
	r.countAt = time.Now()
	return total
}

// =============================================================================
// Taxonomy Lookups
// =============================================================================

// Categories returns category names in taxonomy order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.taxonomy.Categories))
	for _, cat := range r.taxonomy.Categories {
		names = append(names, cat.Name)
	}
	return names
}

// AllCollections returns the collections the registry was configured with.
func (r *Registry) AllCollections() []string {
	out := make([]string, len(r.collections))
	copy(out, r.collections)
	return out
}

// CollectionsFor resolves a category name to its backing collections. A
// category with no explicit binding maps to every configured collection.
// Unknown categories resolve to nil.
func (r *Registry) CollectionsFor(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cat := range r.taxonomy.Categories {
		if strings.EqualFold(cat.Name, category) {
			if len(cat.Collections) == 0 {
				return r.AllCollections()
			}
			out := make([]string, len(cat.Collections))
			copy(out, cat.Collections)
			return out
		}
	}
	return nil
}

// MatchCategories returns, in taxonomy order, the categories whose name or
// keywords appear in the text. Matching is case-insensitive substring
// matching; it is deliberately loose, since the inputs are conversational.
func (r *Registry) MatchCategories(text string) []string {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []string
	for _, cat := range r.taxonomy.Categories {
		if categoryMatches(&cat, lowered) {
			matched = append(matched, cat.Name)
		}
	}
	return matched
}

// MatchCollections maps text to the collections most likely to cover it,
// via category keyword matches. Text that matches nothing returns nil so
// callers can fall back to searching everything.
func (r *Registry) MatchCollections(text string) []string {
	matched := r.MatchCategories(text)
	if len(matched) == 0 {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	for _, category := range matched {
		for _, collection := range r.CollectionsFor(category) {
			if seen[collection] {
				continue
			}
			seen[collection] = true
			out = append(out, collection)
		}
	}
	return out
}

func categoryMatches(cat *TaxonomyCategory, loweredText string) bool {
	if strings.Contains(loweredText, strings.ToLower(cat.Name)) {
		return true
	}
	for _, keyword := range cat.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(loweredText, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
