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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Taxonomy Model
// =============================================================================

// TaxonomyTopic is one advertised capability within a category.
type TaxonomyTopic struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Level is the minimum disclosure level that reveals this topic.
	// Empty means overview.
	Level string `yaml:"level"`

	// TokenEstimate is the manifest cost of this entry. Zero means
	// derive it from the text length at load time.
	TokenEstimate int `yaml:"token_estimate"`

	parsedLevel Level
}

// TaxonomyCategory groups topics and binds them to collections.
type TaxonomyCategory struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Keywords    []string        `yaml:"keywords"`
	Collections []string        `yaml:"collections"`
	Topics      []TaxonomyTopic `yaml:"topics"`
}

// Taxonomy is the static description of what the knowledge base covers.
// It is the source for capability manifests, follow-up suggestions, and
// gap-to-collection matching.
type Taxonomy struct {
	Categories []TaxonomyCategory `yaml:"categories"`
}

// normalize validates the taxonomy and fills derived fields.
func (t *Taxonomy) normalize() error {
	seen := map[string]bool{}
	for ci := range t.Categories {
		cat := &t.Categories[ci]
		if cat.Name == "" {
			return fmt.Errorf("category %d has no name", ci)
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seen[cat.Name] = true

		for ti := range cat.Topics {
			topic := &cat.Topics[ti]
			if topic.Name == "" {
				return fmt.Errorf("category %q topic %d has no name", cat.Name, ti)
			}
			level, err := ParseLevel(topic.Level)
			if err != nil {
				return fmt.Errorf("category %q topic %q: %w", cat.Name, topic.Name, err)
			}
			topic.parsedLevel = level
			if topic.TokenEstimate <= 0 {
				topic.TokenEstimate = deriveTopicEstimate(topic.Name, topic.Description)
			}
		}
	}
	return nil
}

// deriveTopicEstimate approximates the manifest cost of an entry from its
// text, matching the conservative bytes/3 heuristic used for context.
func deriveTopicEstimate(name, description string) int {
	n := len(name) + len(description)
	est := n / 3
	if n%3 != 0 {
		est++
	}
	return est + 4
}

// LoadTaxonomy reads and validates a taxonomy YAML file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file %s: %w", path, err)
	}
	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, fmt.Errorf("parse taxonomy file %s: %w", path, err)
	}
	if len(tax.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy file %s defines no categories", path)
	}
	if err := tax.normalize(); err != nil {
		return nil, fmt.Errorf("invalid taxonomy in %s: %w", path, err)
	}
	return &tax, nil
}

// DefaultTaxonomy is the compiled-in registry used when no taxonomy file
// is configured. It covers the stock infrastructure knowledge collections.
func DefaultTaxonomy() *Taxonomy {
	tax := &Taxonomy{
		Categories: []TaxonomyCategory{
			{
				Name:        "containers",
				Description: "Container runtimes, images, volumes, and rootless operation",
				Keywords:    []string{"container", "docker", "podman", "image", "volume", "mount", "permission", "selinux", "rootless"},
				Topics: []TaxonomyTopic{
					{Name: "runtime-basics", Description: "Running and inspecting containers", Level: "overview"},
					{Name: "volumes-and-mounts", Description: "Bind mounts, named volumes, ownership and permission mapping", Level: "detailed"},
					{Name: "rootless-internals", Description: "User namespaces, subuid ranges, and storage drivers", Level: "comprehensive"},
				},
			},
			{
				Name:        "orchestration",
				Description: "Service composition, scheduling, and lifecycle management",
				Keywords:    []string{"compose", "kubernetes", "pod", "deployment", "service", "scale", "restart"},
				Topics: []TaxonomyTopic{
					{Name: "composition", Description: "Multi-service definitions and dependencies", Level: "overview"},
					{Name: "scheduling", Description: "Placement, resource requests, and restart policies", Level: "detailed"},
					{Name: "controllers", Description: "Reconciliation loops and rollout mechanics", Level: "comprehensive"},
				},
			},
			{
				Name:        "networking",
				Description: "Service discovery, ports, DNS, and ingress",
				Keywords:    []string{"network", "port", "dns", "ingress", "proxy", "tls", "firewall", "connection refused"},
				Topics: []TaxonomyTopic{
					{Name: "connectivity", Description: "Port publishing and inter-service reachability", Level: "overview"},
					{Name: "name-resolution", Description: "Embedded DNS, aliases, and search domains", Level: "detailed"},
					{Name: "packet-paths", Description: "Bridge, overlay, and netfilter traversal", Level: "comprehensive"},
				},
			},
			{
				Name:        "storage",
				Description: "Persistent data, backups, and state management",
				Keywords:    []string{"storage", "persist", "backup", "snapshot", "database", "disk", "wal"},
				Topics: []TaxonomyTopic{
					{Name: "persistence", Description: "Keeping state across restarts", Level: "overview"},
					{Name: "backup-restore", Description: "Snapshot and restore procedures", Level: "detailed"},
				},
			},
			{
				Name:        "observability",
				Description: "Logs, metrics, traces, and health checking",
				Keywords:    []string{"log", "metric", "trace", "health", "prometheus", "alert", "latency"},
				Topics: []TaxonomyTopic{
					{Name: "health-signals", Description: "Liveness, readiness, and log inspection", Level: "overview"},
					{Name: "metrics-pipelines", Description: "Scrape configs, histograms, and dashboards", Level: "detailed"},
				},
			},
			{
				Name:        "security",
				Description: "Secrets, authentication, and hardening",
				Keywords:    []string{"secret", "token", "auth", "certificate", "permission denied", "capability", "seccomp"},
				Topics: []TaxonomyTopic{
					{Name: "secrets-handling", Description: "Injecting and rotating credentials", Level: "overview"},
					{Name: "hardening", Description: "Capabilities, seccomp profiles, and least privilege", Level: "detailed"},
				},
			},
		},
	}
	// The compiled-in taxonomy is static; normalize cannot fail on it.
	if err := tax.normalize(); err != nil {
		panic(fmt.Sprintf("default taxonomy invalid: %v", err))
	}
	return tax
}
