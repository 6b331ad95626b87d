// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package disclosure controls how much of the knowledge base a client
// sees at once: detail levels, the capability manifest, and per-task
// token budget recommendations.
package disclosure

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

// =============================================================================
// Levels
// =============================================================================

// Level is a closed detail-level enum. Higher levels reveal more.
type Level int

const (
	// LevelOverview is the cheapest view: category names and one-liners.
	LevelOverview Level = iota

	// LevelDetailed adds per-topic entries.
	LevelDetailed

	// LevelComprehensive reveals the full registry.
	LevelComprehensive
)

// String returns the canonical wire name.
func (l Level) String() string {
	switch l {
	case LevelOverview:
		return "overview"
	case LevelDetailed:
		return "detailed"
	case LevelComprehensive:
		return "comprehensive"
	default:
		return "overview"
	}
}

// ManifestTokenCeiling bounds the estimated token cost of a capability
// manifest at this level. The manifest builder stops adding entries
// rather than exceed it, no matter how large the registry grows.
func (l Level) ManifestTokenCeiling() int {
	switch l {
	case LevelOverview:
		return 200
	case LevelDetailed:
		return 800
	case LevelComprehensive:
		return 2000
	default:
		return 200
	}
}

// TopKPerVariant is how many chunks each query variant pulls from each
// collection when assembling context at this level.
func (l Level) TopKPerVariant() int {
	switch l {
	case LevelOverview:
		return 3
	case LevelDetailed:
		return 6
	case LevelComprehensive:
		return 10
	default:
		return 3
	}
}

// ParseLevel maps a wire string to a Level. The empty string and the
// legacy alias "standard" both mean overview. Anything else is a
// validation error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overview", "standard":
		return LevelOverview, nil
	case "detailed":
		return LevelDetailed, nil
	case "comprehensive":
		return LevelComprehensive, nil
	default:
		return LevelOverview, datatypes.NewValidationError("context_level",
			fmt.Sprintf("unknown level %q (want overview, detailed, or comprehensive)", s))
	}
}

// =============================================================================
// Token Budgets
// =============================================================================

// taskBudgets maps recognized task types to recommended max_tokens values
// per level.
var taskBudgets = map[string]datatypes.TokenBudgetResponse{
	"quick_fix": {
		Standard:      800,
		Detailed:      2000,
		Comprehensive: 4000,
		Description:   "Small, targeted fixes: a single error message or config line.",
	},
	"code_review": {
		Standard:      1500,
		Detailed:      3000,
		Comprehensive: 6000,
		Description:   "Reviewing a change: style, correctness, and project conventions.",
	},
	"debugging": {
		Standard:      2000,
		Detailed:      4000,
		Comprehensive: 8000,
		Description:   "Root-causing a failure: logs, stack traces, and related internals.",
	},
	"architecture": {
		Standard:      2500,
		Detailed:      5000,
		Comprehensive: 10000,
		Description:   "Design work spanning several components and their tradeoffs.",
	},
	"learning": {
		Standard:      1500,
		Detailed:      3500,
		Comprehensive: 7000,
		Description:   "Building understanding of a topic from overview to internals.",
	},
}

// defaultBudget covers everything taskBudgets does not name.
var defaultBudget = datatypes.TokenBudgetResponse{
	Standard:      1000,
	Detailed:      2500,
	Comprehensive: 5000,
	Description:   "General-purpose budget for unclassified tasks.",
}

// TokenBudget recommends max_tokens values for a task type. Unknown task
// types get the default tier with a note, never an error.
func TokenBudget(taskType string) datatypes.TokenBudgetResponse {
	key := strings.ToLower(strings.TrimSpace(taskType))
	if budget, ok := taskBudgets[key]; ok {
		return budget
	}
	budget := defaultBudget
	if key != "" {
		budget.Description = fmt.Sprintf("Unrecognized task type %q; using the general-purpose budget.", taskType)
	}
	return budget
}

// TaskTypes lists the recognized task types in stable order.
func TaskTypes() []string {
	return []string{"quick_fix", "code_review", "debugging", "architecture", "learning"}
}
