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
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Level
		wantErr bool
	}{
		{name: "empty defaults to overview", input: "", want: LevelOverview},
		{name: "overview", input: "overview", want: LevelOverview},
		{name: "legacy standard alias", input: "standard", want: LevelOverview},
		{name: "detailed", input: "detailed", want: LevelDetailed},
		{name: "comprehensive", input: "comprehensive", want: LevelComprehensive},
		{name: "mixed case", input: "Detailed", want: LevelDetailed},
		{name: "surrounding whitespace", input: "  comprehensive ", want: LevelComprehensive},
		{name: "unknown is rejected", input: "everything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLevel(%q): expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q): unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if got := LevelOverview.String(); got != "overview" {
		t.Errorf("LevelOverview.String() = %q", got)
	}
	if got := LevelDetailed.String(); got != "detailed" {
		t.Errorf("LevelDetailed.String() = %q", got)
	}
	if got := LevelComprehensive.String(); got != "comprehensive" {
		t.Errorf("LevelComprehensive.String() = %q", got)
	}
	if got := Level(99).String(); got != "overview" {
		t.Errorf("out-of-range level String() = %q, want overview", got)
	}
}

func TestLevelCeilingsGrowWithDepth(t *testing.T) {
	levels := []Level{LevelOverview, LevelDetailed, LevelComprehensive}
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1], levels[i]
		if cur.ManifestTokenCeiling() <= prev.ManifestTokenCeiling() {
			t.Errorf("%v ceiling %d not above %v ceiling %d",
				cur, cur.ManifestTokenCeiling(), prev, prev.ManifestTokenCeiling())
		}
		if cur.TopKPerVariant() <= prev.TopKPerVariant() {
			t.Errorf("%v top-k %d not above %v top-k %d",
				cur, cur.TopKPerVariant(), prev, prev.TopKPerVariant())
		}
	}
}

func TestTokenBudget(t *testing.T) {
	quick := TokenBudget("quick_fix")
	if quick.Standard != 800 || quick.Detailed != 2000 || quick.Comprehensive != 4000 {
		t.Errorf("quick_fix budget = %+v", quick)
	}

	arch := TokenBudget("ARCHITECTURE")
	if arch.Comprehensive != 10000 {
		t.Errorf("task type lookup should be case-insensitive, got %+v", arch)
	}

	same := TokenBudget("quick_fix")
	if same != quick {
		t.Error("TokenBudget should be deterministic for the same task type")
	}
}

func TestTokenBudgetUnknownType(t *testing.T) {
	got := TokenBudget("interpretive_dance")
	if got.Standard != defaultBudget.Standard || got.Comprehensive != defaultBudget.Comprehensive {
		t.Errorf("unknown task type should use default tiers, got %+v", got)
	}
	if !strings.Contains(got.Description, "interpretive_dance") {
		t.Errorf("unknown task type description should name the input, got %q", got.Description)
	}

	empty := TokenBudget("")
	if empty.Description != defaultBudget.Description {
		t.Errorf("empty task type should keep the default description, got %q", empty.Description)
	}
}

func TestTaskTypesMatchBudgetTable(t *testing.T) {
	for _, taskType := range TaskTypes() {
		if _, ok := taskBudgets[taskType]; !ok {
			t.Errorf("TaskTypes lists %q but the budget table has no entry", taskType)
		}
	}
	if len(TaskTypes()) != len(taskBudgets) {
		t.Errorf("TaskTypes lists %d types, budget table has %d", len(TaskTypes()), len(taskBudgets))
	}
}
