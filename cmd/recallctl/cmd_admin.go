// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

// runListSessions lists every live session with its age and turn count.
func runListSessions(cmd *cobra.Command, args []string) {
	body := callCoordinator(http.MethodGet, "/admin/sessions", nil)
	printJSON(body)
}

// runBreakers shows each circuit breaker's state and rolling counts.
// OPEN breakers mean a dependency is failing fast instead of being
// retried on every request.
func runBreakers(cmd *cobra.Command, args []string) {
	body := callCoordinator(http.MethodGet, "/admin/breakers", nil)
	printJSON(body)
}

// runCacheStats shows embedding cache hit rates, entry counts, and the
// current epoch per collection.
func runCacheStats(cmd *cobra.Command, args []string) {
	body := callCoordinator(http.MethodGet, "/admin/cache", nil)
	printJSON(body)
}

// runEpochBump invalidates cached embeddings for one collection, or all
// configured collections when no --collection is given. Run this after
// re-ingesting documents so stale vectors stop being served.
func runEpochBump(cmd *cobra.Command, args []string) {
	req := map[string]string{}
	if bumpCollection != "" {
		req["collection"] = bumpCollection
	}

	body := callCoordinator(http.MethodPost, "/admin/epoch/bump", req)
	activity().Info("epoch bumped", "collection", bumpCollection)
	printJSON(body)
}
