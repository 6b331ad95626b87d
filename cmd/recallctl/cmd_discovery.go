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
	"net/url"

	"github.com/spf13/cobra"
)

// runCapabilities fetches the capability manifest. The level flag
// controls disclosure depth; categories narrows the manifest to
// matching knowledge areas.
func runCapabilities(cmd *cobra.Command, args []string) {
	params := url.Values{}
	if capLevel != "" {
		params.Set("level", capLevel)
	}
	if capCategories != "" {
		params.Set("categories", capCategories)
	}

	path := "/discovery/capabilities"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	body := callCoordinator(http.MethodGet, path, nil)
	printJSON(body)
}

// runBudget fetches the recommended max_tokens values for a task type.
func runBudget(cmd *cobra.Command, args []string) {
	body := callCoordinator(http.MethodPost, "/discovery/token_budget",
		map[string]string{"task_type": args[0]})
	printJSON(body)
}
