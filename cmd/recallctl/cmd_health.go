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
	"encoding/json"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// runHealth prints the coordinator health report. The route always
// answers 200 so degradation shows up in the body; the command exits 1
// when status is not "healthy" for use in scripts and readiness checks.
func runHealth(cmd *cobra.Command, args []string) {
	body := callCoordinator(http.MethodGet, "/health", nil)
	printJSON(body)

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err == nil && health.Status != "healthy" {
		os.Exit(1)
	}
}
