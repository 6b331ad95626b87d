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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	// DefaultCoordinatorURL is where a locally deployed coordinator
	// listens.
	DefaultCoordinatorURL = "http://localhost:12310"

	// requestTimeout bounds every coordinator call.
	requestTimeout = 30 * time.Second
)

// getCoordinatorBaseURL resolves the coordinator address.
func getCoordinatorBaseURL() string {
	// 1. Priority: --server flag
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	// 2. Environment variable (used by tests & container overrides)
	if url := os.Getenv("RECALL_SERVER"); url != "" {
		return strings.TrimRight(url, "/")
	}
	// 3. Default: standard host/port
	return DefaultCoordinatorURL
}

// getAPIToken resolves the bearer token for admin routes.
func getAPIToken() string {
	if apiToken != "" {
		return apiToken
	}
	return os.Getenv("RECALL_API_TOKEN")
}

// callCoordinator performs one HTTP request against the coordinator and
// returns the response body. Connection failures and non-2xx statuses
// are fatal; the coordinator's error body is included in the message.
func callCoordinator(method, path string, body any) []byte {
	base := getCoordinatorBaseURL()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := getAPIToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to connect to coordinator at %s: %v", base, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read coordinator response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Fatalf("Coordinator returned an error: (Status %d) %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody
}

// printJSON writes a response body to stdout: indented for terminals,
// raw for pipes so scripts can feed it straight into jq.
func printJSON(body []byte) {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			fmt.Println(pretty.String())
			return
		}
	}
	fmt.Println(string(body))
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
