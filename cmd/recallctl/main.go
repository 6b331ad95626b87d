// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command recallctl is the operator CLI for the AleutianRecall coordinator.
//
// It talks to a running coordinator over HTTP and prints the raw JSON
// responses, indented when stdout is a terminal. All commands honor the
// --server flag or the RECALL_SERVER environment variable; admin
// commands additionally need --token or RECALL_API_TOKEN when the
// coordinator was started with one.
//
// # Usage
//
//	recallctl health
//	recallctl capabilities --level detailed
//	recallctl budget debugging
//	recallctl session get 550e8400-e29b-41d4-a716-446655440000
//	recallctl breakers --token $RECALL_API_TOKEN
//	recallctl epoch bump --collection Document
package main

import (
	"log"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
