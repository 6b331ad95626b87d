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

// runSessionGet prints the snapshot of one session: turn count, sent
// chunk count, and the query history the refinement loop works from.
func runSessionGet(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	body := callCoordinator(http.MethodGet, "/session/"+url.PathEscape(sessionID), nil)
	printJSON(body)
}

// runSessionDelete removes a session and its deduplication state. The
// next turn with this ID starts fresh and may resend earlier chunks.
func runSessionDelete(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	body := callCoordinator(http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil)
	activity().Info("session deleted", "session_id", sessionID)
	printJSON(body)
}
