// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// SessionSnapshot is the read-only session view returned by
// GET /session/:id and the admin session listing. Timestamps are Unix
// milliseconds, matching the rest of the wire surface.
type SessionSnapshot struct {
	SessionID      string   `json:"session_id"`
	CreatedAt      int64    `json:"created_at"`
	LastActiveAt   int64    `json:"last_active_at"`
	TurnCount      int      `json:"turn_count"`
	SentChunkCount int      `json:"sent_chunk_count"`
	Queries        []string `json:"queries"`
}
