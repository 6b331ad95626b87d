// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleGetSession handles GET /session/:sessionId.
//
// Response:
//
//	200 OK: SessionSnapshot
//	404 Not Found: No live session with that ID
func (h *Handlers) HandleGetSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetSession")

	sessionID := c.Param("sessionId")
	snap, err := h.sessions.Snapshot(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// HandleDeleteSession handles DELETE /session/:sessionId.
//
// Response:
//
//	200 OK: {"status": "success", "deleted_session_id": id}
//	404 Not Found: No live session with that ID
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteSession")

	sessionID := c.Param("sessionId")
	if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		respondError(c, logger, err)
		return
	}

	logger.Info("Session deleted", "session_id", sessionID)
	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"deleted_session_id": sessionID,
	})
}
