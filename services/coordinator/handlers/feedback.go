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

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
)

// HandleFeedback handles POST /feedback/evaluate.
//
// # Description
//
// Evaluates the client's self-assessment of its response and answers
// with refinement guidance: suggested follow-up queries, an estimated
// confidence gain, and whether another turn is worth it.
//
// Response:
//
//	200 OK: RefinementSuggestion
//	400 Bad Request: Malformed body or validation failure
//	404 Not Found: session_id references no live session
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleFeedback(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleFeedback")

	var req datatypes.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, logger, err)
		return
	}

	resp, err := h.feedback.Evaluate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	logger.Info("Feedback evaluated",
		"session_id", req.SessionID,
		"confidence", req.Confidence,
		"should_refine", resp.ShouldRefine,
		"suggested_queries", len(resp.SuggestedQueries))
	c.JSON(http.StatusOK, resp)
}
