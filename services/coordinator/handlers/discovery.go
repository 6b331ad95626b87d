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
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/disclosure"
)

// HandleGetCapabilities handles GET /discovery/capabilities.
//
// # Description
//
// Query-parameter form of capability discovery, for clients that probe
// before their first turn. "level" defaults to overview; "categories"
// is a comma-separated filter.
//
// Response:
//
//	200 OK: CapabilityManifest
//	400 Bad Request: Unknown level
func (h *Handlers) HandleGetCapabilities(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetCapabilities")

	h.capabilityManifest(c, logger, c.Query("level"), splitCategories(c.Query("categories")))
}

// HandlePostCapabilities handles POST /discovery/capabilities.
//
// Response:
//
//	200 OK: CapabilityManifest
//	400 Bad Request: Malformed body or unknown level
func (h *Handlers) HandlePostCapabilities(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePostCapabilities")

	var req datatypes.CapabilitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	h.capabilityManifest(c, logger, req.Level, req.Categories)
}

// capabilityManifest assembles and writes the manifest for both
// capability routes.
func (h *Handlers) capabilityManifest(c *gin.Context, logger *slog.Logger, rawLevel string, categories []string) {
	level, err := disclosure.ParseLevel(rawLevel)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	manifest := h.capabilities.Capabilities(c.Request.Context(), level, categories)

	logger.Info("Capabilities served",
		"level", level.String(),
		"categories", len(manifest.Categories),
		"estimated_tokens", manifest.EstimatedTokens,
		"truncated", manifest.Truncated)
	c.JSON(http.StatusOK, manifest)
}

// HandleTokenBudget handles POST /discovery/token_budget.
//
// # Description
//
// Maps a task type to recommended max_tokens values per context level.
// Unknown task types get the general-purpose budget, flagged in the
// description, so clients never need to hardcode the task taxonomy.
//
// Response:
//
//	200 OK: TokenBudgetResponse
//	400 Bad Request: Malformed body or missing task_type
func (h *Handlers) HandleTokenBudget(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTokenBudget")

	var req datatypes.TokenBudgetRequest
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

	budget := disclosure.TokenBudget(req.TaskType)
	logger.Info("Token budget served", "task_type", req.TaskType)
	c.JSON(http.StatusOK, budget)
}

// splitCategories parses a comma-separated category filter.
func splitCategories(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
