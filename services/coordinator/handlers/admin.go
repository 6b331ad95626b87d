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

	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

// EpochBumpRequest is the body of POST /admin/epoch/bump. An empty
// collection bumps every configured collection.
type EpochBumpRequest struct {
	Collection string `json:"collection,omitempty"`
}

// EpochBumpResponse reports the new epoch per bumped collection.
type EpochBumpResponse struct {
	Status string            `json:"status"`
	Epochs map[string]uint64 `json:"epochs"`
}

// HandleListBreakers handles GET /admin/breakers.
//
// Response:
//
//	200 OK: {"breakers": {name: counts}}
func (h *Handlers) HandleListBreakers(c *gin.Context) {
	if h.breakers == nil {
		c.JSON(http.StatusOK, gin.H{"breakers": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakers": h.breakers.States()})
}

// HandleBumpEpoch handles POST /admin/epoch/bump.
//
// # Description
//
// Invalidates cached embeddings after a re-ingest. Bumping a
// collection's epoch marks every cached vector for it stale without
// enumerating entries; the next lookup recomputes. With no collection
// in the body, every configured collection is bumped.
//
// Response:
//
//	200 OK: EpochBumpResponse
//	400 Bad Request: Collection is not configured
//	503 Service Unavailable: No embedding cache wired
func (h *Handlers) HandleBumpEpoch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBumpEpoch")

	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "embedding cache is not configured",
			Code:  "CACHE_UNAVAILABLE",
		})
		return
	}

	var req EpochBumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	configured := h.capabilities.AllCollections()
	targets := configured
	if req.Collection != "" {
		if !containsString(configured, req.Collection) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "collection " + req.Collection + " is not configured",
				Code:  "UNKNOWN_COLLECTION",
			})
			return
		}
		targets = []string{req.Collection}
	}

	epochs := make(map[string]uint64, len(targets))
	for _, collection := range targets {
		h.cache.BumpEpoch(collection)
		epoch := h.cache.Epoch(collection)
		epochs[collection] = epoch
		h.recorder.Record(telemetry.Event{
			Kind:        telemetry.KindEpochBump,
			Collections: []string{collection},
			Epoch:       epoch,
		})
	}

	logger.Info("Embedding epochs bumped", "collections", len(targets))
	c.JSON(http.StatusOK, EpochBumpResponse{
		Status: "success",
		Epochs: epochs,
	})
}

// HandleCacheStats handles GET /admin/cache.
//
// Response:
//
//	200 OK: {"stats": CacheStats, "epochs": {collection: epoch}}
//	503 Service Unavailable: No embedding cache wired
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "embedding cache is not configured",
			Code:  "CACHE_UNAVAILABLE",
		})
		return
	}

	epochs := make(map[string]uint64)
	for _, collection := range h.capabilities.AllCollections() {
		epochs[collection] = h.cache.Epoch(collection)
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":  h.cache.Stats(),
		"epochs": epochs,
	})
}

// HandleAdminSessions handles GET /admin/sessions.
//
// Response:
//
//	200 OK: {"sessions": [SessionSnapshot], "count": n}
func (h *Handlers) HandleAdminSessions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAdminSessions")

	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
