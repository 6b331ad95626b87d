// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the HTTP handlers for the coordinator
// service. Handlers bind and validate wire types from the datatypes
// package, delegate to the session, feedback, and disclosure layers,
// and map domain errors onto HTTP status codes.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/disclosure"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/embedding"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/session"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

// ServiceVersion is the coordinator service version.
const ServiceVersion = "0.1.0"

// ErrorResponse is the wire shape of every error reply.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`
}

// ContextService runs multi-turn context assembly. The session manager
// satisfies it.
type ContextService interface {
	GetContext(ctx context.Context, req *datatypes.MultiTurnContextRequest) (*datatypes.MultiTurnContextResponse, error)
}

// SessionService exposes session inspection and teardown. The session
// manager satisfies it.
type SessionService interface {
	Snapshot(ctx context.Context, id string) (datatypes.SessionSnapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]datatypes.SessionSnapshot, error)
}

// FeedbackService evaluates client feedback. The feedback evaluator
// satisfies it.
type FeedbackService interface {
	Evaluate(ctx context.Context, req *datatypes.FeedbackRequest) (*datatypes.RefinementSuggestion, error)
}

// CapabilityService exposes the taxonomy. The disclosure registry
// satisfies it.
type CapabilityService interface {
	Capabilities(ctx context.Context, level disclosure.Level, categories []string) *datatypes.CapabilityManifest
	AllCollections() []string
}

// BreakerInspector exposes circuit breaker state. The breaker registry
// satisfies it.
type BreakerInspector interface {
	States() map[string]breaker.Counts
}

// EpochCache is the slice of the embedding cache the admin surface
// needs.
type EpochCache interface {
	BumpEpoch(collection string)
	Epoch(collection string) uint64
	Stats() embedding.CacheStats
}

// LivenessProbe checks a dependency's readiness. The Weaviate searcher
// satisfies it.
type LivenessProbe interface {
	Live(ctx context.Context) error
}

// Handlers contains the HTTP handlers for the coordinator.
type Handlers struct {
	contexts     ContextService
	sessions     SessionService
	feedback     FeedbackService
	capabilities CapabilityService
	breakers     BreakerInspector
	cache        EpochCache
	probe        LivenessProbe
	recorder     telemetry.Recorder
}

// NewHandlers creates handlers over the core services.
func NewHandlers(contexts ContextService, sessions SessionService, feedback FeedbackService, capabilities CapabilityService) *Handlers {
	return &Handlers{
		contexts:     contexts,
		sessions:     sessions,
		feedback:     feedback,
		capabilities: capabilities,
		recorder:     telemetry.NopRecorder{},
	}
}

// WithBreakers sets the breaker registry for health and admin routes.
func (h *Handlers) WithBreakers(breakers BreakerInspector) *Handlers {
	h.breakers = breakers
	return h
}

// WithEpochCache sets the embedding cache for the admin epoch routes.
func (h *Handlers) WithEpochCache(cache EpochCache) *Handlers {
	h.cache = cache
	return h
}

// WithLivenessProbe sets the vector store probe for the health route.
func (h *Handlers) WithLivenessProbe(probe LivenessProbe) *Handlers {
	h.probe = probe
	return h
}

// WithRecorder sets the telemetry recorder for admin events.
func (h *Handlers) WithRecorder(rec telemetry.Recorder) *Handlers {
	if rec != nil {
		h.recorder = rec
	}
	return h
}

// respondError maps a domain error onto an HTTP status and error code.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case datatypes.IsValidationError(err):
		logger.Warn("Request rejected", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_FAILED",
		})
	case errors.Is(err, session.ErrSessionNotFound):
		logger.Warn("Session not found", "error", err)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
	case errors.Is(err, breaker.ErrCircuitOpen):
		logger.Warn("Dependency unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: err.Error(),
			Code:  "DEPENDENCY_UNAVAILABLE",
		})
	default:
		logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL",
		})
	}
}

// getOrCreateRequestID returns the X-Request-ID header, minting one when
// the caller sent none, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
