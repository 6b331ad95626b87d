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
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
)

// healthProbeTimeout bounds the vector store readiness check so a hung
// dependency cannot stall the health route.
const healthProbeTimeout = 2 * time.Second

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Weaviate is "ok", "unreachable", or "unconfigured".
	Weaviate string `json:"weaviate"`

	// OpenBreakers lists circuit breakers currently failing fast.
	OpenBreakers []string `json:"open_breakers,omitempty"`
}

// HandleHealth handles GET /health.
//
// # Description
//
// Reports coordinator health. The route always answers 200 while the
// process serves; a down vector store or an open breaker shows up as
// "degraded" in the body rather than as an HTTP failure, so monitors
// can distinguish "down" from "up but impaired".
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Weaviate: "unconfigured",
	}

	if h.probe != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()
		if err := h.probe.Live(ctx); err != nil {
			resp.Weaviate = "unreachable"
			resp.Status = "degraded"
		} else {
			resp.Weaviate = "ok"
		}
	}

	if h.breakers != nil {
		resp.OpenBreakers = openBreakerNames(h.breakers.States())
		if len(resp.OpenBreakers) > 0 {
			resp.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// openBreakerNames returns the names of open breakers, sorted.
func openBreakerNames(states map[string]breaker.Counts) []string {
	var open []string
	for name, counts := range states {
		if counts.State == breaker.StateOpen.String() {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}
