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
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
)

func healthRouter(f *handlerFixture) *gin.Engine {
	router := gin.New()
	router.GET("/health", f.h.HandleHealth)
	return router
}

func TestHealth_AllDependenciesUp(t *testing.T) {
	f := newFixture()

	w := performRequest(healthRouter(f), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Equal(t, "ok", resp.Weaviate)
	assert.Empty(t, resp.OpenBreakers)
}

func TestHealth_WeaviateDownIsDegraded(t *testing.T) {
	f := newFixture()
	f.probe.err = errors.New("connection refused")

	w := performRequest(healthRouter(f), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.Weaviate)
}

func TestHealth_OpenBreakerIsDegraded(t *testing.T) {
	f := newFixture()
	f.breakers.states = map[string]breaker.Counts{
		"weaviate:ContainerDocs": {State: breaker.StateOpen.String(), Failures: 5},
		"embedding":              {State: breaker.StateClosed.String()},
	}

	w := performRequest(healthRouter(f), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, []string{"weaviate:ContainerDocs"}, resp.OpenBreakers)
}

func TestHealth_NoProbeReportsUnconfigured(t *testing.T) {
	f := newFixture()
	h := NewHandlers(f.contexts, f.sessions, f.feedback, f.caps)

	router := gin.New()
	router.GET("/health", h.HandleHealth)
	w := performRequest(router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "unconfigured", resp.Weaviate)
}
