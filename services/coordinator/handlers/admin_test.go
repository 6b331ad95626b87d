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
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/embedding"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

func adminRouter(f *handlerFixture) *gin.Engine {
	router := gin.New()
	router.GET("/admin/breakers", f.h.HandleListBreakers)
	router.POST("/admin/epoch/bump", f.h.HandleBumpEpoch)
	router.GET("/admin/cache", f.h.HandleCacheStats)
	router.GET("/admin/sessions", f.h.HandleAdminSessions)
	return router
}

func TestListBreakers(t *testing.T) {
	f := newFixture()
	f.breakers.states = map[string]breaker.Counts{
		"embedding": {State: breaker.StateClosed.String(), Failures: 1},
	}

	w := performRequest(adminRouter(f), http.MethodGet, "/admin/breakers", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]map[string]breaker.Counts](t, w)
	require.Contains(t, body, "breakers")
	assert.Equal(t, "CLOSED", body["breakers"]["embedding"].State)
	assert.Equal(t, 1, body["breakers"]["embedding"].Failures)
}

func TestBumpEpoch_AllCollections(t *testing.T) {
	f := newFixture()

	w := performRequest(adminRouter(f), http.MethodPost, "/admin/epoch/bump", map[string]any{})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EpochBumpResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, uint64(1), resp.Epochs["ContainerDocs"])
	assert.Equal(t, uint64(1), resp.Epochs["NetworkDocs"])

	events := f.recorder.recorded()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, telemetry.KindEpochBump, ev.Kind)
		assert.Equal(t, uint64(1), ev.Epoch)
	}
}

func TestBumpEpoch_SingleCollection(t *testing.T) {
	f := newFixture()

	w := performRequest(adminRouter(f), http.MethodPost, "/admin/epoch/bump",
		EpochBumpRequest{Collection: "NetworkDocs"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EpochBumpResponse](t, w)
	assert.Equal(t, map[string]uint64{"NetworkDocs": 1}, resp.Epochs)
	assert.Zero(t, f.cache.epochs["ContainerDocs"])
}

func TestBumpEpoch_UnknownCollection(t *testing.T) {
	f := newFixture()

	w := performRequest(adminRouter(f), http.MethodPost, "/admin/epoch/bump",
		EpochBumpRequest{Collection: "Nope"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_COLLECTION", decodeBody[ErrorResponse](t, w).Code)
	assert.Empty(t, f.recorder.recorded())
}

func TestBumpEpoch_NoCacheWired(t *testing.T) {
	f := newFixture()
	h := NewHandlers(f.contexts, f.sessions, f.feedback, f.caps)
	router := gin.New()
	router.POST("/admin/epoch/bump", h.HandleBumpEpoch)

	w := performRequest(router, http.MethodPost, "/admin/epoch/bump", map[string]any{})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "CACHE_UNAVAILABLE", decodeBody[ErrorResponse](t, w).Code)
}

func TestCacheStats(t *testing.T) {
	f := newFixture()
	f.cache.stats = embedding.CacheStats{Hits: 10, Misses: 4, Entries: 4}
	f.cache.BumpEpoch("ContainerDocs")

	w := performRequest(adminRouter(f), http.MethodGet, "/admin/cache", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		Stats  embedding.CacheStats `json:"stats"`
		Epochs map[string]uint64    `json:"epochs"`
	}](t, w)
	assert.Equal(t, int64(10), body.Stats.Hits)
	assert.Equal(t, uint64(1), body.Epochs["ContainerDocs"])
	assert.Equal(t, uint64(0), body.Epochs["NetworkDocs"])
}

func TestAdminSessions(t *testing.T) {
	f := newFixture()
	f.sessions.sessions = []datatypes.SessionSnapshot{
		{SessionID: "sess-1", TurnCount: 2},
		{SessionID: "sess-2", TurnCount: 1},
	}

	w := performRequest(adminRouter(f), http.MethodGet, "/admin/sessions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		Sessions []datatypes.SessionSnapshot `json:"sessions"`
		Count    int                         `json:"count"`
	}](t, w)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, "sess-1", body.Sessions[0].SessionID)
}
