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
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/session"
)

func feedbackRouter(f *handlerFixture) *gin.Engine {
	router := gin.New()
	router.POST("/feedback/evaluate", f.h.HandleFeedback)
	return router
}

func validFeedbackBody() map[string]any {
	return map[string]any{
		"session_id": "sess-1",
		"response":   "Mount the volume with -v.",
		"confidence": 0.4,
		"gaps":       []string{"permission errors on mount"},
	}
}

func TestFeedback_Success(t *testing.T) {
	f := newFixture()
	f.feedback.resp = &datatypes.RefinementSuggestion{
		SuggestedQueries:            []string{"troubleshooting permission errors on mount"},
		EstimatedConfidenceIncrease: 0.15,
		ShouldRefine:                true,
		AvailableCollections:        []string{"ContainerDocs"},
	}

	w := performRequest(feedbackRouter(f), http.MethodPost, "/feedback/evaluate", validFeedbackBody())

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[datatypes.RefinementSuggestion](t, w)
	assert.True(t, resp.ShouldRefine)
	assert.Equal(t, []string{"troubleshooting permission errors on mount"}, resp.SuggestedQueries)
	assert.InDelta(t, 0.15, resp.EstimatedConfidenceIncrease, 1e-9)

	require.NotNil(t, f.feedback.got)
	assert.Equal(t, "sess-1", f.feedback.got.SessionID)
	assert.InDelta(t, 0.4, f.feedback.got.Confidence, 1e-9)
}

func TestFeedback_MalformedBody(t *testing.T) {
	f := newFixture()

	w := performRequest(feedbackRouter(f), http.MethodPost, "/feedback/evaluate", `{"session_id":`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody[ErrorResponse](t, w).Code)
}

func TestFeedback_ConfidenceOutOfRange(t *testing.T) {
	f := newFixture()
	body := validFeedbackBody()
	body["confidence"] = 1.5

	w := performRequest(feedbackRouter(f), http.MethodPost, "/feedback/evaluate", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody[ErrorResponse](t, w).Code)
	assert.Nil(t, f.feedback.got)
}

func TestFeedback_MissingSessionID(t *testing.T) {
	f := newFixture()
	body := validFeedbackBody()
	delete(body, "session_id")

	w := performRequest(feedbackRouter(f), http.MethodPost, "/feedback/evaluate", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody[ErrorResponse](t, w).Code)
}

func TestFeedback_UnknownSession(t *testing.T) {
	f := newFixture()
	f.feedback.err = fmt.Errorf("look up session sess-1: %w", session.ErrSessionNotFound)

	w := performRequest(feedbackRouter(f), http.MethodPost, "/feedback/evaluate", validFeedbackBody())

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeBody[ErrorResponse](t, w).Code)
}
