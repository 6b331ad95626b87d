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
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/datatypes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/disclosure"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/embedding"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/session"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fakes
// =============================================================================

type fakeContextService struct {
	resp *datatypes.MultiTurnContextResponse
	err  error
	got  *datatypes.MultiTurnContextRequest
}

func (f *fakeContextService) GetContext(_ context.Context, req *datatypes.MultiTurnContextRequest) (*datatypes.MultiTurnContextResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeSessionService struct {
	sessions []datatypes.SessionSnapshot
	listErr  error
	deleted  []string
}

func (f *fakeSessionService) find(id string) (datatypes.SessionSnapshot, bool) {
	for _, snap := range f.sessions {
		if snap.SessionID == id {
			return snap, true
		}
	}
	return datatypes.SessionSnapshot{}, false
}

func (f *fakeSessionService) Snapshot(_ context.Context, id string) (datatypes.SessionSnapshot, error) {
	if snap, ok := f.find(id); ok {
		return snap, nil
	}
	return datatypes.SessionSnapshot{}, session.ErrSessionNotFound
}

func (f *fakeSessionService) Delete(_ context.Context, id string) error {
	if _, ok := f.find(id); !ok {
		return session.ErrSessionNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSessionService) List(_ context.Context) ([]datatypes.SessionSnapshot, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions, nil
}

type fakeFeedbackService struct {
	resp *datatypes.RefinementSuggestion
	err  error
	got  *datatypes.FeedbackRequest
}

func (f *fakeFeedbackService) Evaluate(_ context.Context, req *datatypes.FeedbackRequest) (*datatypes.RefinementSuggestion, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeCapabilityService struct {
	manifest      *datatypes.CapabilityManifest
	collections   []string
	gotLevel      disclosure.Level
	gotCategories []string
}

func (f *fakeCapabilityService) Capabilities(_ context.Context, level disclosure.Level, categories []string) *datatypes.CapabilityManifest {
	f.gotLevel = level
	f.gotCategories = categories
	if f.manifest != nil {
		return f.manifest
	}
	return &datatypes.CapabilityManifest{
		Level:      level.String(),
		Categories: map[string][]datatypes.CapabilityEntry{},
	}
}

func (f *fakeCapabilityService) AllCollections() []string {
	return f.collections
}

type fakeBreakers struct {
	states map[string]breaker.Counts
}

func (f *fakeBreakers) States() map[string]breaker.Counts {
	return f.states
}

type fakeEpochCache struct {
	epochs map[string]uint64
	stats  embedding.CacheStats
}

func (f *fakeEpochCache) BumpEpoch(collection string) {
	if f.epochs == nil {
		f.epochs = make(map[string]uint64)
	}
	f.epochs[collection]++
}

func (f *fakeEpochCache) Epoch(collection string) uint64 {
	return f.epochs[collection]
}

func (f *fakeEpochCache) Stats() embedding.CacheStats {
	return f.stats
}

type fakeProbe struct {
	err error
}

func (f *fakeProbe) Live(_ context.Context) error {
	return f.err
}

type captureRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *captureRecorder) Record(ev telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *captureRecorder) Close() error { return nil }

func (r *captureRecorder) recorded() []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Event(nil), r.events...)
}

// =============================================================================
// Fixture
// =============================================================================

type handlerFixture struct {
	h        *Handlers
	contexts *fakeContextService
	sessions *fakeSessionService
	feedback *fakeFeedbackService
	caps     *fakeCapabilityService
	breakers *fakeBreakers
	cache    *fakeEpochCache
	probe    *fakeProbe
	recorder *captureRecorder
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		contexts: &fakeContextService{},
		sessions: &fakeSessionService{},
		feedback: &fakeFeedbackService{},
		caps:     &fakeCapabilityService{collections: []string{"ContainerDocs", "NetworkDocs"}},
		breakers: &fakeBreakers{states: map[string]breaker.Counts{}},
		cache:    &fakeEpochCache{epochs: map[string]uint64{}},
		probe:    &fakeProbe{},
		recorder: &captureRecorder{},
	}
	f.h = NewHandlers(f.contexts, f.sessions, f.feedback, f.caps).
		WithBreakers(f.breakers).
		WithEpochCache(f.cache).
		WithLivenessProbe(f.probe).
		WithRecorder(f.recorder)
	return f
}

// performRequest drives one request through a router. A string body is
// sent raw; any other body is JSON-encoded.
func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var req = httptest.NewRequest(method, path, nil)
	switch b := body.(type) {
	case nil:
	case string:
		req = httptest.NewRequest(method, path, strings.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	default:
		data, err := json.Marshal(b)
		if err != nil {
			panic(err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
