// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding turns text into vectors and caches the results.
//
// Two provider backends are supported: the local embedding sidecar (the
// same HTTP protocol the ingestion pipeline uses) and any
// OpenAI-compatible embeddings endpoint. The Cache wraps a provider with
// epoch-based invalidation so reindexing a collection lazily invalidates
// every query vector computed against its previous contents.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Provider computes an embedding vector for a piece of text.
type Provider interface {
	// Embed returns the vector for text. Implementations must respect
	// ctx cancellation and deadlines.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model identifies the embedding model, used in cache keys so a
	// model change never serves stale vectors.
	Model() string
}

// =============================================================================
// Local Sidecar Provider
// =============================================================================

// sidecarRequest is the embedding sidecar's request body.
type sidecarRequest struct {
	Text string `json:"text"`
}

// sidecarResponse is the embedding sidecar's response body.
type sidecarResponse struct {
	Id        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Dim       int       `json:"dim"`
}

// HTTPEmbedder calls the local embedding sidecar over HTTP.
type HTTPEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// NewHTTPEmbedder creates a provider pointed at the sidecar's /embed URL.
// The model name is what the sidecar serves; it only participates in cache
// keying here.
func NewHTTPEmbedder(url, model string) (*HTTPEmbedder, error) {
	if url == "" {
		return nil, errors.New("embedding service URL must not be empty")
	}
	if model == "" {
		model = "default"
	}
	return &HTTPEmbedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Embed posts the text to the sidecar and returns its vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(sidecarRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding service: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(payload))
	}

	var decoded sidecarResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Vector) == 0 {
		return nil, errors.New("embedding service returned an empty vector")
	}
	return decoded.Vector, nil
}

// Model returns the configured model name.
func (e *HTTPEmbedder) Model() string { return e.model }

// =============================================================================
// OpenAI-Compatible Provider
// =============================================================================

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. A custom
// base URL points it at local servers (llama.cpp, vLLM, Ollama's OpenAI
// shim) that speak the same protocol.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates a provider for the given API key and model.
// baseURL may be empty for the hosted endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Embed requests a single embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings call failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai returned no embedding data")
	}
	return resp.Data[0].Embedding, nil
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// =============================================================================
// Static Provider
// =============================================================================

// StaticProvider returns a fixed-dimension deterministic vector derived
// from the text. It exists for tests and for running the service without
// any embedding backend at all (retrieval quality degrades to keyword-ish
// behavior, but nothing breaks).
type StaticProvider struct {
	Dim int
}

// Embed derives a deterministic pseudo-vector from the text bytes.
func (s *StaticProvider) Embed(_ context.Context, text string) ([]float32, error) {
	dim := s.Dim
	if dim <= 0 {
		dim = 8
	}
	vec := make([]float32, dim)
	for i, b := range []byte(text) {
		vec[i%dim] += float32(b) / 255.0
	}
	return vec, nil
}

// Model identifies the static provider in cache keys.
func (s *StaticProvider) Model() string { return "static" }
