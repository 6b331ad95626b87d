// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command coordinator starts the AleutianRecall coordinator HTTP server.
//
// This is the main entry point for the containerized coordinator service.
// It reads configuration from environment variables and serves until
// SIGINT or SIGTERM, then drains in-flight requests before exiting.
//
// # Environment Variables
//
//   - RECALL_PORT: HTTP server port (default: 12310)
//   - WEAVIATE_URL: Weaviate vector DB URL (default: http://localhost:8080)
//   - RECALL_COLLECTIONS: comma-separated collections to search (default: Document)
//   - RECALL_DATA_DIR: BadgerDB directory for sessions and telemetry (default: /var/lib/aleutian/recall)
//   - EMBEDDING_SERVICE_URL: embedding sidecar URL (optional)
//   - OPENAI_API_KEY: enables OpenAI embeddings and LLM query expansion (optional)
//   - RECALL_API_TOKEN: bearer token guarding /admin routes (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o coordinator ./cmd/coordinator
//
//	# Run
//	./coordinator
//
//	# Or via container
//	podman-compose up coordinator
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianRecall/services/coordinator"
)

// shutdownTimeout bounds how long in-flight requests may drain.
const shutdownTimeout = 15 * time.Second

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := coordinator.DefaultConfig()

	// Create coordinator with default (production) dependencies
	svc, err := coordinator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}

	// Serve in the background so signals can drive shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Coordinator error: %v", err)
		}
	case sig := <-quit:
		slog.Info("Shutting down recall coordinator", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			log.Fatalf("Shutdown error: %v", err)
		}
	}
}
