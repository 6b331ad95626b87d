// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinator assembles and runs the Aleutian Recall service.
//
// Recall sits between an LLM client and a local knowledge base. It
// serves token-budgeted context over multi-turn sessions: queries are
// expanded into variants, embedded through a caching layer, searched
// across Weaviate collections behind per-collection circuit breakers,
// deduplicated against what the session has already seen, and
// compressed to the caller's token budget. A feedback endpoint turns
// client confidence reports into refinement suggestions, and a
// discovery surface tells clients what the knowledge base can answer.
//
// # Usage
//
// Production (configuration from environment variables):
//
//	cfg := coordinator.DefaultConfig()
//	svc, err := coordinator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// Tests inject fakes for the external dependencies through Options so
// the full service runs without Weaviate, an embedding backend, or
// disk:
//
//	svc, err := coordinator.New(cfg, &coordinator.Options{
//	    Searcher: fakeSearcher,
//	    Provider: &embedding.StaticProvider{},
//	})
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianRecall/pkg/validation"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/breaker"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/compress"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/disclosure"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/embedding"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/feedback"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/handlers"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/middleware"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/retrieval"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/routes"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/session"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/storage/badgerdb"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/telemetry"
)

// serviceName identifies this service in traces and middleware.
const serviceName = "aleutian-recall"

const (
	defaultWeaviateURL    = "http://localhost:8080"
	defaultCollection     = "Document"
	defaultEmbeddingModel = "nomic-embed-text"
	defaultExpansionModel = "gpt-4o-mini"

	// estimatorModel selects the BPE used for token estimation. Any
	// cl100k-family model name works; the estimator falls back to
	// cl100k_base for names it does not know.
	estimatorModel = "gpt-4"

	breakerEmbedding = "embedding"
	breakerExpansion = "expansion"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var breakerTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recall_breaker_transitions_total",
		Help: "Circuit breaker state transitions by breaker name and new state.",
	},
	[]string{"breaker", "to"},
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the recall coordinator service.
//
// # Description
//
// Service abstracts the coordinator lifecycle, enabling testing and
// alternative implementations. Run() blocks and should only be called
// once per instance; Shutdown() may be called from another goroutine to
// stop it.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Service interface {
	// Run starts the HTTP server and blocks until the server stops.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or dies outside
	//     of Shutdown. A Shutdown-initiated stop returns nil.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine

	// Shutdown gracefully stops the server and releases all resources:
	// in-flight requests drain within the context deadline, then the
	// telemetry recorder, journal, taxonomy watcher, embedding cache,
	// database, and tracer are closed in that order.
	//
	// # Inputs
	//
	//   - ctx: Bounds how long in-flight requests may take to finish.
	//
	// # Outputs
	//
	//   - error: Non-nil if the HTTP server could not drain in time.
	Shutdown(ctx context.Context) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds coordinator configuration options.
//
// # Description
//
// Config centralizes all configuration for the coordinator service.
// Values can be populated from environment variables via DefaultConfig,
// from config files, or programmatically for testing. Zero values use
// defaults, except where a field documents that empty disables the
// feature.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// WeaviateURL is the Weaviate vector database URL.
	// Default: "http://localhost:8080"
	WeaviateURL string

	// Collections are the Weaviate classes searched for context.
	// Default: ["Document"]
	Collections []string

	// EmbeddingURL is the local embedding sidecar's /embed URL.
	// If empty, the OpenAI-compatible backend is tried next.
	EmbeddingURL string

	// EmbeddingModel names the embedding model, used in cache keys.
	// Default: "nomic-embed-text"
	EmbeddingModel string

	// OpenAIKey authenticates against an OpenAI-compatible API. Used
	// for embeddings when no sidecar is configured and for LLM query
	// expansion. If empty, those backends are unavailable.
	OpenAIKey string

	// OpenAIBaseURL points the OpenAI client at a compatible local
	// server. If empty, the hosted endpoint is used.
	OpenAIBaseURL string

	// ExpansionBackend selects query expansion.
	// Valid values: "template", "llm"
	// Default: "template"
	ExpansionBackend string

	// ExpansionModel is the chat model used when ExpansionBackend is
	// "llm". Default: "gpt-4o-mini"
	ExpansionModel string

	// DataDir is the directory for persistent state (sessions and the
	// telemetry journal). If empty, sessions live in memory and the
	// journal is disabled.
	DataDir string

	// SessionBackend selects session storage.
	// Valid values: "badger", "memory"
	// Default: "badger" when DataDir is set, "memory" otherwise.
	SessionBackend string

	// SessionTTL is how long an idle session survives. Default: 1h
	SessionTTL time.Duration

	// TaxonomyPath is a YAML taxonomy file to serve capabilities from.
	// If empty, the compiled-in taxonomy is used. When set, the file is
	// watched and hot-reloaded on change.
	TaxonomyPath string

	// APIToken guards the /admin route group as a bearer token.
	// If empty, the admin group is open (local-first default).
	APIToken string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// If empty, trace export is disabled.
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// DefaultConfig builds a Config from environment variables.
//
// # Description
//
// Reads the RECALL_* family plus the shared EMBEDDING_*, OPENAI_*, and
// OTEL_EXPORTER_OTLP_ENDPOINT variables, applying documented defaults
// for anything unset. Parse failures log a warning and keep the
// default.
func DefaultConfig() Config {
	dataDir := getEnvString("RECALL_DATA_DIR", "/var/lib/aleutian/recall")

	return Config{
		Port:             getEnvInt("RECALL_PORT", 12310),
		WeaviateURL:      getEnvString("WEAVIATE_URL", defaultWeaviateURL),
		Collections:      splitCollections(getEnvString("RECALL_COLLECTIONS", defaultCollection)),
		EmbeddingURL:     os.Getenv("EMBEDDING_SERVICE_URL"),
		EmbeddingModel:   getEnvString("EMBEDDING_MODEL", defaultEmbeddingModel),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		ExpansionBackend: getEnvString("EXPANSION_BACKEND", "template"),
		ExpansionModel:   getEnvString("EXPANSION_MODEL", defaultExpansionModel),
		DataDir:          dataDir,
		SessionBackend:   getEnvString("RECALL_SESSION_BACKEND", ""),
		SessionTTL:       getEnvDuration("RECALL_SESSION_TTL", session.DefaultTTL),
		TaxonomyPath:     os.Getenv("RECALL_TAXONOMY_PATH"),
		APIToken:         os.Getenv("RECALL_API_TOKEN"),
		OTelEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:          os.Getenv("GIN_MODE"),
	}
}

// =============================================================================
// Options
// =============================================================================

// Options injects alternative implementations of the coordinator's
// external dependencies.
//
// # Description
//
// Production callers pass nil and New builds real clients from Config.
// Tests swap in fakes so the full service runs in-process without
// Weaviate, an embedding backend, or disk. Nil fields keep the
// production implementation.
type Options struct {
	// Searcher replaces the Weaviate-backed vector search.
	Searcher retrieval.Searcher

	// Counter replaces the knowledge-point counter used by capability
	// manifests. Defaults to the Weaviate searcher when Searcher is
	// nil, and to no counting (zero totals) when Searcher is injected
	// without one.
	Counter disclosure.CollectionCounter

	// Provider replaces the embedding backend.
	Provider embedding.Provider

	// Expander replaces query expansion.
	Expander retrieval.Expander

	// Estimator replaces token estimation for compression.
	Estimator compress.Estimator

	// Store replaces session storage.
	Store session.Store

	// Recorder replaces the telemetry recorder.
	Recorder telemetry.Recorder

	// Clock replaces the session manager's time source.
	Clock func() time.Time
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service owns every component of the pipeline and their lifecycles:
// storage, search, embedding cache, breakers, the capability registry,
// the session manager, the feedback evaluator, and the HTTP surface.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; cleanup is guarded by a sync.Once.
type service struct {
	config Config
	opts   Options

	router *gin.Engine
	srv    *http.Server

	db        *badgerdb.DB
	journal   *telemetry.Journal
	recorder  telemetry.Recorder
	store     session.Store
	searcher  retrieval.Searcher
	counter   disclosure.CollectionCounter
	breakers  *breaker.Registry
	cache     *embedding.Cache
	expander  retrieval.Expander
	registry  *disclosure.Registry
	manager   *session.Manager
	evaluator *feedback.Evaluator

	tracerCleanup func(context.Context)
	closeOnce     sync.Once
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a coordinator Service with the given configuration.
//
// # Description
//
// New initializes all coordinator components:
//  1. Applies default configuration for missing values
//  2. Normalizes collection names the way Weaviate stores them and
//     rejects names unsafe for GraphQL interpolation
//  3. Initializes OpenTelemetry tracing (when an endpoint is set)
//  4. Opens persistent storage for sessions and the telemetry journal,
//     falling back to memory-only operation if the data dir is unusable
//  5. Creates the Weaviate search client
//  6. Creates the circuit breaker registry with a transition hook
//  7. Creates the embedding provider and query-vector cache
//  8. Creates the query expansion backend
//  9. Loads the capability taxonomy
//  10. Wires the retrieval, compression, session, and feedback pipeline
//  11. Sets up HTTP routes
//
// If opts is nil, production implementations are used throughout.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Dependency overrides for testing. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run coordinator service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - Weaviate reachability is not verified here; an unreachable
//     instance surfaces through breakers and GET /health instead.
func New(cfg Config, opts *Options) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	if opts != nil {
		s.opts = *opts
	}

	// Normalize collection names; Weaviate capitalizes class names, so
	// "document" and "Document" address the same class.
	for i, raw := range s.config.Collections {
		name, err := validation.SanitizeCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid collections configuration: %w", err)
		}
		s.config.Collections[i] = name
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	// Initialize OpenTelemetry tracer (export disabled without an endpoint)
	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	// Open storage: sessions and the telemetry journal
	s.initStorage()

	// Initialize Weaviate search client
	if err := s.initSearch(); err != nil {
		s.cleanup()
		return nil, err
	}

	// Circuit breakers for every outbound dependency
	s.initBreakers()

	// Embedding provider behind the query-vector cache
	s.initEmbedding()

	// Query expansion
	s.initExpansion()

	// Capability taxonomy
	if err := s.initRegistry(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize capability registry: %w", err)
	}

	// Retrieval, compression, session, and feedback pipeline
	s.initPipeline()

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until the server stops.
//
// # Description
//
// Serves on the configured port. Returns nil when the server was
// stopped through Shutdown, and the listen error otherwise. Resource
// cleanup happens in Shutdown, not here, so in-flight requests never
// race a closing journal or database.
func (s *service) Run() error {
	slog.Info("Starting recall coordinator",
		"port", s.config.Port,
		"collections", s.config.Collections,
		"session_backend", s.config.SessionBackend,
	)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Shutdown gracefully stops the server and releases all resources.
//
// # Description
//
// Stops accepting connections, waits for in-flight requests up to the
// context deadline, then closes components in dependency order. Safe to
// call more than once and safe to call without a prior Run (tests
// exercise the service through Router without listening).
func (s *service) Shutdown(ctx context.Context) error {
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.cleanup()
	return err
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
//
// # Description
//
// Applies defaults for zero-valued fields. DataDir, EmbeddingURL,
// OpenAIKey, TaxonomyPath, APIToken, and OTelEndpoint stay empty when
// unset: for those, empty means the feature is off.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.WeaviateURL == "" {
		cfg.WeaviateURL = defaultWeaviateURL
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = []string{defaultCollection}
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.ExpansionBackend == "" {
		cfg.ExpansionBackend = "template"
	}
	if cfg.ExpansionModel == "" {
		cfg.ExpansionModel = defaultExpansionModel
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.SessionBackend == "" {
		if cfg.DataDir != "" {
			cfg.SessionBackend = "badger"
		} else {
			cfg.SessionBackend = "memory"
		}
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter sending spans to the configured
// collector over gRPC.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStorage opens persistent storage and picks the session store.
//
// # Description
//
// With a data dir configured, opens BadgerDB under it and builds the
// telemetry journal and recorder on top. Any storage failure degrades
// to memory-only operation with a warning rather than refusing to
// start: the service is still useful without persistence.
func (s *service) initStorage() {
	s.recorder = telemetry.NopRecorder{}
	if s.opts.Recorder != nil {
		s.recorder = s.opts.Recorder
	}

	if s.config.DataDir != "" {
		dbCfg := badgerdb.DefaultConfig()
		dbCfg.Path = filepath.Join(s.config.DataDir, "badger")

		db, err := badgerdb.OpenDB(dbCfg)
		if err != nil {
			slog.Warn("Persistent storage unavailable, running memory-only",
				"data_dir", s.config.DataDir,
				"error", err)
		} else {
			s.db = db
			slog.Info("Opened embedded database", "path", dbCfg.Path)

			journal, err := telemetry.NewJournal(db)
			if err != nil {
				slog.Warn("Telemetry journal unavailable", "error", err)
			} else {
				s.journal = journal
				if s.opts.Recorder == nil {
					s.recorder = telemetry.NewRecorder(journal)
				}
			}
		}
	}

	switch {
	case s.opts.Store != nil:
		s.store = s.opts.Store
	case s.config.SessionBackend == "badger" && s.db != nil:
		store, err := session.NewBadgerStore(s.db, s.config.SessionTTL)
		if err != nil {
			slog.Warn("Badger session store unavailable, using memory",
				"error", err)
			s.store = session.NewMemoryStore(s.config.SessionTTL)
		} else {
			s.store = store
		}
	default:
		if s.config.SessionBackend == "badger" {
			slog.Warn("Badger session backend requested but storage is unavailable, using memory")
		}
		s.store = session.NewMemoryStore(s.config.SessionTTL)
	}
}

// initSearch creates the Weaviate client and searcher.
//
// # Description
//
// Builds the search client from WeaviateURL. Construction does not
// dial, so an unreachable Weaviate is not an error here; it shows up
// as breaker failures and a degraded /health instead.
func (s *service) initSearch() error {
	if s.opts.Counter != nil {
		s.counter = s.opts.Counter
	}
	if s.opts.Searcher != nil {
		s.searcher = s.opts.Searcher
		return nil
	}

	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	client, err := retrieval.NewClientFromURL(weaviateURL)
	if err != nil {
		return fmt.Errorf("failed to initialize weaviate client: %w", err)
	}

	searcher := retrieval.NewWeaviateSearcher(client, retrieval.DefaultSearchConfig())
	s.searcher = searcher
	if s.counter == nil {
		s.counter = searcher
	}
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initBreakers creates the breaker registry and its transition hook.
func (s *service) initBreakers() {
	s.breakers = breaker.NewRegistry(breaker.DefaultConfig())
	s.breakers.SetStateChangeHook(func(name string, from, to breaker.State) {
		breakerTransitions.WithLabelValues(name, to.String()).Inc()
		if to == breaker.StateOpen {
			slog.Warn("Circuit breaker opened",
				"breaker", name,
				"from", from.String())
		} else {
			slog.Info("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		}
	})
}

// initEmbedding picks the embedding provider and wraps it in the cache.
//
// # Description
//
// Preference order: the local sidecar, then an OpenAI-compatible
// endpoint, then deterministic static vectors. The static fallback
// keeps the service runnable with no embedding backend at all;
// retrieval quality degrades but nothing breaks.
func (s *service) initEmbedding() {
	provider := s.opts.Provider

	if provider == nil && s.config.EmbeddingURL != "" {
		p, err := embedding.NewHTTPEmbedder(s.config.EmbeddingURL, s.config.EmbeddingModel)
		if err != nil {
			slog.Warn("Embedding sidecar unavailable", "error", err)
		} else {
			provider = p
			slog.Info("Using embedding sidecar",
				"url", s.config.EmbeddingURL,
				"model", s.config.EmbeddingModel)
		}
	}

	if provider == nil && s.config.OpenAIKey != "" {
		model := s.config.EmbeddingModel
		if model == defaultEmbeddingModel {
			// The sidecar default is not an OpenAI model; let the
			// provider pick its own.
			model = ""
		}
		p, err := embedding.NewOpenAIEmbedder(s.config.OpenAIKey, s.config.OpenAIBaseURL, model)
		if err != nil {
			slog.Warn("OpenAI embedding backend unavailable", "error", err)
		} else {
			provider = p
			slog.Info("Using OpenAI-compatible embedding backend", "model", p.Model())
		}
	}

	if provider == nil {
		slog.Warn("No embedding backend configured, using deterministic static vectors")
		provider = &embedding.StaticProvider{}
	}

	s.cache = embedding.NewCache(provider,
		embedding.WithBreaker(s.breakers.Get(breakerEmbedding)))
}

// initExpansion picks the query expansion backend.
func (s *service) initExpansion() {
	if s.opts.Expander != nil {
		s.expander = s.opts.Expander
		return
	}

	template := retrieval.NewTemplateExpander()

	switch s.config.ExpansionBackend {
	case "llm":
		if s.config.OpenAIKey == "" {
			slog.Warn("LLM expansion requested without OPENAI_API_KEY, using template expansion")
			s.expander = template
			return
		}
		clientCfg := openai.DefaultConfig(s.config.OpenAIKey)
		if s.config.OpenAIBaseURL != "" {
			clientCfg.BaseURL = s.config.OpenAIBaseURL
		}
		s.expander = retrieval.NewLLMExpander(
			openai.NewClientWithConfig(clientCfg),
			s.config.ExpansionModel,
			retrieval.WithFallback(template),
			retrieval.WithExpansionBreaker(s.breakers.Get(breakerExpansion)),
		)
		slog.Info("Using LLM query expansion", "model", s.config.ExpansionModel)
	case "template":
		s.expander = template
	default:
		slog.Warn("Unknown expansion backend, defaulting to template",
			"backend", s.config.ExpansionBackend)
		s.expander = template
	}
}

// initRegistry loads the capability taxonomy.
func (s *service) initRegistry() error {
	registry, err := disclosure.NewRegistry(s.config.TaxonomyPath, s.config.Collections, s.counter)
	if err != nil {
		return err
	}
	s.registry = registry

	if s.config.TaxonomyPath != "" {
		slog.Info("Taxonomy loaded", "path", s.config.TaxonomyPath)
	}
	return nil
}

// initPipeline wires retrieval, compression, sessions, and feedback.
func (s *service) initPipeline() {
	retriever := retrieval.NewRetriever(s.expander, s.cache, s.searcher, s.breakers)

	estimator := s.opts.Estimator
	if estimator == nil {
		tk, err := compress.NewTiktokenEstimator(estimatorModel)
		if err != nil {
			slog.Warn("Token encoder unavailable, using byte-length heuristic", "error", err)
			estimator = compress.NewHeuristicEstimator()
		} else {
			estimator = tk
		}
	}
	compressor := compress.NewCompressor(estimator)

	managerOpts := []session.ManagerOption{session.WithRecorder(s.recorder)}
	if s.opts.Clock != nil {
		managerOpts = append(managerOpts, session.WithClock(s.opts.Clock))
	}
	s.manager = session.NewManager(s.store, retriever, compressor, s.registry, managerOpts...)

	s.evaluator = feedback.NewEvaluator(s.manager, s.registry,
		feedback.WithRecorder(s.recorder))
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	h := handlers.NewHandlers(s.manager, s.manager, s.evaluator, s.registry).
		WithBreakers(s.breakers).
		WithEpochCache(s.cache).
		WithRecorder(s.recorder)
	if s.searcher != nil {
		h = h.WithLivenessProbe(s.searcher)
	}

	var adminAuth middleware.AuthProvider = &middleware.NopAuthProvider{}
	if s.config.APIToken != "" {
		adminAuth = middleware.NewStaticTokenProvider(s.config.APIToken)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(s.router, h, adminAuth)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called from Shutdown and from failed construction. The recorder
// closes before the journal so buffered events drain; the database
// closes after everything that writes to it.
func (s *service) cleanup() {
	s.closeOnce.Do(func() {
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				slog.Warn("Telemetry recorder close error", "error", err)
			}
		}
		if s.journal != nil {
			if err := s.journal.Close(); err != nil {
				slog.Warn("Telemetry journal close error", "error", err)
			}
		}
		if s.registry != nil {
			s.registry.Close()
		}
		if s.cache != nil {
			s.cache.Close()
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				slog.Warn("Database close error", "error", err)
			}
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	})
}

// =============================================================================
// Environment Helpers
// =============================================================================

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			slog.Warn("Invalid integer in environment, using default",
				"key", key, "value", value, "default", defaultValue)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a
// default. Accepts anything time.ParseDuration accepts ("90s", "1h").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			slog.Warn("Invalid duration in environment, using default",
				"key", key, "value", value, "default", defaultValue)
			return defaultValue
		}
		return d
	}
	return defaultValue
}

// splitCollections parses a comma-separated collection list, trimming
// whitespace and dropping empty entries.
func splitCollections(raw string) []string {
	parts := strings.Split(raw, ",")
	collections := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			collections = append(collections, trimmed)
		}
	}
	return collections
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
