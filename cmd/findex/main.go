package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/config"
	dbRedis "github.com/kailas-cloud/findex/internal/db/redis"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/edgar"
	"github.com/kailas-cloud/findex/internal/filing/chunker"
	"github.com/kailas-cloud/findex/internal/filing/parser"
	"github.com/kailas-cloud/findex/internal/filing/token"
	"github.com/kailas-cloud/findex/internal/filing/topics"
	logpkg "github.com/kailas-cloud/findex/internal/logger"
	"github.com/kailas-cloud/findex/internal/metrics"
	"github.com/kailas-cloud/findex/internal/repository/embcache"
	passagerepo "github.com/kailas-cloud/findex/internal/repository/passage"
	staterepo "github.com/kailas-cloud/findex/internal/repository/state"
	chiTransport "github.com/kailas-cloud/findex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/findex/internal/transport/openai"
	chatuc "github.com/kailas-cloud/findex/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/findex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/findex/internal/usecase/health"
	indexeruc "github.com/kailas-cloud/findex/internal/usecase/indexer"
	searchuc "github.com/kailas-cloud/findex/internal/usecase/search"
	"github.com/kailas-cloud/findex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting findex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIndexingMetrics()

	if err := passagerepo.EnsureIndex(ctx, store,
		cfg.OpenAI.EmbeddingDimensions, cfg.Indexing.HNSWM, cfg.Indexing.HNSWEF,
	); err != nil {
		logger.Fatal("Failed to ensure passage index", zap.Error(err))
	}

	codec, err := token.NewCL100K()
	if err != nil {
		logger.Fatal("Failed to load tokenizer", zap.Error(err))
	}

	chunk, err := chunker.New(codec, cfg.Indexing.ChunkMaxTokens, cfg.Indexing.ChunkOverlap)
	if err != nil {
		logger.Fatal("Failed to create chunker", zap.Error(err))
	}

	edgarClient := edgar.NewClient(edgar.Config{
		UserAgent:  cfg.Edgar.UserAgent,
		RatePerSec: cfg.Edgar.RatePerSec,
		Burst:      cfg.Edgar.Burst,
		Timeout:    time.Duration(cfg.Edgar.TimeoutSec) * time.Second,
	}, store)

	// Embedder chain: OpenAI -> Cached -> Instrumented
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.EmbeddingModel,
		Dimensions: cfg.OpenAI.EmbeddingDimensions,
	})
	embedder := buildEmbedder(baseEmbedder, cfg.OpenAI.EmbeddingModel, store, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.OpenAI.EmbeddingModel),
		zap.Int("dimensions", cfg.OpenAI.EmbeddingDimensions),
	)

	tagger := topics.New(newOpenAIClient(cfg.OpenAI), cfg.OpenAI.TopicModel, codec)

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		Model:     cfg.OpenAI.ChatModel,
		MaxTokens: cfg.OpenAI.MaxCompletionTokens,
	})

	// Repositories
	passages := passagerepo.New(store)
	states := staterepo.New(store)

	// Use case services
	indexSvc := indexeruc.New(indexeruc.Deps{
		Edgar:    edgarClient,
		Parser:   parser.New(),
		Chunker:  chunk,
		Topics:   tagger,
		Embedder: embedder,
		Passages: passages,
		States:   states,
	}, filingLimits(cfg.Indexing.FilingLimits), logger)
	searchSvc := searchuc.New(embedder, passages, states,
		cfg.Search.TopK, cfg.Search.TokenBudget, logger)
	chatSvc := chatuc.New(completer, searchSvc, indexSvc,
		cfg.Chat.MaxToolIterations, logger)
	// The base provider carries the health probe; decorators do not.
	healthSvc := healthuc.New(store, baseEmbedder)

	server := chiTransport.NewServer(indexSvc, searchSvc, chatSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(
	base *openaiTransport.Embedder, model string, store *dbRedis.Store, logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	cached := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	return embeddinguc.NewInstrumentedEmbedder(cached, "openai", model, logger)
}

func newOpenAIClient(cfg config.OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// filingLimits converts the config map keyed by raw form strings, dropping
// unknown form types.
func filingLimits(raw map[string]int) map[filing.Type]int {
	limits := make(map[filing.Type]int, len(raw))
	for ft, n := range raw {
		if t, ok := filing.ParseType(ft); ok {
			limits[t] = n
		}
	}
	return limits
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
