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
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/ragdex/internal/repository/budget"
	chunksrepo "github.com/kailas-cloud/ragdex/internal/repository/chunks"
	convrepo "github.com/kailas-cloud/ragdex/internal/repository/conversation"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/ragdex/internal/repository/index"
	retrievalrepo "github.com/kailas-cloud/ragdex/internal/repository/retrieval"
	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	"github.com/kailas-cloud/ragdex/internal/transport/fetch"
	openaiProv "github.com/kailas-cloud/ragdex/internal/transport/openai"
	assemblyuc "github.com/kailas-cloud/ragdex/internal/usecase/assembly"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
	chunkinguc "github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	indexuc "github.com/kailas-cloud/ragdex/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
	"github.com/kailas-cloud/ragdex/internal/version"
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

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Valkey and Redis speak the same protocol; one rueidis store serves
	// both drivers. The driver name survives in config and logs only.
	var store db.Store
	store, err = dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
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
	metrics.RegisterPipelineMetrics()

	// Single BudgetTracker shared across all embedders and usage service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		).WithKeyPrefix(cfg.Storage.KeyPrefix)
		// Connect persistence store — loads current counters from DB.
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	// Build embedder chain — composition root. The base provider also
	// serves the health probe, so it is created once outside the chain.
	baseEmbedder := openaiProv.NewEmbedder(&openaiProv.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	core := buildEmbedder(baseEmbedder, cfg, store, budgetChecker, logger)

	// Instruction prefix outermost so the cache key includes the instruction.
	// Document and query flavors share one limiter and one cache underneath.
	docEmbedder := core
	if instr := cfg.Embedding.DocumentInstruction; instr != "" {
		docEmbedder = domain.NewInstructionEmbedder(core, instr)
	}
	queryEmbedder := core
	if instr := cfg.Embedding.QueryInstruction; instr != "" {
		queryEmbedder = domain.NewInstructionEmbedder(core, instr)
	}
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	completer := openaiProv.NewCompleter(&openaiProv.CompleterConfig{
		APIKey:      cfg.Completion.APIKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		Provider:    cfg.Completion.Provider,
		Logger:      logger,
	})

	fetcher := fetch.NewExtractor(&fetch.Config{Logger: logger})

	// Create repositories (domain-native, no adapters)
	vecCfg := domain.VectorConfig{
		Model:               cfg.Embedding.Model,
		Dimensions:          cfg.Embedding.Dimensions,
		DistanceMetric:      cfg.Retrieval.Metric,
		Algorithm:           cfg.Retrieval.Algorithm,
		BatchSize:           cfg.Ingest.BatchSize,
		MaxInFlightBatches:  cfg.Ingest.MaxInFlight,
		DocumentInstruction: cfg.Embedding.DocumentInstruction,
		QueryInstruction:    cfg.Embedding.QueryInstruction,
		MaxDocumentSizeKB:   cfg.Embedding.MaxDocumentSizeKB,
	}

	prefix := cfg.Storage.KeyPrefix
	idxRepo := indexrepo.New(store, prefix).WithHNSW(indexrepo.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	chunkRepo := chunksrepo.New(store, prefix)
	searchRepo := retrievalrepo.New(store, prefix)
	convRepo := convrepo.New(store, prefix)

	// Create use case services
	indexSvc := indexuc.New(idxRepo, chunkRepo, vecCfg)
	retrievalSvc := retrievaluc.New(searchRepo, idxRepo, queryEmbedder)
	ingestSvc := ingestuc.New(chunkRepo, chunkRepo, docEmbedder, docEmbedder, logger).
		WithBatchSize(cfg.Ingest.BatchSize).
		WithMaxInFlight(cfg.Ingest.MaxInFlight).
		WithRetry(cfg.Ingest.MaxAttempts, ingestuc.DefaultRetryBase)

	chunker, err := chunkinguc.New(
		chunkinguc.Strategy(cfg.Chunking.Strategy),
		chunkinguc.Params{
			ChunkSize: cfg.Chunking.ChunkSize,
			Overlap:   cfg.Chunking.Overlap,
			MaxChars:  cfg.Chunking.MaxChars,
		},
	)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	convSvc, err := conversationuc.New(
		ctx, convRepo, convRepo, store, logger,
		cfg.Conversation.Window, cfg.Conversation.Persist,
	)
	if err != nil {
		logger.Fatal("Conversation store unavailable", zap.Error(err))
	}

	assembler := assemblyuc.New(cfg.Assembly.Instructions, cfg.Assembly.BudgetChars)
	chatSvc := chatuc.New(
		convSvc, retrievalSvc, assembler, completer, logger,
		cfg.Index.DefaultName, cfg.Retrieval.TopK,
	)

	// Usage service — reads from shared BudgetTracker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader)

	// Health service probes the raw provider, below the decorators.
	healthSvc := healthuc.New(store, baseEmbedder)

	// Create chi server
	server := chiTransport.NewServer(
		chatSvc, convSvc, indexSvc, retrievalSvc, ingestSvc, chunker, fetcher,
		usageSvc, healthSvc, logger,
	).WithDefaults(cfg.Index.DefaultName, cfg.Retrieval.TopK)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

// embedderChain is the composed embedder as wired by buildEmbedder: every
// decorator in the chain supports both single and batch embedding.
type embedderChain interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the shared decorator chain:
// OpenAI -> RateLimited -> Cached -> Instrumented
func buildEmbedder(
	base *openaiProv.Embedder,
	cfg config.Config,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) embedderChain {
	var embedder domain.Embedder = base

	// The throttle sits below the cache; a cache hit never burns a permit.
	if cfg.Embedding.Rate.RPS > 0 {
		embedder = embeddinguc.NewRateLimitedEmbedder(embedder, cfg.Embedding.Rate.RPS, cfg.Embedding.Rate.Burst)
	}

	if cfg.Embedding.Cache.Enabled {
		cached := embcache.New(embedder, store, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger)
		if ttl := cfg.Embedding.Cache.TTLSec; ttl > 0 {
			cached = cached.WithTTL(time.Duration(ttl) * time.Second)
		}
		embedder = cached
	}

	// Instrumented (budget + metrics)
	return embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, budget, logger,
	)
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
