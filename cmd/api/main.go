package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/finbrain/finbrain/internal/api"
	"github.com/finbrain/finbrain/internal/auth"
	"github.com/finbrain/finbrain/internal/config"
	"github.com/finbrain/finbrain/internal/database"
	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/memory"
	mw "github.com/finbrain/finbrain/internal/middleware"
	inats "github.com/finbrain/finbrain/internal/nats"
	"github.com/finbrain/finbrain/internal/orchestrator"
	"github.com/finbrain/finbrain/internal/ratelimit"
	iredis "github.com/finbrain/finbrain/internal/redis"
	"github.com/finbrain/finbrain/internal/retrieval"
	"github.com/finbrain/finbrain/internal/server"
	"github.com/finbrain/finbrain/internal/workflow"
	"github.com/finbrain/finbrain/migrations"
)

// embeddingCacheTTL bounds how long query embeddings are reused.
const embeddingCacheTTL = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), migrations.FS); err != nil {
		slog.Error("migrating database", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Model capabilities
	limiter := newLimiter(cfg.RateLimit, redisClient)
	queryEmbedder, err := llm.NewGenAIEmbedder(ctx, cfg.LLM.GoogleAPIKey, cfg.LLM.EmbeddingModel, "RETRIEVAL_QUERY", cfg.LLM.EmbeddingDimensions)
	if err != nil {
		slog.Error("creating query embedder", "error", err)
		os.Exit(1)
	}
	docEmbedder, err := llm.NewGenAIEmbedder(ctx, cfg.LLM.GoogleAPIKey, cfg.LLM.EmbeddingModel, "RETRIEVAL_DOCUMENT", cfg.LLM.EmbeddingDimensions)
	if err != nil {
		slog.Error("creating document embedder", "error", err)
		os.Exit(1)
	}
	caps := llm.Capabilities{
		Completer: llm.NewLimitedCompleter(llm.NewOpenAICompleter(llm.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		}), limiter),
		Embedder: llm.NewCachedEmbedder(queryEmbedder, embeddingCacheTTL),
	}

	// Document index
	index := retrieval.NewPostgresIndex(pool, caps.Embedder)
	loader := retrieval.NewLoader(index, docEmbedder, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if _, err := loader.EnsureIndex(ctx, cfg.Retrieval.DocumentsPath); err != nil {
		slog.Error("loading document index", "error", err, "dir", cfg.Retrieval.DocumentsPath)
		os.Exit(1)
	}
	retriever := retrieval.NewRetriever(index, cfg.Retrieval.SimilarityTopK)

	// Session memory
	registry, err := newMemoryRegistry(cfg.Memory, pool, redisClient, caps, docEmbedder)
	if err != nil {
		slog.Error("creating memory registry", "error", err)
		os.Exit(1)
	}
	defer registry.Wait()

	// NATS (optional)
	var natsClient *inats.Client
	var sink workflow.EventSink
	if cfg.NATS.Enabled {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		sink = orchestrator.NewRunEvents(inats.NewPublisher(natsClient.JetStream()))
	}

	// Research workflow
	research := workflow.NewService(
		workflow.NewDeps(caps, retriever),
		func(sessionID string) (workflow.Memory, error) {
			m, err := registry.Get(sessionID)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		workflow.Options{
			Timeout:            cfg.Workflow.Timeout,
			EnableDeepAnalysis: cfg.Workflow.EnableDeepAnalysis,
		},
		sink,
	)

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.RefreshExpiry)
	authSvc := auth.NewService(jwtManager, redisClient)
	authHandler := auth.NewHandler(authSvc)

	// Orchestrator consumes NATS queries in the background
	var wg sync.WaitGroup
	if natsClient != nil {
		orch := orchestrator.NewOrchestrator(
			inats.NewPublisher(natsClient.JetStream()),
			inats.NewConsumerManager(natsClient.JetStream()),
			orchestrator.NewValidator(jwtManager),
			research,
			orchestrator.Options{
				Concurrency: cfg.NATS.Concurrency,
				AckWait:     cfg.Workflow.Timeout + time.Minute,
			},
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := orch.Start(ctx); err != nil {
				slog.Error("orchestrator stopped", "error", err)
			}
		}()
	}

	researchHandler := workflow.NewHandler(research)
	memoryHandler := memory.NewHandler(registry)

	httpLimiter := mw.NewRateLimiter(redisClient, "http", cfg.RateLimit.HTTPPerMinute, int(cfg.RateLimit.HTTPWindowSize.Seconds())).
		WithSession(func(r *http.Request) string {
			return auth.SessionIDFromContext(r.Context())
		})

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimiter:        httpLimiter.Middleware,
	}, api.HandlerSet{
		CreateSession:  authHandler.Create,
		RefreshSession: authHandler.Refresh,
		EndSession:     authHandler.End,

		Research: researchHandler.Research,

		GetMemory:    memoryHandler.Get,
		DeleteMemory: memoryHandler.Delete,

		RateLimitStats: ratelimit.StatsHandler(limiter),

		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server
	srv := server.New(cfg.Server, router, cfg.Workflow.Timeout+15*time.Second)
	err = srv.Start(ctx)

	stop()
	wg.Wait()

	if err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLimiter(cfg config.RateLimitConfig, rdb goredis.Cmdable) *ratelimit.Limiter {
	var window ratelimit.Window = ratelimit.NewMemoryWindow(ratelimit.DefaultWindow)
	if cfg.Backend == "redis" {
		window = ratelimit.NewRedisWindow(rdb, "ratelimit:llm", ratelimit.DefaultWindow)
	}
	slog.Info("model rate limiter configured", "backend", cfg.Backend, "max_per_minute", cfg.MaxRequestsPerMinute)
	return ratelimit.New(window, cfg.MaxRequestsPerMinute)
}

// newMemoryRegistry stores conversation fragments with docEmbedder and
// recalls them with the query embedder of caps.
func newMemoryRegistry(cfg config.MemoryConfig, pool *pgxpool.Pool, rdb goredis.Cmdable, caps llm.Capabilities, docEmbedder llm.Embedder) (*memory.Registry, error) {
	vectors := memory.NewVectorBlock(memory.NewPostgresVectorRepository(pool), docEmbedder, cfg.VectorTopK).
		WithQueryEmbedder(caps.Embedder)

	return memory.NewRegistry(memory.Config{
		TokenLimit:            cfg.TokenLimit,
		ChatHistoryTokenRatio: cfg.ChatHistoryTokenRatio,
		TokenFlushSize:        cfg.TokenFlushSize,
		MaxFacts:              cfg.MaxFacts,
		SessionTTL:            cfg.SessionTTL,
		VectorTopK:            cfg.VectorTopK,
	}, memory.Stores{
		Turns:   memory.NewShortTermStore(rdb),
		Facts:   memory.NewFactBlock(memory.NewPostgresFactRepository(pool), caps.Completer, cfg.MaxFacts),
		Vectors: vectors,
	})
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
