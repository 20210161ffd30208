package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/tejasgodse24/chat-with-pdf/internal/config"
	"github.com/tejasgodse24/chat-with-pdf/internal/db"
	"github.com/tejasgodse24/chat-with-pdf/internal/handlers"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
	"github.com/tejasgodse24/chat-with-pdf/internal/routes"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
	"github.com/tejasgodse24/chat-with-pdf/internal/workers"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Server owns the HTTP listener, the background workers and the
// connections they share
type Server struct {
	httpServer *http.Server
	pool       *workers.WorkerPool
	ingestion  *services.IngestionService
	redis      *db.RedisClient
	chroma     *db.ChromaDBClient
	vectors    *repositories.ChromaVectorRepository
	logger     logger.Logger
}

// New wires configuration into clients, repositories, services and
// handlers. Nothing is started until Run.
func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	redisClient := db.NewRedisClient(db.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	chromaClient := db.NewChromaDBClient(db.ChromaDBConfig{
		Host:     cfg.Chroma.Host,
		Port:     cfg.Chroma.Port,
		Tenant:   cfg.Chroma.Tenant,
		Database: cfg.Chroma.Database,
		Timeout:  cfg.Chroma.Timeout,
	})

	blobs, err := services.NewFileBlobStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	chunker, err := services.NewChunker(services.ChunkerConfig{
		WindowTokens:    cfg.Chunking.WindowTokens,
		OverlapFraction: cfg.Chunking.OverlapFraction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	// Repositories
	docRepo := repositories.NewRedisDocumentRepository(redisClient.GetClient())
	jobRepo := repositories.NewRedisJobRepository(redisClient.GetClient())
	convRepo := repositories.NewRedisConversationRepository(redisClient.GetClient())
	vectorRepo := repositories.NewChromaVectorRepository(chromaClient, cfg.Chroma.Collection)

	// External services
	embedder := services.NewOpenAIEmbeddingClient(services.EmbeddingConfig{
		BaseURL:     cfg.OpenAI.BaseURL,
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.EmbeddingModel,
		Dimensions:  cfg.OpenAI.EmbeddingDimensions,
		BatchSize:   cfg.Chunking.EmbedBatchSize,
		Concurrency: cfg.Chunking.EmbedConcurrency,
		Timeout:     cfg.OpenAI.Timeout,
	})
	llm := services.NewLLMService(services.LLMConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.ChatModel,
		Timeout: cfg.OpenAI.Timeout,
	})
	extractor := services.NewExtractorClient(cfg.Extractor.BaseURL, cfg.Extractor.Timeout)

	// Domain services
	ingestion := services.NewIngestionService(services.IngestionDeps{
		Documents: docRepo,
		Jobs:      jobRepo,
		Vectors:   vectorRepo,
		Blobs:     blobs,
		Extractor: extractor,
		Chunker:   chunker,
		Embedder:  embedder,
	}, cfg.Ingestion.Timeout, log)
	searchService := services.NewSearchService(docRepo, vectorRepo, embedder,
		cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK, log)
	assembler := services.NewContextAssembler(blobs, services.AssemblerConfig{
		MaxMessages:      cfg.Context.MaxMessages,
		SoftLimitBytes:   cfg.Context.InlineSoftLimitBytes,
		HardLimitBytes:   cfg.Context.InlineHardLimitBytes,
		FetchConcurrency: cfg.Context.FetchConcurrency,
	}, log)
	mediator := services.NewToolMediator(llm, searchService,
		cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK, log)
	chatService := services.NewChatService(convRepo, docRepo, services.NewModeClassifier(docRepo),
		assembler, mediator, cfg.Server.RequestTimeout, log)
	documentService := services.NewDocumentService(blobs, docRepo, ingestion, services.MaxUploadBytes, log)

	// Background ingestion
	workerConfig := workers.DefaultWorkerConfig("ingestion-worker")
	workerConfig.Concurrency = cfg.Ingestion.Workers
	workerConfig.PollInterval = cfg.Ingestion.PollInterval
	pool := workers.NewWorkerPool()
	err = pool.AddWorker(workers.NewIngestionWorker(workers.IngestionWorkerConfig{
		WorkerConfig: workerConfig,
		JobRepo:      jobRepo,
		Ingester:     ingestion,
		Logger:       log,
	}))
	if err != nil {
		return nil, err
	}

	health := handlers.NewHealthHandler(pool, log)
	health.AddCheck("redis", redisClient.Ping)
	health.AddCheck("chroma", chromaClient.Heartbeat)
	health.AddCheck("extractor", extractor.HealthCheck)

	router := mux.NewRouter()
	routes.RegisterRoutes(router, &routes.Handlers{
		Health:   health,
		Document: handlers.NewDocumentHandler(documentService, services.MaxUploadBytes, log),
		Chat:     handlers.NewChatHandler(chatService, log),
		Search:   handlers.NewSearchHandler(searchService, log),
	})

	// Add Swagger endpoints
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           corsMiddleware(router),
			ReadHeaderTimeout: 10 * time.Second,
		},
		pool:      pool,
		ingestion: ingestion,
		redis:     redisClient,
		chroma:    chromaClient,
		vectors:   vectorRepo,
		logger:    log,
	}, nil
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run checks the stores, recovers interrupted ingestion, starts the workers
// and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.prepare(ctx); err != nil {
		return err
	}

	if err := s.pool.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down")
	case serveErr = <-errCh:
		s.logger.Error("Server stopped: %v", serveErr)
	}

	return errors.Join(serveErr, s.shutdown())
}

func (s *Server) prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := s.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis at %s unreachable: %w", s.redis.Addr(), err)
	}
	s.logger.Info("Redis connected")

	if err := s.chroma.Heartbeat(ctx); err != nil {
		return fmt.Errorf("chroma unreachable: %w", err)
	}
	if err := s.vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to prepare vector collection: %w", err)
	}
	s.logger.Info("Chroma connected")

	if _, err := s.ingestion.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted ingestion: %w", err)
	}
	return nil
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.pool.StopAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker shutdown: %w", err))
	}
	s.chroma.Close()
	if err := s.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	return errors.Join(errs...)
}
