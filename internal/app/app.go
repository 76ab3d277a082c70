// Package app wires the whole backend together: stores, clients, pipeline,
// retrieval and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/analytics"
	"github.com/guptaanant682/memorybank-backend/internal/answercache"
	"github.com/guptaanant682/memorybank-backend/internal/assembler"
	"github.com/guptaanant682/memorybank-backend/internal/data/db"
	"github.com/guptaanant682/memorybank-backend/internal/data/graph"
	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/extract"
	"github.com/guptaanant682/memorybank-backend/internal/handlers"
	"github.com/guptaanant682/memorybank-backend/internal/ingest"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/media"
	"github.com/guptaanant682/memorybank-backend/internal/middleware"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/platform/neo4jdb"
	"github.com/guptaanant682/memorybank-backend/internal/platform/openai"
	"github.com/guptaanant682/memorybank-backend/internal/retrieval"
	"github.com/guptaanant682/memorybank-backend/internal/scheduler"
	"github.com/guptaanant682/memorybank-backend/internal/server"
	"github.com/guptaanant682/memorybank-backend/internal/services"
	"github.com/guptaanant682/memorybank-backend/internal/vector"
)

type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Router *gin.Engine

	Graph     kg.Graph
	Scheduler *scheduler.Scheduler

	neo4j  *neo4jdb.Client
	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	// Repos
	docRepo := repos.NewDocumentRepo(theDB, log)
	chunkRepo := repos.NewChunkRepo(theDB, log)
	conceptRepo := repos.NewConceptRepo(theDB, log)
	relationshipRepo := repos.NewRelationshipRepo(theDB, log)
	sink := repos.NewRelationalSink(log, conceptRepo, relationshipRepo)

	// Model client: embedding, extraction and generation share it.
	aiClient, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init model client: %w", err)
	}

	// Extractor: model-backed by default, heuristic when configured or as
	// an offline fallback.
	var extractor extract.Extractor
	if envutil.Str("EXTRACTOR_MODE", "openai") == "heuristic" {
		extractor = extract.NewHeuristicExtractor(log)
	} else {
		extractor = extract.NewOpenAIExtractor(log, aiClient)
	}

	// Knowledge graph: in-process authoritative graph plus optional neo4j
	// mirror for graph-native queries.
	memGraph := kg.NewMemoryGraph(log)
	sinks := []kg.Sink{sink}
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("neo4j init failed, continuing without graph mirror", "error", err)
	}
	var knowledgeStore *graph.KnowledgeStore
	if neoClient != nil {
		knowledgeStore = graph.NewKnowledgeStore(neoClient, log)
		knowledgeStore.EnsureSchema(context.Background())
		sinks = append(sinks, knowledgeStore)
	}
	builder := kg.NewBuilder(log, memGraph, sinks...)

	// Vector index: in-memory or qdrant per VECTOR_PROVIDER.
	index, err := vector.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	pipeline := ingest.NewPipeline(
		log, ingest.ConfigFromEnv(),
		docRepo, chunkRepo, sink, builder, index, aiClient, extractor,
	)

	// Media converters are optional; uploads of their media types fail
	// with a clear error when unconfigured.
	var transcriber media.Transcriber
	if t, err := media.NewSpeechTranscriber(log); err != nil {
		log.Warn("speech transcriber unavailable", "error", err)
	} else {
		transcriber = t
	}
	var captioner media.Captioner
	if cpt, err := media.NewVisionCaptioner(log); err != nil {
		log.Warn("vision captioner unavailable", "error", err)
	} else {
		captioner = cpt
	}

	cache, err := answercache.NewFromEnv(log)
	if err != nil {
		log.Warn("answer cache init failed, continuing without cache", "error", err)
		cache = nil
	}

	engine := retrieval.NewEngine(
		log, retrieval.ConfigFromEnv(),
		aiClient, index, memGraph, chunkRepo, extractor,
	)
	asm := assembler.NewAssembler(log, aiClient, engine, cache)

	// Services
	ingestionService := services.NewIngestionService(log, pipeline, docRepo, transcriber, captioner, cache)
	queryService := services.NewQueryService(log, engine, asm)
	graphService := services.NewGraphService(log, memGraph, knowledgeStore)
	analyticsService := services.NewAnalyticsService(log,
		analytics.NewService(log, docRepo, conceptRepo, memGraph))

	sched := scheduler.NewScheduler(log, scheduler.ConfigFromEnv(), docRepo, pipeline)

	router := server.NewRouter(server.RouterConfig{
		RequestID:        middleware.NewRequestIDMiddleware(log),
		DocumentHandler:  handlers.NewDocumentHandler(log, ingestionService),
		QueryHandler:     handlers.NewQueryHandler(log, queryService),
		GraphHandler:     handlers.NewGraphHandler(log, graphService),
		AnalyticsHandler: handlers.NewAnalyticsHandler(log, analyticsService),
	})

	return &App{
		Log:       log,
		DB:        theDB,
		Router:    router,
		Graph:     memGraph,
		Scheduler: sched,
		neo4j:     neoClient,
	}, nil
}

// Start launches background work (the sync scheduler).
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Scheduler.Start(ctx)
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.neo4j != nil {
		_ = a.neo4j.Close(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
