package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scigraph/scigraph-backend/internal/data/db"
	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/data/repos"
	httpserver "github.com/scigraph/scigraph-backend/internal/http"
	httpH "github.com/scigraph/scigraph-backend/internal/http/handlers"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/observability"
	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/neo4jdb"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/qdrant"
	"github.com/scigraph/scigraph-backend/internal/platform/redisdb"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
	"github.com/scigraph/scigraph-backend/internal/services"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "scigraph",
		Environment: envutil.String("ENV", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	// Knowledge-graph configuration
	cfg := kgconfig.Default()
	if path := envutil.String("KG_CONFIG_PATH", ""); path != "" {
		cfg, err = kgconfig.Load(path)
		if err != nil {
			log.Error("Could not load graph config", "error", err, "path", path)
			os.Exit(1)
		}
	}

	// Postgres
	log.Info("Setting up Postgres from main...")
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	defer postgresService.Close()
	if err = db.Migrate(postgresService.DB()); err != nil {
		log.Warn("Postgres migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	aliasRepo := repos.NewAliasRepo(thePG, log)
	documentRepo := repos.NewDocumentRepo(thePG, log)
	runRepo := repos.NewExtractionRunRepo(thePG, log)

	// Neo4j
	log.Info("Setting up Neo4j from main...")
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	var graphReader graph.Reader
	var graphWriter graph.Writer
	if neo4jClient != nil {
		defer neo4jClient.Close(ctx)
		store, err := graph.NewNeo4jStore(neo4jClient, log)
		if err != nil {
			log.Error("Could not init Neo4jStore", "error", err)
			os.Exit(1)
		}
		store.EnsureSchema(ctx)
		graphReader = store
		graphWriter = store
	} else {
		log.Warn("NEO4J_URI not set; graph persistence and path search disabled")
	}

	// Redis (shared embedding cache)
	redisClient, err := redisdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed, using in-process embed cache", "error", err)
	}
	var embedCache services.EmbedCache
	if redisClient != nil {
		defer redisClient.Close()
		embedCache = services.NewRedisEmbedCache(redisClient, envutil.Seconds("EMBED_CACHE_TTL", 24*time.Hour), log)
	} else {
		embedCache = services.NewLRUEmbedCache(envutil.Int("EMBED_CACHE_SIZE", 4096))
	}

	// OpenAI
	llmGuard := resilience.NewGuardFromEnv("openai", "OPENAI", log)
	llmClient, err := openai.NewClient(log)
	if err != nil {
		log.Warn("OpenAI init failed; LLM-backed services disabled", "error", err)
		llmClient = nil
	}

	// Qdrant (semantic fact retrieval for reasoning)
	var vectorStore qdrant.VectorStore
	if qdrantCfg, cfgErr := qdrant.ResolveConfigFromEnv(); cfgErr != nil {
		log.Warn("Qdrant disabled", "error", cfgErr)
	} else {
		vectorStore, err = qdrant.NewVectorStore(log, qdrantCfg)
		if err != nil {
			log.Warn("Could not init Qdrant vector store", "error", err)
		} else if err := vectorStore.EnsureCollection(ctx); err != nil {
			log.Warn("Qdrant collection init failed", "error", err)
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	coocService := services.NewCooccurrenceService(cfg, log)
	patternService := services.NewPatternService(cfg, log)
	scorerService := services.NewScorerService(cfg, log)
	contradictionService := services.NewContradictionService(cfg, log)

	var llmRelService *services.LLMRelationService
	var embeddingService *services.EmbeddingService
	if llmClient != nil {
		llmRelService = services.NewLLMRelationService(llmClient, llmGuard, cfg, log)
		embeddingService, err = services.NewEmbeddingService(llmClient, llmGuard, embedCache, log)
		if err != nil {
			log.Error("Could not init EmbeddingService", "error", err)
			os.Exit(1)
		}
	}

	normalizerService, err := services.NewNormalizerService(cfg, aliasRepo, postgresService, llmClient, llmGuard, log)
	if err != nil {
		log.Error("Could not init NormalizerService", "error", err)
		os.Exit(1)
	}

	pathCache := services.NewPathCache(
		envutil.Int("PATH_CACHE_SIZE", 512),
		envutil.Seconds("PATH_CACHE_TTL", 5*time.Minute),
	)

	var pathfinderService *services.PathfinderService
	var explainerService *services.PathExplainerService
	var nlqueryService *services.NLQueryService
	var reasonerService *services.ReasonerService
	var consistencyService *services.ConsistencyService
	if graphReader != nil {
		pathfinderService, err = services.NewPathfinderService(graphReader, pathCache, log)
		if err != nil {
			log.Error("Could not init PathfinderService", "error", err)
			os.Exit(1)
		}
		explainerService = services.NewPathExplainerService(llmClient, llmGuard, log)
		consistencyService, err = services.NewConsistencyService(cfg, graphReader, pathfinderService, llmClient, llmGuard, log)
		if err != nil {
			log.Error("Could not init ConsistencyService", "error", err)
			os.Exit(1)
		}
		if llmClient != nil {
			nlqueryService, err = services.NewNLQueryService(llmClient, llmGuard, graphReader, log)
			if err != nil {
				log.Error("Could not init NLQueryService", "error", err)
				os.Exit(1)
			}
			reasonerService, err = services.NewReasonerService(graphReader, llmClient, llmGuard, embeddingService, vectorStore, log)
			if err != nil {
				log.Error("Could not init ReasonerService", "error", err)
				os.Exit(1)
			}
		}
	}

	extractionService, err := services.NewExtractionService(services.ExtractionDeps{
		Cooccurrence:  coocService,
		Patterns:      patternService,
		Scorer:        scorerService,
		Contradiction: contradictionService,
		LLM:           llmRelService,
		Normalizer:    normalizerService,
		Graph:         graphWriter,
		Runs:          runRepo,
		PathCache:     pathCache,
		Embedder:      embeddingService,
		Vectors:       vectorStore,
		Log:           log,
	})
	if err != nil {
		log.Error("Could not init ExtractionService", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	routerCfg := httpserver.RouterConfig{
		Logger:            log,
		ExtractionHandler: httpH.NewExtractionHandler(log, extractionService, documentRepo, runRepo),
		NormalizeHandler:  httpH.NewNormalizeHandler(log, normalizerService),
		HealthHandler:     httpH.NewHealthHandler(),
	}
	if pathfinderService != nil {
		routerCfg.PathHandler = httpH.NewPathHandler(log, pathfinderService, explainerService)
	}
	if nlqueryService != nil {
		routerCfg.QueryHandler = httpH.NewQueryHandler(log, nlqueryService)
	}
	if reasonerService != nil {
		routerCfg.ReasonHandler = httpH.NewReasonHandler(log, reasonerService)
	}
	if consistencyService != nil {
		routerCfg.ValidateHandler = httpH.NewValidateHandler(log, consistencyService)
	}

	// Router
	log.Info("Setting up router from main...")
	server := httpserver.NewServer(routerCfg)

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := server.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
