package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/scigraph/scigraph-backend/internal/data/db"
	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/data/repos"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/neo4jdb"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
	"github.com/scigraph/scigraph-backend/internal/services"
)

// Batch extraction worker: drains unprocessed documents from Postgres,
// runs the pipeline, and marks what succeeded.
func main() {
	limit := flag.Int("limit", 100, "maximum documents to process")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "production"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := kgconfig.Default()
	if path := envutil.String("KG_CONFIG_PATH", ""); path != "" {
		cfg, err = kgconfig.Load(path)
		if err != nil {
			log.Error("Could not load graph config", "error", err, "path", path)
			os.Exit(1)
		}
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	defer postgresService.Close()
	thePG := postgresService.DB()

	aliasRepo := repos.NewAliasRepo(thePG, log)
	documentRepo := repos.NewDocumentRepo(thePG, log)
	runRepo := repos.NewExtractionRunRepo(thePG, log)

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	var graphWriter graph.Writer
	if neo4jClient != nil {
		defer neo4jClient.Close(ctx)
		store, err := graph.NewNeo4jStore(neo4jClient, log)
		if err != nil {
			log.Error("Could not init Neo4jStore", "error", err)
			os.Exit(1)
		}
		store.EnsureSchema(ctx)
		graphWriter = store
	} else {
		log.Warn("NEO4J_URI not set; extraction results will not be persisted to the graph")
	}

	llmGuard := resilience.NewGuardFromEnv("openai", "OPENAI", log)
	llmClient, err := openai.NewClient(log)
	if err != nil {
		log.Warn("OpenAI init failed; running without the LLM pass", "error", err)
		llmClient = nil
	}
	var llmRelService *services.LLMRelationService
	if llmClient != nil {
		llmRelService = services.NewLLMRelationService(llmClient, llmGuard, cfg, log)
	}

	normalizerService, err := services.NewNormalizerService(cfg, aliasRepo, postgresService, llmClient, llmGuard, log)
	if err != nil {
		log.Error("Could not init NormalizerService", "error", err)
		os.Exit(1)
	}

	extractionService, err := services.NewExtractionService(services.ExtractionDeps{
		Cooccurrence:  services.NewCooccurrenceService(cfg, log),
		Patterns:      services.NewPatternService(cfg, log),
		Scorer:        services.NewScorerService(cfg, log),
		Contradiction: services.NewContradictionService(cfg, log),
		LLM:           llmRelService,
		Normalizer:    normalizerService,
		Graph:         graphWriter,
		Runs:          runRepo,
		Log:           log,
	})
	if err != nil {
		log.Error("Could not init ExtractionService", "error", err)
		os.Exit(1)
	}

	rows, err := documentRepo.ListUnprocessed(ctx, *limit)
	if err != nil {
		log.Error("Could not list unprocessed documents", "error", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		log.Info("No unprocessed documents")
		return
	}

	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		doc, convErr := repos.ToDocument(row)
		if convErr != nil {
			log.Warn("Skipping malformed document row", "error", convErr, "doc_id", row.ID)
			continue
		}
		docs = append(docs, doc)
	}

	batch, err := extractionService.ExtractBatch(ctx, docs)
	if err != nil {
		log.Error("Batch extraction failed", "error", err)
		os.Exit(1)
	}

	failed := make(map[string]bool, len(batch.Errors))
	for _, be := range batch.Errors {
		failed[be.DocumentID] = true
		log.Warn("Document failed", "doc_id", be.DocumentID, "error", be.Err)
	}
	processed := make([]string, 0, batch.SuccessCount)
	for _, res := range batch.Results {
		if !failed[res.DocumentID] {
			processed = append(processed, res.DocumentID)
		}
	}
	if len(processed) > 0 {
		if err := documentRepo.MarkProcessed(ctx, processed); err != nil {
			log.Error("Could not mark documents processed", "error", err)
			os.Exit(1)
		}
	}

	log.Info("Batch complete",
		"processed", batch.SuccessCount,
		"failed", batch.FailureCount,
		"duration", batch.TotalTime.String(),
	)
}
