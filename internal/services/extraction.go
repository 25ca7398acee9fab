package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/data/repos"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/observability"
	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/qdrant"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

// llmPairBudget caps how many co-occurring pairs per document go to the
// chat endpoint.
const llmPairBudget = 8

// ExtractionDeps wires the orchestrator. Nil optional fields disable the
// corresponding stage; required fields are checked at construction.
type ExtractionDeps struct {
	Cooccurrence  *CooccurrenceService  // required
	Patterns      *PatternService       // required
	Scorer        *ScorerService        // required
	Contradiction *ContradictionService // required
	LLM           *LLMRelationService   // optional
	Normalizer    *NormalizerService    // optional, inline surface cleanup
	Graph         graph.Writer          // optional, persists results
	Runs          repos.ExtractionRunRepo
	PathCache     *PathCache         // optional, invalidated on graph writes
	Embedder      *EmbeddingService  // optional, with Vectors indexes entity names
	Vectors       qdrant.VectorStore // optional
	Log           *logger.Logger
}

// ExtractionService runs the per-document pipeline and concurrent batches.
type ExtractionService struct {
	deps           ExtractionDeps
	maxConcurrency int
	log            *logger.Logger

	mu       sync.Mutex
	stats    domain.PipelineStats
	confSum  float64
	confSeen int
}

func NewExtractionService(deps ExtractionDeps) (*ExtractionService, error) {
	switch {
	case deps.Cooccurrence == nil:
		return nil, fmt.Errorf("extraction: cooccurrence service required")
	case deps.Patterns == nil:
		return nil, fmt.Errorf("extraction: pattern service required")
	case deps.Scorer == nil:
		return nil, fmt.Errorf("extraction: scorer required")
	case deps.Contradiction == nil:
		return nil, fmt.Errorf("extraction: contradiction service required")
	case deps.Log == nil:
		return nil, fmt.Errorf("extraction: logger required")
	}
	return &ExtractionService{
		deps:           deps,
		maxConcurrency: envutil.Int("EXTRACT_MAX_CONCURRENCY", 10),
		log:            deps.Log.With("service", "ExtractionService"),
	}, nil
}

// Extract runs the full pipeline on one document. Cancellation mid-pipeline
// returns what was computed so far, marked partial.
func (s *ExtractionService) Extract(ctx context.Context, doc domain.Document) (*domain.ExtractionResult, error) {
	started := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "extraction.document")
	span.SetAttributes(attribute.String("document.id", doc.ID))
	defer span.End()

	entities := s.resolveEntities(ctx, doc)

	coocRels, patternRels, llmRels, passErr := s.runPasses(ctx, doc, entities)
	if passErr != nil && ctx.Err() == nil {
		s.recordAttempt(nil, true)
		return nil, passErr
	}

	// Merge order is fixed: co-occurrence, then pattern, then LLM.
	merged := mergeProposals(coocRels, patternRels, llmRels)
	merged = s.deps.Scorer.ScoreAll(merged)
	contradictions := s.deps.Contradiction.Detect(merged)
	merged = s.deps.Contradiction.Apply(merged, contradictions)

	result := &domain.ExtractionResult{
		DocumentID:     doc.ID,
		Relations:      merged,
		Entities:       materializeEntities(entities),
		Partial:        ctx.Err() != nil,
		ProcessingTime: time.Since(started),
		Timestamp:      time.Now().UTC(),
	}
	s.recordAttempt(result, false)

	if !result.Partial {
		s.persist(ctx, result)
	}
	return result, nil
}

// ExtractBatch partitions the input into chunks of maxConcurrency; chunks
// run sequentially, documents inside a chunk in parallel. A failing document
// is recorded and does not abort the batch. Result order is input order.
func (s *ExtractionService) ExtractBatch(ctx context.Context, docs []domain.Document) (*domain.BatchResult, error) {
	started := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "extraction.batch")
	span.SetAttributes(attribute.Int("batch.size", len(docs)))
	defer span.End()

	results := make([]*domain.ExtractionResult, len(docs))
	failures := make([]error, len(docs))

	for start := 0; start < len(docs); start += s.maxConcurrency {
		end := start + s.maxConcurrency
		if end > len(docs) {
			end = len(docs)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrency)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				res, err := s.Extract(gctx, docs[i])
				if err != nil {
					failures[i] = err
					return nil
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
	}

	batch := &domain.BatchResult{TotalTime: time.Since(started)}
	for i := range docs {
		switch {
		case failures[i] != nil:
			batch.Errors = append(batch.Errors, domain.BatchError{
				DocumentID: docs[i].ID,
				Err:        failures[i].Error(),
			})
			batch.FailureCount++
		case results[i] != nil:
			batch.Results = append(batch.Results, *results[i])
			batch.SuccessCount++
		}
	}

	if s.deps.Runs != nil {
		if _, err := s.deps.Runs.Record(ctx, *batch, s.averageConfidence()); err != nil {
			s.log.Warn("extraction run not recorded", "error", err)
		}
	}
	return batch, nil
}

// Stats returns a snapshot of the pipeline counters.
func (s *ExtractionService) Stats() domain.PipelineStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	if s.confSeen > 0 {
		out.AverageConfidence = s.confSum / float64(s.confSeen)
	}
	return out
}

func (s *ExtractionService) resolveEntities(ctx context.Context, doc domain.Document) []domain.DocumentEntity {
	entities := s.deps.Cooccurrence.Entities(doc)
	if s.deps.Normalizer == nil {
		return entities
	}
	for i := range entities {
		res, err := s.deps.Normalizer.Normalize(ctx, entities[i].Name, NormalizeOptions{
			EntityType: entities[i].Type,
			SkipLLM:    true,
		})
		if err != nil {
			s.log.Warn("inline normalization failed", "surface", entities[i].Name, "error", err)
			continue
		}
		if res.WasNormalized {
			entities[i].ID = res.Normalized
		}
	}
	return entities
}

// runPasses executes the three evidence passes concurrently. The LLM pass
// consults the co-occurrence pairs, so it waits for that pass first.
func (s *ExtractionService) runPasses(ctx context.Context, doc domain.Document, entities []domain.DocumentEntity) (cooc, pattern, llm []domain.Relation, err error) {
	var pairs []domain.CooccurrencePair

	g, gctx := errgroup.WithContext(ctx)
	pairsReady := make(chan struct{})

	g.Go(func() error {
		var analyzeErr error
		pairs, analyzeErr = s.deps.Cooccurrence.Analyze(gctx, doc, entities)
		close(pairsReady)
		if analyzeErr != nil {
			return fmt.Errorf("cooccurrence pass: %w", analyzeErr)
		}
		cooc = s.deps.Cooccurrence.Relations(doc, entities, pairs)
		return nil
	})
	g.Go(func() error {
		var matchErr error
		pattern, matchErr = s.deps.Patterns.Match(gctx, doc, entities)
		if matchErr != nil {
			return fmt.Errorf("pattern pass: %w", matchErr)
		}
		return nil
	})
	g.Go(func() error {
		if !s.deps.LLM.Enabled() {
			return nil
		}
		select {
		case <-pairsReady:
		case <-gctx.Done():
			return gctx.Err()
		}
		var llmErr error
		llm, llmErr = s.llmPass(gctx, doc, entities, pairs)
		return llmErr
	})

	err = g.Wait()
	return cooc, pattern, llm, err
}

// llmPass asks the endpoint about the strongest co-occurring pairs. Endpoint
// failure degrades the pass to what it collected; the pipeline proceeds on
// the other evidence. Cancellation still aborts the document.
func (s *ExtractionService) llmPass(ctx context.Context, doc domain.Document, entities []domain.DocumentEntity, pairs []domain.CooccurrencePair) ([]domain.Relation, error) {
	byID := map[string]domain.DocumentEntity{}
	for _, e := range entities {
		byID[e.ID] = e
	}

	ranked := make([]domain.CooccurrencePair, len(pairs))
	copy(ranked, pairs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return RawConfidence(ranked[i]) > RawConfidence(ranked[j])
	})
	if len(ranked) > llmPairBudget {
		ranked = ranked[:llmPairBudget]
	}

	var out []domain.Relation
	for _, pair := range ranked {
		a, okA := byID[pair.SourceID]
		b, okB := byID[pair.TargetID]
		if !okA || !okB {
			continue
		}
		rel, err := s.deps.LLM.Infer(ctx, doc.ID, doc.Content, a, b)
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrRateLimited) {
				s.log.Warn("llm pass degraded", "doc_id", doc.ID, "error", err)
				return out, nil
			}
			return nil, fmt.Errorf("llm pass: %w", err)
		}
		if rel != nil {
			out = append(out, *rel)
		}
	}
	return out, nil
}

// mergeProposals folds the passes by (source, target, type): evidence
// concatenates in pass order, confidence is the max raw, and the method
// turns hybrid when evidence spans more than one source.
func mergeProposals(passes ...[]domain.Relation) []domain.Relation {
	merged := map[domain.RelationKey]*domain.Relation{}
	var order []domain.RelationKey

	for _, pass := range passes {
		for _, rel := range pass {
			key := rel.Key()
			existing, ok := merged[key]
			if !ok {
				clone := rel
				clone.Evidence = append([]domain.Evidence{}, rel.Evidence...)
				merged[key] = &clone
				order = append(order, key)
				continue
			}
			existing.Evidence = append(existing.Evidence, rel.Evidence...)
			if rel.Confidence > existing.Confidence {
				existing.Confidence = rel.Confidence
			}
			if rel.Method != existing.Method {
				existing.Method = domain.MethodHybrid
			}
		}
	}

	out := make([]domain.Relation, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}

func materializeEntities(docEntities []domain.DocumentEntity) []domain.Entity {
	seen := map[string]bool{}
	out := make([]domain.Entity, 0, len(docEntities))
	for _, e := range docEntities {
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		entityType := e.Type
		if !domain.ValidEntityType(entityType) {
			entityType = domain.EntityConcept
		}
		out = append(out, domain.Entity{ID: e.ID, Name: e.Name, Type: entityType})
	}
	return out
}

// persist upserts non-rejected relations and their entities; failures are
// logged, not fatal, since the extraction result already stands.
func (s *ExtractionService) persist(ctx context.Context, result *domain.ExtractionResult) {
	if s.deps.Graph == nil {
		return
	}
	keep := make([]domain.Relation, 0, len(result.Relations))
	for _, rel := range result.Relations {
		if rel.ReviewStatus != domain.StatusRejected {
			keep = append(keep, rel)
		}
	}
	if len(result.Entities) > 0 {
		if err := s.deps.Graph.UpsertEntities(ctx, result.Entities); err != nil {
			s.log.Error("entity persistence failed", "doc_id", result.DocumentID, "error", err)
			return
		}
	}
	if len(keep) > 0 {
		if err := s.deps.Graph.UpsertRelations(ctx, keep); err != nil {
			s.log.Error("relation persistence failed", "doc_id", result.DocumentID, "error", err)
			return
		}
	}
	if s.deps.PathCache != nil {
		for _, e := range result.Entities {
			s.deps.PathCache.InvalidateEntity(e.ID)
		}
	}
	s.indexEntities(ctx, result.Entities)
}

// indexEntities embeds entity names into the vector store so question-driven
// reasoning can seed from them. Best-effort, same as graph persistence.
func (s *ExtractionService) indexEntities(ctx context.Context, entities []domain.Entity) {
	if s.deps.Embedder == nil || s.deps.Vectors == nil || len(entities) == 0 {
		return
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	vecs, err := s.deps.Embedder.EmbedMany(ctx, names)
	if err != nil {
		s.log.Warn("entity embedding failed", "count", len(names), "error", err)
		return
	}
	points := make([]qdrant.Vector, 0, len(entities))
	for i, e := range entities {
		points = append(points, qdrant.Vector{
			ID:     e.ID,
			Values: vecs[i],
			Payload: map[string]any{
				"entity_id":   e.ID,
				"entity_name": e.Name,
				"entity_type": string(e.Type),
			},
		})
	}
	if err := s.deps.Vectors.Upsert(ctx, points); err != nil {
		s.log.Warn("entity vector upsert failed", "count", len(points), "error", err)
	}
}

// recordAttempt updates the counters; failed and partial attempts count.
func (s *ExtractionService) recordAttempt(result *domain.ExtractionResult, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalProcessed++
	if failed {
		s.stats.FailedDocuments++
		return
	}
	for _, rel := range result.Relations {
		s.stats.TotalRelations++
		s.confSum += rel.Confidence
		s.confSeen++
		switch rel.ReviewStatus {
		case domain.StatusApproved:
			s.stats.ApprovedCount++
		case domain.StatusPending:
			s.stats.PendingCount++
		case domain.StatusRejected:
			s.stats.RejectedCount++
		}
	}
}

func (s *ExtractionService) averageConfidence() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confSeen == 0 {
		return 0
	}
	return s.confSum / float64(s.confSeen)
}
