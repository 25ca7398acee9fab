package services

import (
	"context"
	"errors"
	"testing"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

func newTestExtraction(t *testing.T, llm *LLMRelationService, store *memGraph) *ExtractionService {
	t.Helper()
	cfg := testConfig()
	deps := ExtractionDeps{
		Cooccurrence:  NewCooccurrenceService(cfg, testLogger()),
		Patterns:      NewPatternService(cfg, testLogger()),
		Scorer:        NewScorerService(cfg, testLogger()),
		Contradiction: NewContradictionService(cfg, testLogger()),
		LLM:           llm,
		Log:           testLogger(),
	}
	if store != nil {
		deps.Graph = store
	}
	svc, err := NewExtractionService(deps)
	if err != nil {
		t.Fatalf("new extraction service: %v", err)
	}
	return svc
}

func TestExtractPatternDocument(t *testing.T) {
	svc := newTestExtraction(t, nil, nil)
	doc := domain.Document{
		ID:      "d1",
		Content: "GPT-4 was developed by OpenAI.",
		Entities: []domain.DocumentEntity{
			{ID: "gpt-4", Name: "GPT-4", Type: domain.EntityAIModel},
			{ID: "openai", Name: "OpenAI", Type: domain.EntityOrganization},
		},
	}

	result, err := svc.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	var hit *domain.Relation
	for i := range result.Relations {
		r := &result.Relations[i]
		if r.Source == "gpt-4" && r.Target == "openai" && r.Type == domain.RelDevelopedBy {
			hit = r
		}
	}
	if hit == nil {
		t.Fatalf("expected gpt-4 -[DEVELOPED_BY]-> openai in %v", result.Relations)
	}
	if hit.Method != domain.MethodPattern && hit.Method != domain.MethodHybrid {
		t.Fatalf("method: want pattern or hybrid got=%s", hit.Method)
	}
	if hit.Confidence < 0.7 {
		t.Fatalf("confidence: want>=0.7 got=%v", hit.Confidence)
	}
	if hit.ReviewStatus != domain.StatusApproved {
		t.Fatalf("review status: want=%s got=%s", domain.StatusApproved, hit.ReviewStatus)
	}
	if result.Partial {
		t.Fatalf("unexpected partial result")
	}
}

func TestExtractContradictionDowngrade(t *testing.T) {
	svc := newTestExtraction(t, nil, nil)
	doc := domain.Document{
		ID:      "d1",
		Content: "GPT-4 was developed by OpenAI. Some say GPT-4 competes with OpenAI.",
		Entities: []domain.DocumentEntity{
			{ID: "gpt-4", Name: "GPT-4", Type: domain.EntityAIModel},
			{ID: "openai", Name: "OpenAI", Type: domain.EntityOrganization},
		},
	}

	result, err := svc.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	var developed, competes *domain.Relation
	for i := range result.Relations {
		r := &result.Relations[i]
		if r.Source == "gpt-4" && r.Target == "openai" {
			switch r.Type {
			case domain.RelDevelopedBy:
				developed = r
			case domain.RelCompetesWith:
				competes = r
			}
		}
	}
	if developed == nil || competes == nil {
		t.Fatalf("both conflicting relations expected, got %v", result.Relations)
	}
	for _, r := range []*domain.Relation{developed, competes} {
		if r.ReviewStatus != domain.StatusPending || !r.NeedsReview {
			t.Fatalf("conflict downgrade: want pending+needsReview got=%+v", r)
		}
	}
}

func TestMergeHybridMethod(t *testing.T) {
	cooc := []domain.Relation{{
		Source: "a", Target: "b", Type: domain.RelDevelopedBy, Confidence: 0.2,
		Method:   domain.MethodCooccurrence,
		Evidence: []domain.Evidence{{DocumentID: "d1", Method: domain.MethodCooccurrence, RawConfidence: 0.2}},
	}}
	pattern := []domain.Relation{{
		Source: "a", Target: "b", Type: domain.RelDevelopedBy, Confidence: 0.9,
		Method:   domain.MethodPattern,
		Evidence: []domain.Evidence{{DocumentID: "d1", Method: domain.MethodPattern, RawConfidence: 0.9}},
	}}

	merged := mergeProposals(cooc, pattern)
	if len(merged) != 1 {
		t.Fatalf("merged records: want=1 got=%d", len(merged))
	}
	rel := merged[0]
	if rel.Method != domain.MethodHybrid {
		t.Fatalf("method: want=%s got=%s", domain.MethodHybrid, rel.Method)
	}
	if rel.Confidence != 0.9 {
		t.Fatalf("confidence: want max raw 0.9 got=%v", rel.Confidence)
	}
	if len(rel.Evidence) != 2 {
		t.Fatalf("evidence: want=2 got=%d", len(rel.Evidence))
	}
	// Evidence order follows pass order.
	if rel.Evidence[0].Method != domain.MethodCooccurrence || rel.Evidence[1].Method != domain.MethodPattern {
		t.Fatalf("evidence order: got=%v", rel.Evidence)
	}
}

func TestMergeKeySetCommutative(t *testing.T) {
	a := []domain.Relation{{Source: "a", Target: "b", Type: domain.RelCites, Method: domain.MethodCooccurrence}}
	b := []domain.Relation{{Source: "c", Target: "d", Type: domain.RelBasedOn, Method: domain.MethodPattern}}
	c := []domain.Relation{{Source: "a", Target: "b", Type: domain.RelCites, Method: domain.MethodLLM}}

	keys := func(rels []domain.Relation) map[domain.RelationKey]bool {
		out := map[domain.RelationKey]bool{}
		for _, r := range rels {
			out[r.Key()] = true
		}
		return out
	}
	left := keys(mergeProposals(a, b, c))
	right := keys(mergeProposals(c, a, b))
	if len(left) != len(right) {
		t.Fatalf("key sets differ: %v vs %v", left, right)
	}
	for k := range left {
		if !right[k] {
			t.Fatalf("key %v missing from permuted merge", k)
		}
	}
}

func TestExtractBatchPartialFailure(t *testing.T) {
	cfg := testConfig()
	chat := &fakeChat{chatErr: errors.New("llm timeout")}
	llm := NewLLMRelationService(chat, nil, cfg, testLogger())

	deps := ExtractionDeps{
		Cooccurrence:  NewCooccurrenceService(cfg, testLogger()),
		Patterns:      NewPatternService(cfg, testLogger()),
		Scorer:        NewScorerService(cfg, testLogger()),
		Contradiction: NewContradictionService(cfg, testLogger()),
		LLM:           llm,
		Log:           testLogger(),
	}
	svc, err := NewExtractionService(deps)
	if err != nil {
		t.Fatalf("new extraction service: %v", err)
	}

	entities := []domain.DocumentEntity{
		{ID: "gpt-4", Name: "GPT-4", Type: domain.EntityAIModel},
		{ID: "openai", Name: "OpenAI", Type: domain.EntityOrganization},
	}
	// Only d2 produces an entity pair, so only d2 reaches the chat endpoint.
	docs := []domain.Document{
		{ID: "d1", Content: "plain text without any tagged mentions."},
		{ID: "d2", Content: "GPT-4 and OpenAI appear together.", Entities: entities},
		{ID: "d3", Content: "more plain text."},
	}

	batch, err := svc.ExtractBatch(context.Background(), docs)
	if err != nil {
		t.Fatalf("extract batch: %v", err)
	}
	if batch.SuccessCount != 2 || batch.FailureCount != 1 {
		t.Fatalf("counts: want success=2 failure=1 got success=%d failure=%d", batch.SuccessCount, batch.FailureCount)
	}
	if len(batch.Errors) != 1 || batch.Errors[0].DocumentID != "d2" {
		t.Fatalf("errors: want d2 got=%v", batch.Errors)
	}

	stats := svc.Stats()
	if stats.TotalProcessed != 3 {
		t.Fatalf("stats count attempts: want=3 got=%d", stats.TotalProcessed)
	}
	if stats.FailedDocuments != 1 {
		t.Fatalf("failed documents: want=1 got=%d", stats.FailedDocuments)
	}
}

func TestExtractPersistsAndInvalidatesCache(t *testing.T) {
	store := newMemGraph()
	cache := NewPathCache(8, 0)
	cfg := testConfig()
	deps := ExtractionDeps{
		Cooccurrence:  NewCooccurrenceService(cfg, testLogger()),
		Patterns:      NewPatternService(cfg, testLogger()),
		Scorer:        NewScorerService(cfg, testLogger()),
		Contradiction: NewContradictionService(cfg, testLogger()),
		Graph:         store,
		PathCache:     cache,
		Log:           testLogger(),
	}
	svc, err := NewExtractionService(deps)
	if err != nil {
		t.Fatalf("new extraction service: %v", err)
	}

	cache.Put(PathCacheKey("gpt-4", "openai", 6, nil), domain.PathResult{
		Start: "gpt-4", End: "openai",
	})

	doc := domain.Document{
		ID:      "d1",
		Content: "GPT-4 was developed by OpenAI.",
		Entities: []domain.DocumentEntity{
			{ID: "gpt-4", Name: "GPT-4", Type: domain.EntityAIModel},
			{ID: "openai", Name: "OpenAI", Type: domain.EntityOrganization},
		},
	}
	if _, err := svc.Extract(context.Background(), doc); err != nil {
		t.Fatalf("extract: %v", err)
	}

	if len(store.entities) != 2 {
		t.Fatalf("persisted entities: want=2 got=%d", len(store.entities))
	}
	if len(store.edges) == 0 {
		t.Fatalf("no relations persisted")
	}
	if cache.Len() != 0 {
		t.Fatalf("path cache not invalidated: len=%d", cache.Len())
	}
}

func TestExtractNormalizedSurfaceMergesPasses(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "gpt 4", "GPT-4", 0.95)

	cfg := testConfig()
	deps := ExtractionDeps{
		Cooccurrence:  NewCooccurrenceService(cfg, testLogger()),
		Patterns:      NewPatternService(cfg, testLogger()),
		Scorer:        NewScorerService(cfg, testLogger()),
		Contradiction: NewContradictionService(cfg, testLogger()),
		Normalizer:    newTestNormalizer(t, aliases, nil),
		Log:           testLogger(),
	}
	svc, err := NewExtractionService(deps)
	if err != nil {
		t.Fatalf("new extraction service: %v", err)
	}

	// The alias rewrites the surface's id; every pass must see the
	// canonical id or the same pair splits across merge keys.
	doc := domain.Document{
		ID:      "d1",
		Content: "GPT 4 was developed by OpenAI.",
		Entities: []domain.DocumentEntity{
			{Name: "GPT 4", Type: domain.EntityAIModel},
			{Name: "OpenAI", Type: domain.EntityOrganization},
		},
	}
	result, err := svc.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	var developed []domain.Relation
	for _, r := range result.Relations {
		if r.Source == "GPT 4" || r.Target == "GPT 4" {
			t.Fatalf("raw surface id leaked into relation: %+v", r)
		}
		if r.Source == "GPT-4" && r.Target == "OpenAI" && r.Type == domain.RelDevelopedBy {
			developed = append(developed, r)
		}
	}
	if len(developed) != 1 {
		t.Fatalf("developed-by relations: want=1 got=%d (%v)", len(developed), developed)
	}
	if developed[0].Method != domain.MethodHybrid {
		t.Fatalf("method: want=%s got=%s", domain.MethodHybrid, developed[0].Method)
	}
	methods := map[domain.ExtractionMethod]bool{}
	for _, ev := range developed[0].Evidence {
		methods[ev.Method] = true
	}
	if !methods[domain.MethodCooccurrence] || !methods[domain.MethodPattern] {
		t.Fatalf("merged evidence: want cooccurrence+pattern got=%v", developed[0].Evidence)
	}

	ids := map[string]bool{}
	for _, e := range result.Entities {
		ids[e.ID] = true
	}
	if !ids["GPT-4"] || ids["GPT 4"] {
		t.Fatalf("entities: want canonical GPT-4 only, got=%v", result.Entities)
	}
}

func TestExtractIndexesEntityVectors(t *testing.T) {
	store := newMemGraph()
	vectors := newMemVectors()
	chat := &fakeChat{}
	embedder, err := NewEmbeddingService(chat, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("new embedding service: %v", err)
	}

	cfg := testConfig()
	deps := ExtractionDeps{
		Cooccurrence:  NewCooccurrenceService(cfg, testLogger()),
		Patterns:      NewPatternService(cfg, testLogger()),
		Scorer:        NewScorerService(cfg, testLogger()),
		Contradiction: NewContradictionService(cfg, testLogger()),
		Graph:         store,
		Embedder:      embedder,
		Vectors:       vectors,
		Log:           testLogger(),
	}
	svc, err := NewExtractionService(deps)
	if err != nil {
		t.Fatalf("new extraction service: %v", err)
	}

	doc := domain.Document{
		ID:      "d1",
		Content: "GPT-4 was developed by OpenAI.",
		Entities: []domain.DocumentEntity{
			{ID: "gpt-4", Name: "GPT-4", Type: domain.EntityAIModel},
			{ID: "openai", Name: "OpenAI", Type: domain.EntityOrganization},
		},
	}
	if _, err := svc.Extract(context.Background(), doc); err != nil {
		t.Fatalf("extract: %v", err)
	}

	n, _ := vectors.Count(context.Background())
	if n != 2 {
		t.Fatalf("indexed vectors: want=2 got=%d", n)
	}
	points, err := vectors.Fetch(context.Background(), []string{"gpt-4"})
	if err != nil || len(points) != 1 {
		t.Fatalf("fetch gpt-4: points=%v err=%v", points, err)
	}
	if got := points[0].Payload["entity_id"]; got != "gpt-4" {
		t.Fatalf("payload entity_id: want=gpt-4 got=%v", got)
	}
	if got := points[0].Payload["entity_name"]; got != "GPT-4" {
		t.Fatalf("payload entity_name: want=GPT-4 got=%v", got)
	}
}
