package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scigraph/scigraph-backend/internal/data/repos"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
)

func testAliasRepo(t *testing.T) repos.AliasRepo {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&domain.AliasRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repos.NewAliasRepo(gdb, testLogger())
}

func seedAlias(t *testing.T, aliases repos.AliasRepo, surface, canonical string, confidence float64) {
	t.Helper()
	_, err := aliases.Upsert(context.Background(), &domain.AliasRow{
		ID:         uuid.New(),
		Surface:    surface,
		Canonical:  canonical,
		Confidence: confidence,
		Source:     domain.AliasSourceManual,
	})
	if err != nil {
		t.Fatalf("seed alias %s: %v", surface, err)
	}
}

func newTestNormalizer(t *testing.T, aliases repos.AliasRepo, llm openai.Client) *NormalizerService {
	t.Helper()
	svc, err := NewNormalizerService(testConfig(), aliases, nil, llm, nil, testLogger())
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return svc
}

func TestNormalizeRuleStage(t *testing.T) {
	svc := newTestNormalizer(t, testAliasRepo(t), nil)

	res, err := svc.Normalize(context.Background(), "The  Transformer (2017)", NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageRule {
		t.Fatalf("stage: want=%s got=%s", domain.StageRule, res.Stage)
	}
	if res.Normalized != "Transformer" {
		t.Fatalf("normalized: want=Transformer got=%q", res.Normalized)
	}
	if !res.WasNormalized || res.Confidence != 1.0 {
		t.Fatalf("rule stage result: %+v", res)
	}
}

func TestNormalizeAliasStage(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "GPT4", "GPT-4", 0.9)
	svc := newTestNormalizer(t, aliases, nil)

	res, err := svc.Normalize(context.Background(), "GPT4", NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageAlias || res.Normalized != "GPT-4" {
		t.Fatalf("alias stage: want GPT-4 got=%+v", res)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("confidence carries the stored value: want=0.9 got=%v", res.Confidence)
	}
}

func TestNormalizeAliasLowercaseFallback(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "bert", "BERT", 0.85)
	svc := newTestNormalizer(t, aliases, nil)

	res, err := svc.Normalize(context.Background(), "Bert", NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageAlias || res.Normalized != "BERT" {
		t.Fatalf("lowercase fallback: got=%+v", res)
	}
}

func TestNormalizeSimilarityStage(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "gpt-4 model", "GPT-4", 0.8)
	svc := newTestNormalizer(t, aliases, nil)

	res, err := svc.Normalize(context.Background(), "GPT 4", NormalizeOptions{
		EntityType: domain.EntityAIModel,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageSimilarity || res.Normalized != "GPT-4" {
		t.Fatalf("similarity stage: want GPT-4 got=%+v", res)
	}
	if res.Confidence < 0.85 {
		t.Fatalf("fold-equal forms score above auto threshold: got=%v", res.Confidence)
	}
	if !res.AliasRegistered {
		t.Fatalf("auto-accepted match must register the alias")
	}

	// The registered alias resolves the same surface on the next call, at
	// least as confidently.
	again, err := svc.Normalize(context.Background(), "GPT 4", NormalizeOptions{})
	if err != nil {
		t.Fatalf("re-normalize: %v", err)
	}
	if again.Stage != domain.StageAlias || again.Normalized != "GPT-4" {
		t.Fatalf("re-resolution: got=%+v", again)
	}
	if again.Confidence < res.Confidence {
		t.Fatalf("re-resolution confidence: want>=%v got=%v", res.Confidence, again.Confidence)
	}
}

func TestNormalizeLLMConfirmBand(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "resnets", "Residual Networks", 0.8)
	chat := &fakeChat{replies: []string{"CANONICAL: Residual Networks\nCONFIDENCE: 0.9"}}
	svc := newTestNormalizer(t, aliases, chat)

	res, err := svc.Normalize(context.Background(), "Residual Network", NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageLLM || res.Normalized != "Residual Networks" {
		t.Fatalf("llm stage: got=%+v", res)
	}
	want := 0.9 * 0.7 // endpoint answer discounted by the reliability factor
	if !floatClose(res.Confidence, want) {
		t.Fatalf("confidence: want=%v got=%v", want, res.Confidence)
	}
	if chat.calls() != 1 {
		t.Fatalf("chat calls: want=1 got=%d", chat.calls())
	}
}

func TestNormalizeLLMAnswerOutsideCandidatesDropped(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "resnets", "Residual Networks", 0.8)
	chat := &fakeChat{replies: []string{"CANONICAL: Made Up Thing\nCONFIDENCE: 0.99"}}
	svc := newTestNormalizer(t, aliases, chat)

	res, err := svc.Normalize(context.Background(), "Residual Network", NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageNone || res.Normalized != "Residual Network" {
		t.Fatalf("invented canonical must be dropped: got=%+v", res)
	}
}

func TestNormalizeSkipLLM(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "resnets", "Residual Networks", 0.8)
	chat := &fakeChat{replies: []string{"CANONICAL: Residual Networks\nCONFIDENCE: 0.9"}}
	svc := newTestNormalizer(t, aliases, chat)

	res, err := svc.Normalize(context.Background(), "Residual Network", NormalizeOptions{SkipLLM: true})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Stage != domain.StageNone {
		t.Fatalf("skip llm: want stage none got=%s", res.Stage)
	}
	if chat.calls() != 0 {
		t.Fatalf("chat must not be consulted: calls=%d", chat.calls())
	}
}

func TestNormalizeEmptyAndUnknownType(t *testing.T) {
	svc := newTestNormalizer(t, testAliasRepo(t), nil)

	res, err := svc.Normalize(context.Background(), "   ", NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize blank: %v", err)
	}
	if res.Stage != domain.StageNone || res.WasNormalized {
		t.Fatalf("blank surface: got=%+v", res)
	}

	res, err = svc.Normalize(context.Background(), "Widget", NormalizeOptions{EntityType: "gadget"})
	if err != nil {
		t.Fatalf("normalize unknown type: %v", err)
	}
	if res.Stage != domain.StageNone || res.Normalized != "Widget" {
		t.Fatalf("unknown entity type must not resolve: got=%+v", res)
	}
}

func TestNormalizeAllKeepsOrder(t *testing.T) {
	aliases := testAliasRepo(t)
	seedAlias(t, aliases, "GPT4", "GPT-4", 0.9)
	svc := newTestNormalizer(t, aliases, nil)

	results, err := svc.NormalizeAll(context.Background(), []string{"GPT4", "BERT"}, NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: want=2 got=%d", len(results))
	}
	if results[0].Normalized != "GPT-4" || results[1].Original != "BERT" {
		t.Fatalf("order not preserved: %+v", results)
	}
}
