package repos

import (
	"context"
	"testing"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

func TestAliasUpsertAndLookup(t *testing.T) {
	repo := NewAliasRepo(testDB(t), testLogger())
	ctx := context.Background()

	row := &domain.AliasRow{
		Surface:    "GPT 4",
		Canonical:  "GPT-4",
		Confidence: 0.92,
		Source:     domain.AliasSourceSimilarity,
	}
	registered, err := repo.Upsert(ctx, row)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !registered {
		t.Fatalf("first upsert must register")
	}

	got, err := repo.GetBySurface(ctx, "GPT 4")
	if err != nil {
		t.Fatalf("GetBySurface: %v", err)
	}
	if got == nil || got.Canonical != "GPT-4" {
		t.Fatalf("lookup: got=%+v", got)
	}
}

func TestAliasConflictHigherConfidenceWins(t *testing.T) {
	repo := NewAliasRepo(testDB(t), testLogger())
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, &domain.AliasRow{
		Surface: "BERT base", Canonical: "BERT", Confidence: 0.7, Source: domain.AliasSourceSimilarity,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	registered, err := repo.Upsert(ctx, &domain.AliasRow{
		Surface: "BERT base", Canonical: "BERT-Base", Confidence: 0.95, Source: domain.AliasSourceManual,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !registered {
		t.Fatalf("higher confidence must replace")
	}

	got, _ := repo.GetBySurface(ctx, "BERT base")
	if got.Canonical != "BERT-Base" || got.Source != domain.AliasSourceManual {
		t.Fatalf("replacement not applied: %+v", got)
	}
}

func TestAliasConflictTieKeepsEarlier(t *testing.T) {
	repo := NewAliasRepo(testDB(t), testLogger())
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, &domain.AliasRow{
		Surface: "ViT", Canonical: "Vision Transformer", Confidence: 0.8, Source: domain.AliasSourceRule,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	registered, err := repo.Upsert(ctx, &domain.AliasRow{
		Surface: "ViT", Canonical: "ViT-Large", Confidence: 0.8, Source: domain.AliasSourceLLM,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if registered {
		t.Fatalf("equal confidence must keep the earlier entry")
	}

	got, _ := repo.GetBySurface(ctx, "ViT")
	if got.Canonical != "Vision Transformer" {
		t.Fatalf("earlier entry must survive a tie: %+v", got)
	}
}

func TestAliasSameCanonicalRefreshesConfidence(t *testing.T) {
	repo := NewAliasRepo(testDB(t), testLogger())
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, &domain.AliasRow{
		Surface: "RLHF", Canonical: "Reinforcement Learning from Human Feedback", Confidence: 0.75, Source: domain.AliasSourceSimilarity,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	registered, err := repo.Upsert(ctx, &domain.AliasRow{
		Surface: "RLHF", Canonical: "Reinforcement Learning from Human Feedback", Confidence: 0.9, Source: domain.AliasSourceManual,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !registered {
		t.Fatalf("higher-confidence same-canonical must refresh")
	}
	got, _ := repo.GetBySurface(ctx, "RLHF")
	if got.Confidence != 0.9 {
		t.Fatalf("confidence not refreshed: %+v", got)
	}
}

func TestListCanonicals(t *testing.T) {
	repo := NewAliasRepo(testDB(t), testLogger())
	ctx := context.Background()

	seed := []*domain.AliasRow{
		{Surface: "a", Canonical: "Attention", Confidence: 1, Source: domain.AliasSourceRule},
		{Surface: "b", Canonical: "Attention", Confidence: 1, Source: domain.AliasSourceRule},
		{Surface: "c", Canonical: "Transformer", Confidence: 1, Source: domain.AliasSourceRule},
	}
	for _, row := range seed {
		if _, err := repo.Upsert(ctx, row); err != nil {
			t.Fatalf("seed %s: %v", row.Surface, err)
		}
	}

	canonicals, err := repo.ListCanonicals(ctx)
	if err != nil {
		t.Fatalf("ListCanonicals: %v", err)
	}
	if len(canonicals) != 2 {
		t.Fatalf("distinct canonicals: want=2 got=%d (%v)", len(canonicals), canonicals)
	}
}
