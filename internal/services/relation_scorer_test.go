package services

import (
	"testing"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

func TestScoreWeightedSumInvariant(t *testing.T) {
	cfg := testConfig()
	svc := NewScorerService(cfg, testLogger())

	rels := []domain.Relation{
		{
			Source: "a", Target: "b", Type: domain.RelDevelopedBy,
			Confidence: 0.9, Method: domain.MethodPattern,
			Evidence: []domain.Evidence{{DocumentID: "d1", Method: domain.MethodPattern, RawConfidence: 0.9}},
		},
		{
			Source: "c", Target: "d", Type: domain.RelCites,
			Confidence: 0.2, Method: domain.MethodCooccurrence,
			Evidence: []domain.Evidence{{DocumentID: "d1", Method: domain.MethodCooccurrence, RawConfidence: 0.2}},
		},
	}
	rels = svc.ScoreAll(rels)

	for _, rel := range rels {
		w := cfg.Weights
		c := rel.ScoreComponents
		want := w.Cooccurrence*c.Cooccurrence + w.LLM*c.LLM + w.Source*c.Source + w.Graph*c.GraphConsistency
		diff := rel.Confidence - want
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-6 {
			t.Fatalf("fusion drift: want=%v got=%v", want, rel.Confidence)
		}
	}
}

func TestScoreTriageStatuses(t *testing.T) {
	svc := NewScorerService(testConfig(), testLogger())

	strong := domain.Relation{
		Source: "gpt-4", Target: "openai", Type: domain.RelDevelopedBy,
		Confidence: 0.9, Method: domain.MethodPattern,
		Evidence: []domain.Evidence{{DocumentID: "d1", Method: domain.MethodPattern, RawConfidence: 0.9}},
	}
	svc.Assemble(&strong, -1)
	svc.Score(&strong)
	if strong.ReviewStatus != domain.StatusApproved {
		t.Fatalf("strong proposal: want=%s got=%s (confidence %v)", domain.StatusApproved, strong.ReviewStatus, strong.Confidence)
	}

	weak := domain.Relation{
		Source: "a", Target: "b", Type: domain.RelCites,
		Confidence: 0.1, Method: domain.MethodCooccurrence,
		Evidence: []domain.Evidence{{DocumentID: "d1", Method: domain.MethodCooccurrence, RawConfidence: 0.1}},
	}
	svc.Assemble(&weak, -1)
	svc.Score(&weak)
	if weak.ReviewStatus != domain.StatusRejected {
		t.Fatalf("weak proposal: want=%s got=%s (confidence %v)", domain.StatusRejected, weak.ReviewStatus, weak.Confidence)
	}
}

func TestAssembleNeutralDefaults(t *testing.T) {
	cfg := testConfig()
	svc := NewScorerService(cfg, testLogger())

	bare := domain.Relation{Source: "a", Target: "b", Type: domain.RelCites}
	svc.Assemble(&bare, -1)
	c := bare.ScoreComponents
	if c.Cooccurrence != neutralComponent || c.LLM != neutralComponent || c.GraphConsistency != neutralComponent {
		t.Fatalf("neutral defaults: got=%+v", c)
	}
	if c.Source != cfg.DefaultSourceReliability {
		t.Fatalf("source default: want=%v got=%v", cfg.DefaultSourceReliability, c.Source)
	}
}

func TestAssembleStrongSignalSubsumesWeak(t *testing.T) {
	svc := NewScorerService(testConfig(), testLogger())

	// Weak sentence-level co-occurrence plus a strong pattern hit: the
	// pattern signal floors both model slots.
	rel := domain.Relation{
		Source: "gpt-4", Target: "openai", Type: domain.RelDevelopedBy,
		Confidence: 0.9, Method: domain.MethodHybrid,
		Evidence: []domain.Evidence{
			{DocumentID: "d1", Method: domain.MethodCooccurrence, RawConfidence: 0.2},
			{DocumentID: "d1", Method: domain.MethodPattern, RawConfidence: 0.9},
		},
	}
	svc.Assemble(&rel, -1)
	if rel.ScoreComponents.Cooccurrence != 0.9 {
		t.Fatalf("cooccurrence slot: want=0.9 got=%v", rel.ScoreComponents.Cooccurrence)
	}
	if rel.ScoreComponents.Source != 0.8 {
		t.Fatalf("source slot: want pattern reliability 0.8 got=%v", rel.ScoreComponents.Source)
	}
}
