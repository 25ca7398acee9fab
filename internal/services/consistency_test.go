package services

import (
	"context"
	"strings"
	"testing"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
)

func newTestConsistency(t *testing.T, g *memGraph, chat *fakeChat) *ConsistencyService {
	t.Helper()
	pf := newTestPathfinder(t, g, nil)
	var llm openai.Client
	if chat != nil {
		llm = chat
	}
	svc, err := NewConsistencyService(testConfig(), g, pf, llm, nil, testLogger())
	if err != nil {
		t.Fatalf("new consistency service: %v", err)
	}
	return svc
}

func TestCheckConsistentClaim(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	res, err := svc.Check(context.Background(), domain.FactClaim{
		ID:             "c1",
		Text:           "GPT-4 was developed by OpenAI",
		SourceEntityID: "gpt-4",
		TargetEntityID: "openai",
		RelationType:   domain.RelDevelopedBy,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.IsConsistent {
		t.Fatalf("claim should be consistent: %+v", res)
	}
	if !floatClose(res.Score, 1.0) {
		t.Fatalf("score: want=1.0 got=%v", res.Score)
	}
	if !hasEvidence(res.SupportingEvidence, "matched_relation") {
		t.Fatalf("matched_relation evidence missing: %+v", res.SupportingEvidence)
	}
	if !hasEvidence(res.SupportingEvidence, "path_support") {
		t.Fatalf("path_support evidence missing: %+v", res.SupportingEvidence)
	}
}

func TestCheckWrongRelation(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	res, err := svc.Check(context.Background(), domain.FactClaim{
		ID:             "c2",
		Text:           "GPT-4 competes with OpenAI",
		SourceEntityID: "gpt-4",
		TargetEntityID: "openai",
		RelationType:   domain.RelCompetesWith,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.IsConsistent {
		t.Fatalf("wrong relation must be inconsistent: %+v", res)
	}
	// Entities present and connected, relation type mismatched.
	if !floatClose(res.Score, 0.6) {
		t.Fatalf("score: want=0.6 got=%v", res.Score)
	}
	if !hasEvidence(res.ContradictingEvidence, "wrong_relation") {
		t.Fatalf("wrong_relation evidence missing: %+v", res.ContradictingEvidence)
	}
	if len(res.Suggestions) == 0 {
		t.Fatalf("suggestion with stored relation expected")
	}
}

func TestCheckMissingEntity(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	res, err := svc.Check(context.Background(), domain.FactClaim{
		ID:             "c3",
		Text:           "HAL 9000 was developed by OpenAI",
		SourceEntityID: "hal-9000",
		TargetEntityID: "openai",
		RelationType:   domain.RelDevelopedBy,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.IsConsistent {
		t.Fatalf("unknown entity must be inconsistent")
	}
	if !hasEvidence(res.ContradictingEvidence, "missing_entity") {
		t.Fatalf("missing_entity evidence missing: %+v", res.ContradictingEvidence)
	}
	if len(res.Suggestions) == 0 {
		t.Fatalf("normalization suggestion expected")
	}
}

func TestCheckMissingRelation(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	// Both entities exist with no direct edge between them.
	res, err := svc.Check(context.Background(), domain.FactClaim{
		ID:             "c4",
		Text:           "GPT-4 was developed by Google",
		SourceEntityID: "gpt-4",
		TargetEntityID: "google",
		RelationType:   domain.RelDevelopedBy,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !hasEvidence(res.ContradictingEvidence, "missing_relation") {
		t.Fatalf("missing_relation evidence missing: %+v", res.ContradictingEvidence)
	}
	// Path support still contributes: connected through the transformer.
	if !hasEvidence(res.SupportingEvidence, "path_support") {
		t.Fatalf("path_support evidence missing: %+v", res.SupportingEvidence)
	}
	if res.IsConsistent {
		t.Fatalf("missing direct edge must stay below threshold: score=%v", res.Score)
	}
}

func TestCheckEntityOnlyClaim(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	res, err := svc.Check(context.Background(), domain.FactClaim{
		ID:        "c5",
		Text:      "GPT-4 and the Transformer are related systems",
		EntityIDs: []string{"gpt-4", "transformer"},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// No relation asserted: presence and path parts renormalize to 1.0.
	if !res.IsConsistent || !floatClose(res.Score, 1.0) {
		t.Fatalf("entity-only claim: got score=%v consistent=%v", res.Score, res.IsConsistent)
	}
}

func TestCheckEmptyClaim(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	res, err := svc.Check(context.Background(), domain.FactClaim{ID: "c6", Text: "nothing concrete"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.IsConsistent || res.Score != 0 {
		t.Fatalf("claim without entities: got=%+v", res)
	}
	if res.Explanation == "" {
		t.Fatalf("explanation expected")
	}
}

func TestCheckAllOrder(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	results, err := svc.CheckAll(context.Background(), []domain.FactClaim{
		{ID: "a", Text: "t", EntityIDs: []string{"gpt-4"}},
		{ID: "b", Text: "t", EntityIDs: []string{"unknown-thing"}},
	})
	if err != nil {
		t.Fatalf("check all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: want=2 got=%d", len(results))
	}
	if results[0].Claim.ID != "a" || results[1].Claim.ID != "b" {
		t.Fatalf("order not preserved: %+v", results)
	}
}

func TestExtractClaimsLLM(t *testing.T) {
	chat := &fakeChat{replies: []string{
		`[{"text":"GPT-4 was developed by OpenAI","sourceEntityId":"gpt-4","targetEntityId":"openai","relationType":"DEVELOPED_BY","confidence":0.9},` +
			`{"text":"GPT-4 flies to the moon","relationType":"FLIES_TO"}]`,
	}}
	svc := newTestConsistency(t, researchGraph(), chat)

	claims, err := svc.ExtractClaims(context.Background(), "GPT-4 was developed by OpenAI. GPT-4 flies to the moon.")
	if err != nil {
		t.Fatalf("extract claims: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("claims: want=2 got=%d", len(claims))
	}
	if claims[0].RelationType != domain.RelDevelopedBy {
		t.Fatalf("relation type: got=%s", claims[0].RelationType)
	}
	// Types outside the vocabulary are cleared, not invented.
	if claims[1].RelationType != "" {
		t.Fatalf("unknown relation type kept: %s", claims[1].RelationType)
	}
	for _, c := range claims {
		if c.ID == "" {
			t.Fatalf("claim id not filled: %+v", c)
		}
	}
}

func TestExtractClaimsSegmentationFallback(t *testing.T) {
	chat := &fakeChat{replies: []string{"I cannot produce JSON today."}}
	svc := newTestConsistency(t, researchGraph(), chat)

	claims, err := svc.ExtractClaims(context.Background(), "GPT-4 was developed by OpenAI. Transformer came from Google Brain.")
	if err != nil {
		t.Fatalf("extract claims: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("segmented claims: want=2 got=%d", len(claims))
	}
	if !strings.Contains(claims[0].Text, "GPT-4") {
		t.Fatalf("first claim text: got=%q", claims[0].Text)
	}
	if len(claims[0].EntityIDs) == 0 {
		t.Fatalf("recognized surfaces expected in claim")
	}
}

func TestExtractClaimsEmptyText(t *testing.T) {
	svc := newTestConsistency(t, researchGraph(), nil)

	claims, err := svc.ExtractClaims(context.Background(), "   ")
	if err != nil {
		t.Fatalf("extract claims: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("blank text: want no claims got=%d", len(claims))
	}
}

func TestSegmentClaimsAlwaysReturns(t *testing.T) {
	claims := segmentClaims("all lowercase words without any names.")
	if len(claims) != 1 {
		t.Fatalf("whole-text fallback claim: want=1 got=%d", len(claims))
	}
	if claims[0].Text == "" || claims[0].ID == "" {
		t.Fatalf("fallback claim incomplete: %+v", claims[0])
	}
}

func hasEvidence(evs []domain.ConsistencyEvidence, kind string) bool {
	for _, ev := range evs {
		if ev.Type == kind {
			return true
		}
	}
	return false
}
