package services

import (
	"context"
	"strings"
	"testing"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

func newTestReasoner(t *testing.T, g *memGraph, chat *fakeChat) *ReasonerService {
	t.Helper()
	svc, err := NewReasonerService(g, chat, nil, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("new reasoner: %v", err)
	}
	return svc
}

func TestReasonStepsToConclusion(t *testing.T) {
	chat := &fakeChat{replies: []string{
		"STEP: GPT-4 was developed by OpenAI.\nEVIDENCE: F1\nCONFIDENCE: 0.9",
		"STEP: GPT-4 builds on the Transformer architecture.\nEVIDENCE: F2\nCONFIDENCE: 0.8",
		"CONCLUSION: GPT-4 is an OpenAI model built on the Transformer.",
	}}
	svc := newTestReasoner(t, researchGraph(), chat)

	res, err := svc.Reason(context.Background(), "Who built GPT-4 and what is it based on?", ReasonOptions{
		EntityIDs: []string{"gpt-4"},
	})
	if err != nil {
		t.Fatalf("reason: %v", err)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("steps: want=2 got=%d", len(res.Steps))
	}
	if res.Steps[0].Index != 1 || res.Steps[1].Index != 2 {
		t.Fatalf("step indices: got=%+v", res.Steps)
	}
	if len(res.Steps[0].EvidenceID) != 1 || res.Steps[0].EvidenceID[0] != "F1" {
		t.Fatalf("evidence ids: got=%v", res.Steps[0].EvidenceID)
	}
	if !strings.Contains(res.Conclusion, "OpenAI") {
		t.Fatalf("conclusion: got=%q", res.Conclusion)
	}
	// Overall confidence is the weakest step.
	if !floatClose(res.Confidence, 0.8) {
		t.Fatalf("confidence: want=0.8 got=%v", res.Confidence)
	}
}

func TestReasonConfidenceFloorStops(t *testing.T) {
	chat := &fakeChat{replies: []string{
		"STEP: A weak hunch.\nEVIDENCE: F1\nCONFIDENCE: 0.2",
		"Synthesized answer from one weak step.",
	}}
	svc := newTestReasoner(t, researchGraph(), chat)

	res, err := svc.Reason(context.Background(), "anything about GPT-4?", ReasonOptions{
		EntityIDs:       []string{"gpt-4"},
		ConfidenceFloor: 0.3,
	})
	if err != nil {
		t.Fatalf("reason: %v", err)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("steps after floor break: want=1 got=%d", len(res.Steps))
	}
	if !floatClose(res.Confidence, 0.2) {
		t.Fatalf("confidence: want=0.2 got=%v", res.Confidence)
	}
	if res.Conclusion == "" {
		t.Fatalf("missing synthesized conclusion")
	}
	// One step prompt plus one synthesis call.
	if chat.calls() != 2 {
		t.Fatalf("chat calls: want=2 got=%d", chat.calls())
	}
}

func TestReasonMaxStepsSynthesizes(t *testing.T) {
	chat := &fakeChat{replies: []string{
		"STEP: First observation.\nEVIDENCE: F1\nCONFIDENCE: 0.9",
		"STEP: Second observation.\nEVIDENCE: F2\nCONFIDENCE: 0.9",
		"Both observations answer the question.",
	}}
	svc := newTestReasoner(t, researchGraph(), chat)

	res, err := svc.Reason(context.Background(), "q", ReasonOptions{
		EntityIDs: []string{"gpt-4"},
		MaxSteps:  2,
	})
	if err != nil {
		t.Fatalf("reason: %v", err)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("steps: want=2 got=%d", len(res.Steps))
	}
	if res.Conclusion != "Both observations answer the question." {
		t.Fatalf("conclusion: got=%q", res.Conclusion)
	}
}

func TestReasonNoFacts(t *testing.T) {
	g := newMemGraph()
	g.addEntity(domain.Entity{ID: "isolated", Name: "Isolated", Type: domain.EntityConcept})
	chat := &fakeChat{}
	svc := newTestReasoner(t, g, chat)

	res, err := svc.Reason(context.Background(), "what connects to Isolated?", ReasonOptions{
		EntityIDs: []string{"isolated"},
	})
	if err != nil {
		t.Fatalf("reason: %v", err)
	}
	if res.Confidence != 0 {
		t.Fatalf("confidence without facts: want=0 got=%v", res.Confidence)
	}
	if res.Conclusion == "" {
		t.Fatalf("empty conclusion")
	}
	if chat.calls() != 0 {
		t.Fatalf("no chat calls expected: got=%d", chat.calls())
	}
}

func TestReasonSeedsFromQuestionSurfaces(t *testing.T) {
	chat := &fakeChat{replies: []string{"CONCLUSION: OpenAI developed GPT-4."}}
	svc := newTestReasoner(t, researchGraph(), chat)

	res, err := svc.Reason(context.Background(), "Who developed GPT-4?", ReasonOptions{})
	if err != nil {
		t.Fatalf("reason: %v", err)
	}
	if res.Conclusion != "OpenAI developed GPT-4." {
		t.Fatalf("conclusion: got=%q", res.Conclusion)
	}
}

func TestParseReasoningReply(t *testing.T) {
	step, conclusion, ok := parseReasoningReply("STEP: a fact\nEVIDENCE: F1, F2\nCONFIDENCE: 0.75", 3)
	if conclusion != "" || !ok {
		t.Fatalf("step reply misparsed: conclusion=%q ok=%v", conclusion, ok)
	}
	if step.Index != 3 || step.Statement != "a fact" || len(step.EvidenceID) != 2 {
		t.Fatalf("step: got=%+v", step)
	}
	if !floatClose(step.Confidence, 0.75) {
		t.Fatalf("step confidence: got=%v", step.Confidence)
	}

	_, conclusion, _ = parseReasoningReply("CONCLUSION: done", 1)
	if conclusion != "done" {
		t.Fatalf("conclusion: got=%q", conclusion)
	}

	_, _, ok = parseReasoningReply("rambling without protocol lines", 1)
	if ok {
		t.Fatalf("protocol-free reply must not parse")
	}
}
