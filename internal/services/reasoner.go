package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/qdrant"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

const (
	defaultMaxSteps        = 5
	defaultConfidenceFloor = 0.3
	seedSearchTopK         = 5
)

// ReasonOptions tunes one reasoning run.
type ReasonOptions struct {
	EntityIDs       []string
	MaxSteps        int
	ConfidenceFloor float64
}

// ReasonerService answers questions by stepwise chain-of-thought over a
// retrieved subgraph. Each step cites subgraph fact ids; the overall
// confidence is the minimum step confidence.
type ReasonerService struct {
	reader   graph.Reader
	llm      openai.Client
	guard    *resilience.Guard
	embedder *EmbeddingService
	vectors  qdrant.VectorStore
	log      *logger.Logger
}

func NewReasonerService(reader graph.Reader, llm openai.Client, guard *resilience.Guard, embedder *EmbeddingService, vectors qdrant.VectorStore, baseLog *logger.Logger) (*ReasonerService, error) {
	if reader == nil {
		return nil, fmt.Errorf("reasoner: graph reader required")
	}
	if llm == nil {
		return nil, fmt.Errorf("reasoner: llm client required")
	}
	return &ReasonerService{
		reader:   reader,
		llm:      llm,
		guard:    guard,
		embedder: embedder,
		vectors:  vectors,
		log:      baseLog.With("service", "ReasonerService"),
	}, nil
}

type subgraphFact struct {
	id   string
	text string
}

func (s *ReasonerService) Reason(ctx context.Context, question string, opts ReasonOptions) (*domain.ReasoningResult, error) {
	started := time.Now()
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	floor := opts.ConfidenceFloor
	if floor <= 0 {
		floor = defaultConfidenceFloor
	}

	seeds, err := s.seedEntities(ctx, question, opts.EntityIDs)
	if err != nil {
		return nil, err
	}
	facts, err := s.retrieveSubgraph(ctx, seeds)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return &domain.ReasoningResult{
			Question:    question,
			Conclusion:  "The graph holds no facts about the entities in this question.",
			Confidence:  0,
			TotalTimeMs: time.Since(started).Milliseconds(),
		}, nil
	}

	result := &domain.ReasoningResult{Question: question, Confidence: 1}
	for len(result.Steps) < maxSteps {
		reply, err := s.promptStep(ctx, question, facts, result.Steps)
		if err != nil {
			return nil, fmt.Errorf("reasoner: step %d: %w", len(result.Steps)+1, err)
		}
		step, conclusion, ok := parseReasoningReply(reply, len(result.Steps)+1)
		if conclusion != "" {
			result.Conclusion = conclusion
			break
		}
		if !ok {
			s.log.Warn("unparseable reasoning step", "reply", truncate(reply, 200))
			break
		}
		result.Steps = append(result.Steps, step)
		if step.Confidence < result.Confidence {
			result.Confidence = step.Confidence
		}
		if step.Confidence < floor {
			break
		}
	}

	if result.Conclusion == "" {
		conclusion, err := s.synthesize(ctx, question, result.Steps)
		if err != nil {
			return nil, fmt.Errorf("reasoner: synthesize: %w", err)
		}
		result.Conclusion = conclusion
	}
	if len(result.Steps) == 0 {
		result.Confidence = 0
	}
	result.TotalTimeMs = time.Since(started).Milliseconds()
	return result, nil
}

// seedEntities uses caller-supplied ids when present, else vector search on
// the question, else a name match against capitalized question tokens.
func (s *ReasonerService) seedEntities(ctx context.Context, question string, entityIDs []string) ([]string, error) {
	if len(entityIDs) > 0 {
		return entityIDs, nil
	}

	if s.embedder != nil && s.vectors != nil {
		vec, err := s.embedder.Embed(ctx, question)
		if err == nil {
			matches, searchErr := s.vectors.Search(ctx, vec, seedSearchTopK, nil, 0.5)
			if searchErr == nil && len(matches) > 0 {
				var ids []string
				for _, m := range matches {
					if id, ok := m.Payload["entity_id"].(string); ok && id != "" {
						ids = append(ids, id)
					} else {
						ids = append(ids, m.ID)
					}
				}
				return ids, nil
			}
		} else {
			s.log.Debug("seed embedding unavailable", "error", err)
		}
	}

	var ids []string
	for _, e := range recognizeSurfaces(question) {
		found, err := s.reader.FindEntityByName(ctx, e.Name)
		if err != nil {
			return nil, fmt.Errorf("reasoner: seed lookup %q: %w", e.Name, err)
		}
		if found != nil {
			ids = append(ids, found.ID)
		}
	}
	return ids, nil
}

// retrieveSubgraph gathers each seed's one-hop neighborhood as numbered
// facts the prompts can cite.
func (s *ReasonerService) retrieveSubgraph(ctx context.Context, seeds []string) ([]subgraphFact, error) {
	var facts []subgraphFact
	seen := map[string]bool{}
	for _, id := range seeds {
		entity, err := s.reader.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reasoner: subgraph %s: %w", id, err)
		}
		if entity == nil {
			continue
		}
		edges, err := s.reader.Neighbors(ctx, entity.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("reasoner: subgraph %s: %w", id, err)
		}
		for _, edge := range edges {
			var text string
			if edge.Direction == "incoming" {
				text = fmt.Sprintf("%s -[%s]-> %s (confidence %.2f)", edge.Other.Name, edge.Type, entity.Name, edge.Confidence)
			} else {
				text = fmt.Sprintf("%s -[%s]-> %s (confidence %.2f)", entity.Name, edge.Type, edge.Other.Name, edge.Confidence)
			}
			if seen[text] {
				continue
			}
			seen[text] = true
			facts = append(facts, subgraphFact{
				id:   fmt.Sprintf("F%d", len(facts)+1),
				text: text,
			})
		}
	}
	return facts, nil
}

const reasonStepSystemPrompt = `You reason step by step over graph facts. ` +
	`Emit exactly one next step, or the conclusion if the question is answered:
STEP: <one statement>
EVIDENCE: <comma-separated fact ids>
CONFIDENCE: <0.0-1.0>
or
CONCLUSION: <final answer>`

func (s *ReasonerService) promptStep(ctx context.Context, question string, facts []subgraphFact, steps []domain.ReasoningStep) (string, error) {
	var b strings.Builder
	b.WriteString("Question: " + question + "\n\nFacts:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "%s: %s\n", f.id, f.text)
	}
	if len(steps) > 0 {
		b.WriteString("\nSteps so far:\n")
		for _, st := range steps {
			fmt.Fprintf(&b, "%d. %s\n", st.Index, st.Statement)
		}
	}

	var reply string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		reply, callErr = s.llm.GenerateText(ctx, reasonStepSystemPrompt, b.String())
		return callErr
	})
	return reply, err
}

func (s *ReasonerService) synthesize(ctx context.Context, question string, steps []domain.ReasoningStep) (string, error) {
	if len(steps) == 0 {
		return "No reasoning steps could be grounded on the retrieved subgraph.", nil
	}
	var b strings.Builder
	b.WriteString("Question: " + question + "\nSteps:\n")
	for _, st := range steps {
		fmt.Fprintf(&b, "%d. %s\n", st.Index, st.Statement)
	}

	var reply string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		reply, callErr = s.llm.GenerateText(ctx,
			"Synthesize the reasoning steps into one concluding answer.", b.String())
		return callErr
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func parseReasoningReply(raw string, index int) (domain.ReasoningStep, string, bool) {
	step := domain.ReasoningStep{Index: index, Confidence: 0.5}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasPrefixFold(line, "CONCLUSION:"):
			return step, strings.TrimSpace(line[len("CONCLUSION:"):]), false
		case hasPrefixFold(line, "STEP:"):
			step.Statement = strings.TrimSpace(line[len("STEP:"):])
		case hasPrefixFold(line, "EVIDENCE:"):
			for _, id := range strings.Split(line[len("EVIDENCE:"):], ",") {
				if id = strings.TrimSpace(id); id != "" {
					step.EvidenceID = append(step.EvidenceID, id)
				}
			}
		case hasPrefixFold(line, "CONFIDENCE:"):
			if v, err := parseConfidence(line[len("CONFIDENCE:"):]); err == nil {
				step.Confidence = v
			}
		}
	}
	return step, "", step.Statement != ""
}
