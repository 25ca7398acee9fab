package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

const llmRelationSystemPrompt = `You classify the relationship between two ` +
	`entities mentioned in scientific text. Respond with exactly three lines:
RELATION_TYPE: <one type from the allowed list, or NONE>
CONFIDENCE: <number between 0.0 and 1.0>
EXPLANATION: <one sentence>`

// LLMRelationService asks the chat endpoint for a relation type between two
// entities given their surrounding text. The service is optional: with no
// client it is disabled and the pipeline runs on the other evidence sources.
type LLMRelationService struct {
	llm   openai.Client
	guard *resilience.Guard
	cfg   *kgconfig.Config
	log   *logger.Logger
}

func NewLLMRelationService(llm openai.Client, guard *resilience.Guard, cfg *kgconfig.Config, baseLog *logger.Logger) *LLMRelationService {
	return &LLMRelationService{
		llm:   llm,
		guard: guard,
		cfg:   cfg,
		log:   baseLog.With("service", "LLMRelationService"),
	}
}

func (s *LLMRelationService) Enabled() bool {
	return s != nil && s.llm != nil
}

// Infer returns one relation proposal, or nil with no error when the
// endpoint declined, answered out of vocabulary, or the response did not
// parse. Transport failures surface as errors so the breaker can count them.
func (s *LLMRelationService) Infer(ctx context.Context, docID, window string, a, b domain.DocumentEntity) (*domain.Relation, error) {
	if !s.Enabled() {
		return nil, nil
	}

	allowed := s.extractableTypes()
	user := fmt.Sprintf(
		"Entity A: %s (%s)\nEntity B: %s (%s)\n\nText:\n%s\n\nAllowed relation types: %s\nWhich relation, if any, holds from A to B?",
		a.Name, a.Type, b.Name, b.Type, truncate(window, 1200), strings.Join(allowed, ", "))

	var raw string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.llm.GenerateText(ctx, llmRelationSystemPrompt, user)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("llm relation inference: %w", err)
	}

	relType, confidence, explanation, ok := parseRelationReply(raw)
	if !ok {
		s.log.Warn("unparseable relation reply", "doc_id", docID, "reply", truncate(raw, 200))
		return nil, nil
	}
	if relType == "NONE" {
		return nil, nil
	}
	rt := domain.RelationType(relType)
	if !domain.ValidRelationType(rt) {
		s.log.Warn("out-of-vocabulary relation type dropped", "doc_id", docID, "type", relType)
		return nil, nil
	}

	return &domain.Relation{
		Source:     a.ID,
		Target:     b.ID,
		Type:       rt,
		Confidence: confidence,
		Method:     domain.MethodLLM,
		Evidence: []domain.Evidence{{
			DocumentID:     docID,
			ContextSnippet: explanation,
			Method:         domain.MethodLLM,
			RawConfidence:  confidence,
		}},
	}, nil
}

func (s *LLMRelationService) extractableTypes() []string {
	var out []string
	for _, rt := range domain.RelationTypes() {
		if def, ok := s.cfg.Relations[rt]; ok && def.Extractable {
			out = append(out, string(rt))
		}
	}
	return out
}

// parseRelationReply tolerates reordered lines, surrounding prose, and
// percent-style confidences. It fails closed: missing relation line means
// no proposal.
func parseRelationReply(raw string) (relType string, confidence float64, explanation string, ok bool) {
	confidence = 0.5
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasPrefixFold(line, "RELATION_TYPE:"):
			relType = strings.ToUpper(strings.TrimSpace(line[len("RELATION_TYPE:"):]))
		case hasPrefixFold(line, "CONFIDENCE:"):
			if v, err := parseConfidence(line[len("CONFIDENCE:"):]); err == nil {
				confidence = v
			}
		case hasPrefixFold(line, "EXPLANATION:"):
			explanation = strings.TrimSpace(line[len("EXPLANATION:"):])
		}
	}
	return relType, confidence, explanation, relType != ""
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// parseConfidence tolerates percent-style values ("85%" means 0.85) and
// clamps into [0,1].
func parseConfidence(raw string) (float64, error) {
	val := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	if parsed > 1 {
		parsed /= 100
	}
	return clamp01(parsed), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
