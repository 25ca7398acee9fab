package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

// consistencyHopBudget bounds the path-support probe.
const consistencyHopBudget = 3

// Weights of the affine score parts. Parts a claim does not exercise are
// dropped and the rest renormalized.
const (
	entityPresenceWeight = 0.4
	relationMatchWeight  = 0.4
	pathSupportWeight    = 0.2
)

// ConsistencyService validates fact claims against the stored graph:
// entity presence, relation match, and path support within a small hop
// budget fuse into one clamped score.
type ConsistencyService struct {
	cfg        *kgconfig.Config
	reader     graph.Reader
	pathfinder *PathfinderService
	llm        openai.Client
	guard      *resilience.Guard
	log        *logger.Logger
}

func NewConsistencyService(cfg *kgconfig.Config, reader graph.Reader, pathfinder *PathfinderService, llm openai.Client, guard *resilience.Guard, baseLog *logger.Logger) (*ConsistencyService, error) {
	if reader == nil {
		return nil, fmt.Errorf("consistency: graph reader required")
	}
	return &ConsistencyService{
		cfg:        cfg,
		reader:     reader,
		pathfinder: pathfinder,
		llm:        llm,
		guard:      guard,
		log:        baseLog.With("service", "ConsistencyService"),
	}, nil
}

func (s *ConsistencyService) Check(ctx context.Context, claim domain.FactClaim) (*domain.ConsistencyResult, error) {
	result := &domain.ConsistencyResult{
		Claim:                 claim,
		SupportingEvidence:    []domain.ConsistencyEvidence{},
		ContradictingEvidence: []domain.ConsistencyEvidence{},
	}

	ids := claimEntityIDs(claim)
	if len(ids) == 0 {
		result.Explanation = "The claim names no graph entities to validate against."
		return result, nil
	}

	// Part 1: entity presence.
	present := map[string]bool{}
	for _, id := range ids {
		entity, err := s.resolveEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("consistency: resolve %q: %w", id, err)
		}
		if entity == nil {
			result.ContradictingEvidence = append(result.ContradictingEvidence, domain.ConsistencyEvidence{
				Type:        "missing_entity",
				Description: fmt.Sprintf("entity %q is not in the graph", id),
				Weight:      entityPresenceWeight,
			})
			result.Suggestions = append(result.Suggestions,
				fmt.Sprintf("verify that %q is a known entity or normalize it first", id))
			continue
		}
		present[id] = true
		result.SupportingEvidence = append(result.SupportingEvidence, domain.ConsistencyEvidence{
			Type:        "matched_entity",
			Description: fmt.Sprintf("entity %q found as %s (%s)", id, entity.Name, entity.Type),
		})
	}
	entityScore := float64(len(present)) / float64(len(ids))

	score := entityPresenceWeight * entityScore
	weightSum := entityPresenceWeight

	// Part 2: relation match, when the claim asserts one.
	assertsRelation := claim.SourceEntityID != "" && claim.TargetEntityID != "" && claim.RelationType != ""
	if assertsRelation {
		weightSum += relationMatchWeight
		relScore, err := s.checkRelation(ctx, claim, present, result)
		if err != nil {
			return nil, err
		}
		score += relationMatchWeight * relScore
	}

	// Part 3: path support between the claim's endpoints.
	if s.pathfinder != nil && len(ids) >= 2 && present[ids[0]] && present[ids[1]] {
		weightSum += pathSupportWeight
		connected, err := s.pathfinder.AreConnected(ctx, ids[0], ids[1], consistencyHopBudget)
		if err != nil {
			return nil, fmt.Errorf("consistency: path probe: %w", err)
		}
		if connected {
			score += pathSupportWeight
			result.SupportingEvidence = append(result.SupportingEvidence, domain.ConsistencyEvidence{
				Type:        "path_support",
				Description: fmt.Sprintf("%s and %s are connected within %d hops", ids[0], ids[1], consistencyHopBudget),
				Weight:      pathSupportWeight,
			})
		}
	}

	result.Score = clamp01(score / weightSum)
	result.IsConsistent = result.Score >= s.consistencyThreshold()
	result.Explanation = s.explain(result)
	return result, nil
}

// CheckAll validates claims in order; one failing claim fails the batch.
func (s *ConsistencyService) CheckAll(ctx context.Context, claims []domain.FactClaim) ([]domain.ConsistencyResult, error) {
	out := make([]domain.ConsistencyResult, 0, len(claims))
	for _, claim := range claims {
		res, err := s.Check(ctx, claim)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}

func (s *ConsistencyService) checkRelation(ctx context.Context, claim domain.FactClaim, present map[string]bool, result *domain.ConsistencyResult) (float64, error) {
	if !present[claim.SourceEntityID] || !present[claim.TargetEntityID] {
		// Missing endpoints already contradicted under missing_entity.
		return 0, nil
	}
	edges, err := s.reader.EdgesBetween(ctx, claim.SourceEntityID, claim.TargetEntityID)
	if err != nil {
		return 0, fmt.Errorf("consistency: edges %s->%s: %w", claim.SourceEntityID, claim.TargetEntityID, err)
	}

	if len(edges) == 0 {
		result.ContradictingEvidence = append(result.ContradictingEvidence, domain.ConsistencyEvidence{
			Type: "missing_relation",
			Description: fmt.Sprintf("no %s edge from %s to %s in the graph",
				claim.RelationType, claim.SourceEntityID, claim.TargetEntityID),
			Weight: relationMatchWeight,
		})
		return 0, nil
	}
	for _, edge := range edges {
		if edge.Type == claim.RelationType {
			result.SupportingEvidence = append(result.SupportingEvidence, domain.ConsistencyEvidence{
				Type: "matched_relation",
				Description: fmt.Sprintf("graph contains %s -[%s]-> %s (confidence %.2f)",
					claim.SourceEntityID, edge.Type, claim.TargetEntityID, edge.Confidence),
				Weight: relationMatchWeight,
			})
			return 1, nil
		}
	}

	found := make([]string, 0, len(edges))
	for _, edge := range edges {
		found = append(found, string(edge.Type))
	}
	result.ContradictingEvidence = append(result.ContradictingEvidence, domain.ConsistencyEvidence{
		Type: "wrong_relation",
		Description: fmt.Sprintf("graph relates %s to %s via %s, not %s",
			claim.SourceEntityID, claim.TargetEntityID, strings.Join(found, "/"), claim.RelationType),
		Weight: relationMatchWeight,
	})
	result.Suggestions = append(result.Suggestions,
		fmt.Sprintf("restate the claim using the stored relation %s", strings.Join(found, " or ")))
	return 0, nil
}

func (s *ConsistencyService) resolveEntity(ctx context.Context, id string) (*domain.Entity, error) {
	entity, err := s.reader.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity != nil {
		return entity, nil
	}
	return s.reader.FindEntityByName(ctx, id)
}

func (s *ConsistencyService) consistencyThreshold() float64 {
	if s.cfg != nil && s.cfg.ConsistencyThreshold > 0 {
		return s.cfg.ConsistencyThreshold
	}
	return 0.7
}

func (s *ConsistencyService) explain(result *domain.ConsistencyResult) string {
	if result.IsConsistent {
		return fmt.Sprintf("The claim is consistent with the graph (score %.2f, %d supporting facts).",
			result.Score, len(result.SupportingEvidence))
	}
	return fmt.Sprintf("The claim conflicts with the graph (score %.2f, %d contradictions).",
		result.Score, len(result.ContradictingEvidence))
}

func claimEntityIDs(claim domain.FactClaim) []string {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(claim.SourceEntityID)
	add(claim.TargetEntityID)
	for _, id := range claim.EntityIDs {
		add(id)
	}
	return out
}

const claimExtractionSystemPrompt = `You extract factual claims from text as a JSON array:
[{"text":"...","entityIds":["..."],"sourceEntityId":"","targetEntityId":"","relationType":"","confidence":0.0}]
Relation types: %s. Respond with the JSON array only.`

// ExtractClaims pulls fact claims from free text. The LLM path is optional;
// the sentence-segmentation fallback always returns at least one claim for
// non-empty text.
func (s *ConsistencyService) ExtractClaims(ctx context.Context, text string) ([]domain.FactClaim, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.FactClaim{}, nil
	}

	if s.llm != nil {
		claims, err := s.extractClaimsLLM(ctx, text)
		if err != nil {
			s.log.Warn("llm claim extraction unavailable, segmenting instead", "error", err)
		} else if len(claims) > 0 {
			return claims, nil
		}
	}
	return segmentClaims(text), nil
}

func (s *ConsistencyService) extractClaimsLLM(ctx context.Context, text string) ([]domain.FactClaim, error) {
	system := fmt.Sprintf(claimExtractionSystemPrompt, joinRelationTypes(domain.RelationTypes()))

	var raw string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.llm.GenerateText(ctx, system, truncate(text, 4000))
		return callErr
	})
	if err != nil {
		return nil, err
	}

	block := extractJSONArray(raw)
	if block == "" {
		return nil, fmt.Errorf("no JSON array in reply")
	}
	var claims []domain.FactClaim
	if err := json.Unmarshal([]byte(block), &claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	out := claims[:0]
	for _, c := range claims {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if c.RelationType != "" && !domain.ValidRelationType(c.RelationType) {
			c.RelationType = ""
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		out = append(out, c)
	}
	return out, nil
}

// segmentClaims is the deterministic fallback: one claim per sentence that
// mentions a recognizable surface, or the whole text when none do.
func segmentClaims(text string) []domain.FactClaim {
	var out []domain.FactClaim
	for _, sentence := range splitSentences(text) {
		surfaces := recognizeSurfaces(sentence)
		if len(surfaces) == 0 {
			continue
		}
		ids := make([]string, 0, len(surfaces))
		for _, e := range surfaces {
			ids = append(ids, e.ID)
		}
		out = append(out, domain.FactClaim{
			ID:        uuid.NewString(),
			Text:      sentence,
			EntityIDs: ids,
		})
	}
	if len(out) == 0 {
		out = append(out, domain.FactClaim{
			ID:   uuid.NewString(),
			Text: strings.TrimSpace(text),
		})
	}
	return out
}

// extractJSONArray returns the first balanced [...] block.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
