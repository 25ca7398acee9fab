package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scigraph/scigraph-backend/internal/data/db"
	"github.com/scigraph/scigraph-backend/internal/data/repos"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

// NormalizeOptions tunes one surface-form resolution.
type NormalizeOptions struct {
	EntityType domain.EntityType
	Context    string
	SkipLLM    bool
}

// NormalizerService resolves a surface form to a canonical identifier
// through the rule, alias, similarity, and LLM stages, short-circuiting on
// the first accepting stage.
type NormalizerService struct {
	cfg     *kgconfig.Config
	aliases repos.AliasRepo
	pg      *db.PostgresService
	llm     openai.Client
	guard   *resilience.Guard
	log     *logger.Logger
}

func NewNormalizerService(cfg *kgconfig.Config, aliases repos.AliasRepo, pg *db.PostgresService, llm openai.Client, guard *resilience.Guard, baseLog *logger.Logger) (*NormalizerService, error) {
	if aliases == nil {
		return nil, fmt.Errorf("normalizer: alias repo required")
	}
	return &NormalizerService{
		cfg:     cfg,
		aliases: aliases,
		pg:      pg,
		llm:     llm,
		guard:   guard,
		log:     baseLog.With("service", "NormalizerService"),
	}, nil
}

// Normalize resolves one surface form.
func (s *NormalizerService) Normalize(ctx context.Context, surface string, opts NormalizeOptions) (domain.NormalizationResult, error) {
	original := surface
	result := domain.NormalizationResult{
		Original:   original,
		Normalized: original,
		Stage:      domain.StageNone,
	}
	trimmed := strings.TrimSpace(surface)
	if trimmed == "" {
		return result, nil
	}

	// Stage 1: ordered rewrite rules, highest priority first. A rule that
	// changes the string resolves the surface outright.
	cleaned := trimmed
	for i := range s.cfg.Normalization.Rules {
		rule := &s.cfg.Normalization.Rules[i]
		re := rule.Compiled()
		if re == nil {
			continue
		}
		rewritten := strings.TrimSpace(re.ReplaceAllString(cleaned, rule.Replacement))
		if rewritten != "" {
			cleaned = rewritten
		}
	}
	if cleaned != trimmed {
		result.Normalized = cleaned
		result.WasNormalized = true
		result.Confidence = 1.0
		result.Stage = domain.StageRule
		return result, nil
	}

	// Stage 1b: exact alias hit. Registered surfaces resolve here on every
	// subsequent call, at least as confidently as when first registered.
	if row, err := s.lookupAlias(ctx, cleaned); err != nil {
		return result, err
	} else if row != nil {
		result.Normalized = row.Canonical
		result.WasNormalized = row.Canonical != original
		result.Confidence = row.Confidence
		result.Stage = domain.StageAlias
		return result, nil
	}

	// Unknown entity types have no candidate pool.
	if opts.EntityType != "" && !domain.ValidEntityType(opts.EntityType) {
		return result, nil
	}

	// Stage 2: ranked similarity against known canonicals.
	candidates, err := s.candidates(ctx)
	if err != nil {
		return result, err
	}
	ranked := rankCandidates(cleaned, candidates)
	if len(ranked) == 0 {
		return result, nil
	}
	best := ranked[0]

	norm := s.cfg.Normalization
	switch {
	case best.score >= norm.SimilarityAutoThreshold:
		result.Normalized = best.canonical
		result.WasNormalized = best.canonical != original
		result.Confidence = best.score
		result.Stage = domain.StageSimilarity
		result.AliasRegistered = s.register(ctx, original, best.canonical, best.score, domain.AliasSourceSimilarity)
		return result, nil

	case best.score >= norm.SimilarityReviewThreshold && !opts.SkipLLM && s.llm != nil:
		// Stage 3: ambiguous band, ask the endpoint to pick or decline.
		canonical, confidence, err := s.confirmWithLLM(ctx, cleaned, opts.Context, topCandidates(ranked, 5))
		if err != nil {
			s.log.Warn("llm confirmation unavailable", "surface", original, "error", err)
			return result, nil
		}
		if canonical == "" {
			return result, nil
		}
		confidence = clamp01(confidence * norm.LLMReliabilityFactor)
		result.Normalized = canonical
		result.WasNormalized = canonical != original
		result.Confidence = confidence
		result.Stage = domain.StageLLM
		result.AliasRegistered = s.register(ctx, original, canonical, confidence, domain.AliasSourceLLM)
		return result, nil
	}
	return result, nil
}

// NormalizeAll resolves surfaces sequentially; order of results matches
// input order.
func (s *NormalizerService) NormalizeAll(ctx context.Context, surfaces []string, opts NormalizeOptions) ([]domain.NormalizationResult, error) {
	out := make([]domain.NormalizationResult, 0, len(surfaces))
	for _, surface := range surfaces {
		res, err := s.Normalize(ctx, surface, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *NormalizerService) lookupAlias(ctx context.Context, surface string) (*domain.AliasRow, error) {
	row, err := s.aliases.GetBySurface(ctx, surface)
	if err != nil {
		return nil, fmt.Errorf("normalizer: alias lookup: %w", err)
	}
	if row == nil && surface != strings.ToLower(surface) {
		row, err = s.aliases.GetBySurface(ctx, strings.ToLower(surface))
		if err != nil {
			return nil, fmt.Errorf("normalizer: alias lookup: %w", err)
		}
	}
	return row, nil
}

// candidates is the union of canonical ids and registered surfaces mapped to
// their canonicals.
func (s *NormalizerService) candidates(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	canonicals, err := s.aliases.ListCanonicals(ctx)
	if err != nil {
		return nil, fmt.Errorf("normalizer: list canonicals: %w", err)
	}
	for _, c := range canonicals {
		out[c] = c
	}
	rows, err := s.aliases.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("normalizer: list aliases: %w", err)
	}
	for _, row := range rows {
		out[row.Surface] = row.Canonical
	}
	return out, nil
}

type candidateScore struct {
	candidate string
	canonical string
	score     float64
}

func rankCandidates(surface string, candidates map[string]string) []candidateScore {
	out := make([]candidateScore, 0, len(candidates))
	for candidate, canonical := range candidates {
		out = append(out, candidateScore{
			candidate: candidate,
			canonical: canonical,
			score:     surfaceSimilarity(surface, candidate),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].candidate < out[j].candidate
	})
	return out
}

func topCandidates(ranked []candidateScore, n int) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range ranked {
		if seen[c.canonical] {
			continue
		}
		seen[c.canonical] = true
		out = append(out, c.canonical)
		if len(out) >= n {
			break
		}
	}
	return out
}

func (s *NormalizerService) confirmWithLLM(ctx context.Context, surface, contextText string, candidates []string) (string, float64, error) {
	user := fmt.Sprintf("Surface form: %q\nCandidates: %s, none", surface, strings.Join(candidates, ", "))
	if contextText != "" {
		user += "\nContext: " + truncate(contextText, 400)
	}

	var raw string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.llm.GenerateText(ctx,
			"Pick the canonical identifier the surface form refers to, or none.\nRespond with two lines:\nCANONICAL: <candidate or NONE>\nCONFIDENCE: <0.0-1.0>",
			user)
		return callErr
	})
	if err != nil {
		return "", 0, err
	}

	canonical, confidence := "", 0.5
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasPrefixFold(line, "CANONICAL:"):
			canonical = strings.TrimSpace(line[len("CANONICAL:"):])
		case hasPrefixFold(line, "CONFIDENCE:"):
			if v, err := parseConfidence(line[len("CONFIDENCE:"):]); err == nil {
				confidence = v
			}
		}
	}
	if canonical == "" || strings.EqualFold(canonical, "none") {
		return "", 0, nil
	}
	for _, c := range candidates {
		if strings.EqualFold(c, canonical) {
			return c, confidence, nil
		}
	}
	// Answers outside the offered list are dropped, not coerced.
	return "", 0, nil
}

// register upserts the alias, serialized per surface so concurrent writers
// for the same surface apply the conflict policy one at a time.
func (s *NormalizerService) register(ctx context.Context, surface, canonical string, confidence float64, source domain.AliasSource) bool {
	if !s.cfg.Normalization.AutoRegister || surface == canonical {
		return false
	}
	registered := false
	err := s.pg.WithSurfaceLock(ctx, surface, func(ctx context.Context) error {
		row := &domain.AliasRow{
			ID:         uuid.New(),
			Surface:    surface,
			Canonical:  canonical,
			Confidence: confidence,
			Source:     source,
			CreatedAt:  time.Now().UTC(),
		}
		var upsertErr error
		registered, upsertErr = s.aliases.Upsert(ctx, row)
		return upsertErr
	})
	if err != nil {
		s.log.Warn("alias registration failed", "surface", surface, "error", err)
		return false
	}
	return registered
}
