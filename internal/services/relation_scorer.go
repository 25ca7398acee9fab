package services

import (
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// neutralComponent fills component scores no evidence source produced.
const neutralComponent = 0.5

// ScorerService fuses the four component scores into a final confidence and
// assigns the triage status. Weights and thresholds come from the validated
// configuration snapshot.
type ScorerService struct {
	cfg *kgconfig.Config
	log *logger.Logger
}

func NewScorerService(cfg *kgconfig.Config, baseLog *logger.Logger) *ScorerService {
	return &ScorerService{
		cfg: cfg,
		log: baseLog.With("service", "ScorerService"),
	}
}

// Assemble derives the component scores from a merged proposal's evidence.
// The two model slots take the best raw confidence of their own evidence,
// floored by the strongest raw signal any extractor produced: strong
// evidence from one source subsumes weak corroboration from another.
// A slot with no evidence of its own takes that floor, not the neutral
// default, even when the floor is below it; the neutral default applies
// only to evidence-free proposals and to the graph component when the
// caller measured none.
func (s *ScorerService) Assemble(rel *domain.Relation, graphConsistency float64) {
	cooc, llm, raw := -1.0, -1.0, rel.Confidence
	reliability := -1.0
	for _, ev := range rel.Evidence {
		if ev.RawConfidence > raw {
			raw = ev.RawConfidence
		}
		switch ev.Method {
		case domain.MethodCooccurrence:
			if ev.RawConfidence > cooc {
				cooc = ev.RawConfidence
			}
		case domain.MethodLLM:
			if ev.RawConfidence > llm {
				llm = ev.RawConfidence
			}
		}
		if r := s.cfg.ReliabilityFor(ev.Method); r > reliability {
			reliability = r
		}
	}
	if len(rel.Evidence) == 0 {
		cooc, llm = neutralComponent, neutralComponent
	} else {
		if raw > cooc {
			cooc = raw
		}
		if raw > llm {
			llm = raw
		}
	}
	if reliability < 0 {
		reliability = s.cfg.DefaultSourceReliability
	}
	if graphConsistency < 0 {
		graphConsistency = neutralComponent
	}
	rel.ScoreComponents = domain.ScoreComponents{
		Cooccurrence:     clamp01(cooc),
		LLM:              clamp01(llm),
		Source:           clamp01(reliability),
		GraphConsistency: clamp01(graphConsistency),
	}
}

// Score computes the weighted fusion and triage status in place.
func (s *ScorerService) Score(rel *domain.Relation) {
	w := s.cfg.Weights
	c := rel.ScoreComponents
	rel.Confidence = w.Cooccurrence*c.Cooccurrence +
		w.LLM*c.LLM +
		w.Source*c.Source +
		w.Graph*c.GraphConsistency

	switch {
	case rel.Confidence >= s.cfg.Threshold.AutoApprove:
		rel.ReviewStatus = domain.StatusApproved
	case rel.Confidence >= s.cfg.Threshold.Review:
		rel.ReviewStatus = domain.StatusPending
	default:
		rel.ReviewStatus = domain.StatusRejected
	}
}

// ScoreAll assembles and scores every proposal.
func (s *ScorerService) ScoreAll(rels []domain.Relation) []domain.Relation {
	for i := range rels {
		s.Assemble(&rels[i], -1)
		s.Score(&rels[i])
	}
	return rels
}
