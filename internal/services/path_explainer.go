package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

// relationPhrases renders each relation type in both traversal directions.
var relationPhrases = map[domain.RelationType][2]string{
	domain.RelDevelopedBy:      {"was developed by", "developed"},
	domain.RelTrainedOn:        {"was trained on", "was used to train"},
	domain.RelUsesTechnique:    {"uses", "is used by"},
	domain.RelEvaluatedOn:      {"was evaluated on", "was used to evaluate"},
	domain.RelCites:            {"cites", "is cited by"},
	domain.RelAffiliatedWith:   {"is affiliated with", "is affiliated with"},
	domain.RelContributedTo:    {"contributed to", "received contributions from"},
	domain.RelSpecializesIn:    {"specializes in", "is a specialty of"},
	domain.RelInfluencedBy:     {"was influenced by", "influenced"},
	domain.RelCollaboratedWith: {"collaborated with", "collaborated with"},
	domain.RelEvolvedInto:      {"evolved into", "evolved from"},
	domain.RelCompetesWith:     {"competes with", "competes with"},
	domain.RelBasedOn:          {"is based on", "is the basis of"},
}

// PathExplainerService renders a traversed path as prose. The deterministic
// template always works; an LLM rewrite is an optional polish that falls
// back to the template on any failure.
type PathExplainerService struct {
	llm   openai.Client
	guard *resilience.Guard
	log   *logger.Logger
}

func NewPathExplainerService(llm openai.Client, guard *resilience.Guard, baseLog *logger.Logger) *PathExplainerService {
	return &PathExplainerService{
		llm:   llm,
		guard: guard,
		log:   baseLog.With("service", "PathExplainerService"),
	}
}

// Explain renders the deterministic template.
func (s *PathExplainerService) Explain(path domain.Path) string {
	if len(path.Nodes) == 0 {
		return ""
	}
	if len(path.Nodes) == 1 || len(path.Relations) == 0 {
		return fmt.Sprintf("%s is the queried entity itself.", path.Nodes[0].Name)
	}

	var b strings.Builder
	for i, rel := range path.Relations {
		if i+1 >= len(path.Nodes) {
			break
		}
		from, to := path.Nodes[i], path.Nodes[i+1]
		phrase := phraseFor(rel)
		if i == 0 {
			fmt.Fprintf(&b, "%s %s %s", from.Name, phrase, to.Name)
		} else {
			fmt.Fprintf(&b, ", which %s %s", phrase, to.Name)
		}
	}
	b.WriteString(".")
	return b.String()
}

// ExplainWithLLM asks the chat endpoint to restate the template fluently.
func (s *PathExplainerService) ExplainWithLLM(ctx context.Context, path domain.Path) string {
	base := s.Explain(path)
	if s.llm == nil || base == "" {
		return base
	}

	var polished string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		polished, callErr = s.llm.GenerateText(ctx,
			"You rewrite graph-derived statements as one fluent sentence. Do not add facts.",
			base)
		return callErr
	})
	if err != nil || strings.TrimSpace(polished) == "" {
		s.log.Debug("explanation polish unavailable", "error", err)
		return base
	}
	return strings.TrimSpace(polished)
}

func phraseFor(rel domain.PathRelation) string {
	phrases, ok := relationPhrases[rel.Type]
	if !ok {
		if rel.Direction == "incoming" {
			return "is related to"
		}
		return "relates to"
	}
	if rel.Direction == "incoming" {
		return phrases[1]
	}
	return phrases[0]
}
