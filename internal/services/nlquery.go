package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

const defaultQueryLimit = 10

const nlIntentSystemPrompt = `You translate natural-language questions about a ` +
	`scientific knowledge graph into a JSON object:
{"queryType":"search|describe|compare|rank","entityTypes":[],"relationTypes":[],"entityNames":[],"orderBy":"","limit":0,"confidence":0.0}
Entity types: %s. Relation types: %s.
Respond with the JSON object only.`

// NLQueryService turns a natural-language question into a graph query:
// LLM intent parse, deterministic query generation, parameterized execution.
// No stage returns partial results; errors carry the failing stage.
type NLQueryService struct {
	llm    openai.Client
	guard  *resilience.Guard
	reader graph.Reader
	log    *logger.Logger
}

func NewNLQueryService(llm openai.Client, guard *resilience.Guard, reader graph.Reader, baseLog *logger.Logger) (*NLQueryService, error) {
	if llm == nil {
		return nil, fmt.Errorf("nlquery: llm client required")
	}
	if reader == nil {
		return nil, fmt.Errorf("nlquery: graph reader required")
	}
	return &NLQueryService{
		llm:    llm,
		guard:  guard,
		reader: reader,
		log:    baseLog.With("service", "NLQueryService"),
	}, nil
}

func (s *NLQueryService) Query(ctx context.Context, question string) (*domain.NLQueryResult, error) {
	started := time.Now()

	intent, err := s.parseIntent(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("nlquery: stage=parse: %w", err)
	}

	cypher, params, err := generateGraphQuery(*intent)
	if err != nil {
		return nil, fmt.Errorf("nlquery: stage=generate: %w", err)
	}

	rows, err := s.reader.Query(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("nlquery: stage=execute: %w", err)
	}

	expected := intent.Limit
	if expected <= 0 {
		expected = defaultQueryLimit
	}
	cardinality := float64(len(rows)) / float64(expected)
	if cardinality > 1 {
		cardinality = 1
	}

	return &domain.NLQueryResult{
		Intent:          *intent,
		GraphQuery:      cypher,
		Parameters:      params,
		Results:         rows,
		Confidence:      clamp01(intent.Confidence * cardinality),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

func (s *NLQueryService) parseIntent(ctx context.Context, question string) (*domain.QueryIntent, error) {
	system := fmt.Sprintf(nlIntentSystemPrompt,
		joinEntityTypes(domain.EntityTypes()), joinRelationTypes(domain.RelationTypes()))

	var raw string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.llm.GenerateText(ctx, system, question)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	block := extractJSONObject(raw)
	if block == "" {
		return nil, fmt.Errorf("no JSON object in reply %q", truncate(raw, 120))
	}
	var intent domain.QueryIntent
	if err := json.Unmarshal([]byte(block), &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}

	switch intent.QueryType {
	case "search", "describe", "compare", "rank":
	case "":
		intent.QueryType = "search"
	default:
		return nil, fmt.Errorf("unknown query type %q", intent.QueryType)
	}
	intent.EntityTypes = filterEntityTypes(intent.EntityTypes)
	intent.RelationTypes = filterRelationTypes(intent.RelationTypes)
	if intent.Confidence <= 0 {
		intent.Confidence = 0.5
	}
	intent.Confidence = clamp01(intent.Confidence)
	return &intent, nil
}

// generateGraphQuery is fully deterministic: identical intents produce
// identical query strings and parameters.
func generateGraphQuery(intent domain.QueryIntent) (string, map[string]any, error) {
	limit := intent.Limit
	if limit <= 0 || limit > 100 {
		limit = defaultQueryLimit
	}
	params := map[string]any{"limit": limit}

	switch intent.QueryType {
	case "search":
		var where []string
		if len(intent.EntityTypes) > 0 {
			params["types"] = typeStrings(intent.EntityTypes)
			where = append(where, "e.type IN $types")
		}
		if len(intent.EntityNames) > 0 {
			params["names"] = lowerAll(intent.EntityNames)
			where = append(where, "toLower(e.name) IN $names")
		}
		q := "MATCH (e:Entity)"
		if len(where) > 0 {
			q += "\nWHERE " + strings.Join(where, " AND ")
		}
		q += "\nRETURN e.id AS id, e.name AS name, e.type AS type, e.description AS description\nORDER BY e.name LIMIT $limit"
		return q, params, nil

	case "describe":
		if len(intent.EntityNames) == 0 {
			return "", nil, fmt.Errorf("describe requires an entity name")
		}
		params["name"] = strings.ToLower(intent.EntityNames[0])
		q := `MATCH (e:Entity)
WHERE toLower(e.name) = $name OR e.id = $name
OPTIONAL MATCH (e)-[r]-(o:Entity)
RETURN e.id AS id, e.name AS name, e.type AS type, e.description AS description,
       type(r) AS relation, o.name AS other, coalesce(r.confidence, 0.5) AS confidence
LIMIT $limit`
		return q, params, nil

	case "compare":
		if len(intent.EntityNames) < 2 {
			return "", nil, fmt.Errorf("compare requires two entity names")
		}
		params["a"] = strings.ToLower(intent.EntityNames[0])
		params["b"] = strings.ToLower(intent.EntityNames[1])
		q := `MATCH (a:Entity), (b:Entity)
WHERE toLower(a.name) = $a AND toLower(b.name) = $b
OPTIONAL MATCH (a)-[r]-(b)
RETURN a.name AS a, b.name AS b, type(r) AS relation, coalesce(r.confidence, 0.5) AS confidence
LIMIT $limit`
		return q, params, nil

	case "rank":
		var where []string
		if len(intent.EntityTypes) > 0 {
			params["types"] = typeStrings(intent.EntityTypes)
			where = append(where, "e.type IN $types")
		}
		q := "MATCH (e:Entity)"
		if len(where) > 0 {
			q += "\nWHERE " + strings.Join(where, " AND ")
		}
		q += "\nRETURN e.id AS id, e.name AS name, e.type AS type, COUNT { (e)--() } AS degree\nORDER BY degree DESC LIMIT $limit"
		return q, params, nil
	}
	return "", nil, fmt.Errorf("unknown query type %q", intent.QueryType)
}

// extractJSONObject returns the first balanced {...} block, tolerating
// fenced or prosey replies.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func filterEntityTypes(in []domain.EntityType) []domain.EntityType {
	var out []domain.EntityType
	for _, t := range in {
		if domain.ValidEntityType(t) {
			out = append(out, t)
		}
	}
	return out
}

func filterRelationTypes(in []domain.RelationType) []domain.RelationType {
	var out []domain.RelationType
	for _, t := range in {
		if domain.ValidRelationType(t) {
			out = append(out, t)
		}
	}
	return out
}

func typeStrings(in []domain.EntityType) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func joinEntityTypes(types []domain.EntityType) string {
	return strings.Join(typeStrings(types), ", ")
}

func joinRelationTypes(types []domain.RelationType) string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}
