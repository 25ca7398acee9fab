package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/neo4jdb"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// Neo4jStore implements Store against a Cypher property graph. Every entity
// carries the shared :Entity label plus its type label so cross-type lookups
// stay one index away.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	return &Neo4jStore{
		client: client,
		log:    baseLog.With("service", "Neo4jStore"),
	}, nil
}

// EnsureSchema creates the uniqueness constraint and name index.
// Best-effort: restricted users may not hold schema privileges.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE INDEX entity_name_idx IF NOT EXISTS FOR (e:Entity) ON (e.name)`,
	}
	for _, stmt := range statements {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *Neo4jStore) UpsertEntities(ctx context.Context, entities []domain.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	byType := make(map[domain.EntityType][]map[string]any)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entities {
		if strings.TrimSpace(e.ID) == "" {
			continue
		}
		if !domain.ValidEntityType(e.Type) {
			return fmt.Errorf("graph: upsert entity %q: unknown type %q", e.ID, e.Type)
		}
		attrs := ""
		if len(e.Attributes) > 0 {
			raw, err := json.Marshal(e.Attributes)
			if err != nil {
				return fmt.Errorf("graph: encode attributes for %q: %w", e.ID, err)
			}
			attrs = string(raw)
		}
		byType[e.Type] = append(byType[e.Type], map[string]any{
			"id":              e.ID,
			"name":            e.Name,
			"description":     e.Description,
			"attributes_json": attrs,
			"synced_at":       now,
		})
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for entityType, rows := range byType {
			// Type labels come from the closed vocabulary, validated above;
			// Cypher has no parameterized labels.
			query := fmt.Sprintf(`
UNWIND $rows AS row
MERGE (e:Entity {id: row.id})
ON CREATE SET e.name = row.name, e.created_at = row.synced_at
SET e:%s,
    e.description = CASE WHEN row.description <> '' THEN row.description ELSE e.description END,
    e.attributes_json = CASE WHEN row.attributes_json <> '' THEN row.attributes_json ELSE e.attributes_json END,
    e.synced_at = row.synced_at,
    e.type = '%s'`, entityType, entityType)
			res, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			if err != nil {
				return nil, fmt.Errorf("upsert %s nodes: %w", entityType, err)
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jStore) UpsertRelations(ctx context.Context, relations []domain.Relation) error {
	if len(relations) == 0 {
		return nil
	}

	byType := make(map[domain.RelationType][]map[string]any)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range relations {
		if r.Source == "" || r.Target == "" {
			continue
		}
		if !domain.ValidRelationType(r.Type) {
			return fmt.Errorf("graph: upsert relation %s->%s: unknown type %q", r.Source, r.Target, r.Type)
		}
		evidence := make([]string, 0, len(r.Evidence))
		for _, ev := range r.Evidence {
			raw, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("graph: encode evidence for %s->%s: %w", r.Source, r.Target, err)
			}
			evidence = append(evidence, string(raw))
		}
		byType[r.Type] = append(byType[r.Type], map[string]any{
			"source_id":     r.Source,
			"target_id":     r.Target,
			"confidence":    r.Confidence,
			"method":        string(r.Method),
			"review_status": string(r.ReviewStatus),
			"evidence":      evidence,
			"synced_at":     now,
		})
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for relType, rows := range byType {
			// One relation per (source, target, type); repeats merge evidence
			// and keep the higher confidence.
			query := fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:Entity {id: row.source_id})
MATCH (b:Entity {id: row.target_id})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.confidence = row.confidence,
              r.method = row.method,
              r.review_status = row.review_status,
              r.evidence = row.evidence,
              r.created_at = row.synced_at
ON MATCH SET r.confidence = CASE WHEN row.confidence > r.confidence THEN row.confidence ELSE r.confidence END,
             r.review_status = row.review_status,
             r.evidence = r.evidence + row.evidence
SET r.synced_at = row.synced_at`, relType)
			res, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			if err != nil {
				return nil, fmt.Errorf("upsert %s edges: %w", relType, err)
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jStore) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	rows, err := s.Query(ctx,
		`MATCH (e:Entity {id: $id})
		 RETURN e.id AS id, e.name AS name, e.type AS type, e.description AS description, e.attributes_json AS attributes_json`,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return entityFromRow(rows[0]), nil
}

func (s *Neo4jStore) FindEntityByName(ctx context.Context, name string) (*domain.Entity, error) {
	rows, err := s.Query(ctx,
		`MATCH (e:Entity)
		 WHERE e.id = $name OR toLower(e.name) = toLower($name)
		 RETURN e.id AS id, e.name AS name, e.type AS type, e.description AS description, e.attributes_json AS attributes_json
		 ORDER BY e.id LIMIT 1`,
		map[string]any{"name": strings.TrimSpace(name)})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return entityFromRow(rows[0]), nil
}

func (s *Neo4jStore) Neighbors(ctx context.Context, id string, typeFilter []domain.RelationType) ([]NeighborEdge, error) {
	filter := make([]string, 0, len(typeFilter))
	for _, t := range typeFilter {
		if !domain.ValidRelationType(t) {
			return nil, fmt.Errorf("graph: neighbors: unknown relation type %q", t)
		}
		filter = append(filter, string(t))
	}

	query := `MATCH (e:Entity {id: $id})-[r]-(o:Entity)
WHERE size($types) = 0 OR type(r) IN $types
RETURN type(r) AS rel_type,
       coalesce(r.confidence, 0.5) AS confidence,
       startNode(r).id AS start_id,
       o.id AS id, o.name AS name, o.type AS type, o.description AS description, o.attributes_json AS attributes_json`
	rows, err := s.Query(ctx, query, map[string]any{"id": id, "types": filter})
	if err != nil {
		return nil, err
	}

	out := make([]NeighborEdge, 0, len(rows))
	for _, row := range rows {
		edge := NeighborEdge{
			Other:      *entityFromRow(row),
			Type:       domain.RelationType(asString(row["rel_type"])),
			Confidence: asFloat(row["confidence"]),
			Direction:  "outgoing",
		}
		if asString(row["start_id"]) != id {
			edge.Direction = "incoming"
		}
		out = append(out, edge)
	}
	return out, nil
}

func (s *Neo4jStore) EdgesBetween(ctx context.Context, sourceID, targetID string) ([]Edge, error) {
	rows, err := s.Query(ctx,
		`MATCH (a:Entity {id: $source})-[r]->(b:Entity {id: $target})
		 RETURN type(r) AS rel_type, coalesce(r.confidence, 0.5) AS confidence`,
		map[string]any{"source": sourceID, "target": targetID})
	if err != nil {
		return nil, err
	}
	out := make([]Edge, 0, len(rows))
	for _, row := range rows {
		out = append(out, Edge{
			SourceID:   sourceID,
			TargetID:   targetID,
			Type:       domain.RelationType(asString(row["rel_type"])),
			Confidence: asFloat(row["confidence"]),
		})
	}
	return out, nil
}

func (s *Neo4jStore) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, rec.AsMap())
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}
	return result.([]map[string]any), nil
}

func (s *Neo4jStore) CountEntities(ctx context.Context) (int64, error) {
	rows, err := s.Query(ctx, `MATCH (e:Entity) RETURN count(e) AS n`, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt(rows[0]["n"]), nil
}

func (s *Neo4jStore) Degree(ctx context.Context, id string) (int64, error) {
	rows, err := s.Query(ctx,
		`MATCH (e:Entity {id: $id}) RETURN COUNT { (e)--() } AS n`,
		map[string]any{"id": id})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt(rows[0]["n"]), nil
}

func (s *Neo4jStore) ShortestPath(ctx context.Context, startID, endID string, maxHops int) (*domain.Path, bool, error) {
	if maxHops <= 0 {
		maxHops = 6
	}
	query := fmt.Sprintf(
		`MATCH (a:Entity {id: $start}), (b:Entity {id: $end}),
		 p = shortestPath((a)-[*..%d]-(b))
		 RETURN p`, maxHops)

	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"start": startID, "end": endID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		raw, _ := record.Get("p")
		p, ok := raw.(dbtype.Path)
		if !ok {
			return nil, fmt.Errorf("unexpected path value %T", raw)
		}
		return pathFromDB(p), nil
	})
	if err != nil {
		// shortestPath may be unavailable or the pair unconnected; callers
		// fall back to BFS either way.
		s.log.Debug("native shortest path unavailable", "start", startID, "end", endID, "error", err)
		return nil, false, nil
	}
	return result.(*domain.Path), true, nil
}

func pathFromDB(p dbtype.Path) *domain.Path {
	out := &domain.Path{
		Nodes:     make([]domain.Entity, 0, len(p.Nodes)),
		Relations: make([]domain.PathRelation, 0, len(p.Relationships)),
	}
	elementIDs := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		props := n.Props
		out.Nodes = append(out.Nodes, domain.Entity{
			ID:          asString(props["id"]),
			Name:        asString(props["name"]),
			Type:        domain.EntityType(asString(props["type"])),
			Description: asString(props["description"]),
		})
		elementIDs = append(elementIDs, n.ElementId)
	}
	for i, rel := range p.Relationships {
		direction := "outgoing"
		if i < len(elementIDs)-1 && rel.StartElementId != elementIDs[i] {
			direction = "incoming"
		}
		out.Relations = append(out.Relations, domain.PathRelation{
			Type:       domain.RelationType(rel.Type),
			Direction:  direction,
			Confidence: asFloat(rel.Props["confidence"]),
		})
	}
	out.Hops = len(out.Relations)
	return out
}

func entityFromRow(row map[string]any) *domain.Entity {
	e := &domain.Entity{
		ID:          asString(row["id"]),
		Name:        asString(row["name"]),
		Type:        domain.EntityType(asString(row["type"])),
		Description: asString(row["description"]),
	}
	if raw := asString(row["attributes_json"]); raw != "" {
		attrs := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &attrs); err == nil {
			e.Attributes = attrs
		}
	}
	return e
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
