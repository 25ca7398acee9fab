package graph

import (
	"context"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

// NeighborEdge is one edge incident to a queried entity, with the far node
// resolved.
type NeighborEdge struct {
	Other      domain.Entity
	Type       domain.RelationType
	Direction  string // "outgoing" | "incoming"
	Confidence float64
}

// Edge is a bare stored edge.
type Edge struct {
	SourceID   string
	TargetID   string
	Type       domain.RelationType
	Confidence float64
}

// Reader is the read capability over the property graph. All reasoning
// components depend on this, never on the driver.
type Reader interface {
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	FindEntityByName(ctx context.Context, name string) (*domain.Entity, error)
	Neighbors(ctx context.Context, id string, typeFilter []domain.RelationType) ([]NeighborEdge, error)
	EdgesBetween(ctx context.Context, sourceID, targetID string) ([]Edge, error)
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	CountEntities(ctx context.Context) (int64, error)
	Degree(ctx context.Context, id string) (int64, error)
	// ShortestPath returns (nil, false, nil) when the store cannot answer
	// natively; callers fall back to BFS.
	ShortestPath(ctx context.Context, startID, endID string, maxHops int) (*domain.Path, bool, error)
}

// Writer is the write capability. Only the extraction orchestrator and the
// normalizer hold one.
type Writer interface {
	UpsertEntities(ctx context.Context, entities []domain.Entity) error
	UpsertRelations(ctx context.Context, relations []domain.Relation) error
}

// Store combines both capabilities.
type Store interface {
	Reader
	Writer
}
