package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/qdrant"
)

func testLogger() *logger.Logger { return logger.NewNop() }

func testConfig() *kgconfig.Config {
	cfg := kgconfig.Default()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// memGraph is an in-memory graph.Store for service tests.
type memGraph struct {
	mu        sync.Mutex
	entities  map[string]domain.Entity
	edges     []graph.Edge
	queryRows []map[string]any
	lastQuery string
	lastArgs  map[string]any
}

func newMemGraph() *memGraph {
	return &memGraph{entities: map[string]domain.Entity{}}
}

func (g *memGraph) addEntity(e domain.Entity) {
	g.entities[e.ID] = e
}

func (g *memGraph) addEdge(source, target string, relType domain.RelationType, confidence float64) {
	g.edges = append(g.edges, graph.Edge{
		SourceID: source, TargetID: target, Type: relType, Confidence: confidence,
	})
}

func (g *memGraph) GetEntity(_ context.Context, id string) (*domain.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entities[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (g *memGraph) FindEntityByName(_ context.Context, name string) (*domain.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entities[name]; ok {
		return &e, nil
	}
	for _, e := range g.entities {
		if strings.EqualFold(e.Name, name) {
			return &e, nil
		}
	}
	return nil, nil
}

func (g *memGraph) Neighbors(_ context.Context, id string, typeFilter []domain.RelationType) ([]graph.NeighborEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	allowed := func(t domain.RelationType) bool {
		if len(typeFilter) == 0 {
			return true
		}
		for _, f := range typeFilter {
			if f == t {
				return true
			}
		}
		return false
	}
	var out []graph.NeighborEdge
	for _, edge := range g.edges {
		if !allowed(edge.Type) {
			continue
		}
		switch id {
		case edge.SourceID:
			out = append(out, graph.NeighborEdge{
				Other: g.entities[edge.TargetID], Type: edge.Type,
				Direction: "outgoing", Confidence: edge.Confidence,
			})
		case edge.TargetID:
			out = append(out, graph.NeighborEdge{
				Other: g.entities[edge.SourceID], Type: edge.Type,
				Direction: "incoming", Confidence: edge.Confidence,
			})
		}
	}
	return out, nil
}

func (g *memGraph) EdgesBetween(_ context.Context, sourceID, targetID string) ([]graph.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []graph.Edge
	for _, edge := range g.edges {
		if edge.SourceID == sourceID && edge.TargetID == targetID {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (g *memGraph) Query(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastQuery = cypher
	g.lastArgs = params
	return g.queryRows, nil
}

func (g *memGraph) CountEntities(context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int64(len(g.entities)), nil
}

func (g *memGraph) Degree(_ context.Context, id string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var n int64
	for _, edge := range g.edges {
		if edge.SourceID == id || edge.TargetID == id {
			n++
		}
	}
	return n, nil
}

func (g *memGraph) ShortestPath(context.Context, string, string, int) (*domain.Path, bool, error) {
	return nil, false, nil
}

func (g *memGraph) UpsertEntities(_ context.Context, entities []domain.Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range entities {
		g.entities[e.ID] = e
	}
	return nil
}

func (g *memGraph) UpsertRelations(_ context.Context, relations []domain.Relation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range relations {
		g.edges = append(g.edges, graph.Edge{
			SourceID: r.Source, TargetID: r.Target, Type: r.Type, Confidence: r.Confidence,
		})
	}
	return nil
}

// memVectors is an in-memory qdrant.VectorStore for service tests.
type memVectors struct {
	mu     sync.Mutex
	points map[string]qdrant.Vector
}

func newMemVectors() *memVectors {
	return &memVectors{points: map[string]qdrant.Vector{}}
}

func (v *memVectors) EnsureCollection(context.Context) error { return nil }

func (v *memVectors) Upsert(_ context.Context, vectors []qdrant.Vector) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, vec := range vectors {
		v.points[vec.ID] = vec
	}
	return nil
}

func (v *memVectors) Search(_ context.Context, _ []float32, topK int, _ map[string]any, _ float64) ([]qdrant.Match, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []qdrant.Match
	for id, vec := range v.points {
		if len(out) == topK {
			break
		}
		out = append(out, qdrant.Match{ID: id, Score: 1, Payload: vec.Payload})
	}
	return out, nil
}

func (v *memVectors) Fetch(_ context.Context, ids []string) ([]qdrant.Point, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []qdrant.Point
	for _, id := range ids {
		if vec, ok := v.points[id]; ok {
			out = append(out, qdrant.Point{ID: id, Values: vec.Values, Payload: vec.Payload})
		}
	}
	return out, nil
}

func (v *memVectors) Count(context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.points), nil
}

func (v *memVectors) Delete(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.points, id)
	}
	return nil
}

// fakeChat scripts the openai.Client surface. Replies are consumed in order;
// running out repeats the last one.
type fakeChat struct {
	mu        sync.Mutex
	replies   []string
	chatCalls int
	chatErr   error
	embedFn   func(inputs []string) ([][]float32, error)
	embedCall int
}

func (f *fakeChat) GenerateText(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if len(f.replies) == 0 {
		return "", fmt.Errorf("fakeChat: no scripted reply")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeChat) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCall++
	if f.embedFn != nil {
		return f.embedFn(inputs)
	}
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

func (f *fakeChat) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCall
}
