package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/scigraph/scigraph-backend/internal/data/graph"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

const (
	defaultMaxHops  = 6
	defaultMaxPaths = 10
)

// PathOptions tunes one path query. Zero values take the defaults; a
// MaxHops of 0 must be set explicitly through ZeroHops.
type PathOptions struct {
	MaxHops       int
	ZeroHops      bool
	RelationTypes []domain.RelationType
	MaxPaths      int
}

func (o PathOptions) maxHops() int {
	if o.ZeroHops {
		return 0
	}
	if o.MaxHops <= 0 {
		return defaultMaxHops
	}
	return o.MaxHops
}

func (o PathOptions) maxPaths() int {
	if o.MaxPaths <= 0 {
		return defaultMaxPaths
	}
	return o.MaxPaths
}

// PathfinderService enumerates bounded-hop paths between entities by
// breadth-first expansion, with a per-path visited set so no node repeats.
type PathfinderService struct {
	reader graph.Reader
	cache  *PathCache
	log    *logger.Logger
}

func NewPathfinderService(reader graph.Reader, cache *PathCache, baseLog *logger.Logger) (*PathfinderService, error) {
	if reader == nil {
		return nil, fmt.Errorf("pathfinder: graph reader required")
	}
	return &PathfinderService{
		reader: reader,
		cache:  cache,
		log:    baseLog.With("service", "PathfinderService"),
	}, nil
}

type frontierEntry struct {
	node      domain.Entity
	relations []domain.PathRelation
	nodes     []domain.Entity
	visited   map[string]bool
}

// FindPaths enumerates all simple paths from startName to endName within the
// hop bound, ordered by hops ascending then accumulated confidence
// descending. Results are cached.
func (s *PathfinderService) FindPaths(ctx context.Context, startName, endName string, opts PathOptions) (*domain.PathResult, error) {
	start, err := s.resolve(ctx, startName)
	if err != nil {
		return nil, err
	}
	end, err := s.resolve(ctx, endName)
	if err != nil {
		return nil, err
	}
	maxHops := opts.maxHops()

	key := PathCacheKey(start.ID, end.ID, maxHops, opts.RelationTypes)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	result := &domain.PathResult{
		Start:      start.ID,
		End:        end.ID,
		MaxHops:    maxHops,
		ComputedAt: time.Now().UTC(),
		Paths:      []domain.Path{},
	}

	if maxHops == 0 {
		if start.ID == end.ID {
			result.Paths = append(result.Paths, trivialPath(*start))
		}
	} else {
		paths, truncated, err := s.bfs(ctx, *start, end.ID, maxHops, opts)
		if err != nil {
			return nil, err
		}
		result.Paths = paths
		result.Truncated = truncated
	}

	if s.cache != nil {
		s.cache.Put(key, *result)
	}
	return result, nil
}

// FindShortestPath prefers the store's native shortest path and falls back
// to BFS. A nil path with nil error means no connection within the bound.
func (s *PathfinderService) FindShortestPath(ctx context.Context, startName, endName string, opts PathOptions) (*domain.Path, error) {
	start, err := s.resolve(ctx, startName)
	if err != nil {
		return nil, err
	}
	end, err := s.resolve(ctx, endName)
	if err != nil {
		return nil, err
	}
	maxHops := opts.maxHops()
	if maxHops == 0 {
		if start.ID == end.ID {
			p := trivialPath(*start)
			return &p, nil
		}
		return nil, nil
	}
	if start.ID == end.ID {
		p := trivialPath(*start)
		return &p, nil
	}

	// Native shortest path ignores edge-type filters; only usable without.
	if len(opts.RelationTypes) == 0 {
		if p, ok, err := s.reader.ShortestPath(ctx, start.ID, end.ID, maxHops); err == nil && ok && p != nil {
			p.Score = scorePath(p.Relations)
			return p, nil
		}
	}

	opts.MaxPaths = 1
	paths, _, err := s.bfs(ctx, *start, end.ID, maxHops, opts)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return &paths[0], nil
}

// AreConnected reports reachability within the bound.
func (s *PathfinderService) AreConnected(ctx context.Context, startName, endName string, maxHops int) (bool, error) {
	p, err := s.FindShortestPath(ctx, startName, endName, PathOptions{MaxHops: maxHops})
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// DegreesOfSeparation returns the shortest hop count; ok is false when the
// pair is unconnected within the default bound.
func (s *PathfinderService) DegreesOfSeparation(ctx context.Context, startName, endName string) (int, bool, error) {
	p, err := s.FindShortestPath(ctx, startName, endName, PathOptions{})
	if err != nil {
		return 0, false, err
	}
	if p == nil {
		return 0, false, nil
	}
	return p.Hops, true, nil
}

func (s *PathfinderService) resolve(ctx context.Context, name string) (*domain.Entity, error) {
	e, err := s.reader.FindEntityByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pathfinder: resolve %q: %w", name, err)
	}
	if e == nil {
		return nil, fmt.Errorf("pathfinder: entity %q not found", name)
	}
	return e, nil
}

func (s *PathfinderService) bfs(ctx context.Context, start domain.Entity, endID string, maxHops int, opts PathOptions) ([]domain.Path, bool, error) {
	maxPaths := opts.maxPaths()
	frontier := []frontierEntry{{
		node:    start,
		nodes:   []domain.Entity{start},
		visited: map[string]bool{start.ID: true},
	}}

	var found []domain.Path
	truncated := false

	for hop := 0; hop < maxHops && len(frontier) > 0 && !truncated; hop++ {
		var next []frontierEntry
		for _, entry := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			neighbors, err := s.reader.Neighbors(ctx, entry.node.ID, opts.RelationTypes)
			if err != nil {
				return nil, false, fmt.Errorf("pathfinder: expand %s: %w", entry.node.ID, err)
			}
			for _, edge := range neighbors {
				if entry.visited[edge.Other.ID] {
					continue
				}
				relations := append(append([]domain.PathRelation{}, entry.relations...), domain.PathRelation{
					Type:       edge.Type,
					Direction:  edge.Direction,
					Confidence: edge.Confidence,
				})
				nodes := append(append([]domain.Entity{}, entry.nodes...), edge.Other)

				if edge.Other.ID == endID {
					found = append(found, domain.Path{
						Nodes:     nodes,
						Relations: relations,
						Hops:      len(relations),
						Score:     scorePath(relations),
					})
					if len(found) >= maxPaths {
						truncated = true
					}
					continue
				}
				visited := make(map[string]bool, len(entry.visited)+1)
				for id := range entry.visited {
					visited[id] = true
				}
				visited[edge.Other.ID] = true
				next = append(next, frontierEntry{
					node:      edge.Other,
					relations: relations,
					nodes:     nodes,
					visited:   visited,
				})
			}
			if truncated {
				break
			}
		}
		frontier = next
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Hops != found[j].Hops {
			return found[i].Hops < found[j].Hops
		}
		return accumulatedConfidence(found[i].Relations) > accumulatedConfidence(found[j].Relations)
	})
	return found, truncated, nil
}

func trivialPath(e domain.Entity) domain.Path {
	return domain.Path{Nodes: []domain.Entity{e}, Relations: nil, Hops: 0, Score: 1}
}

// scorePath is the geometric mean of edge confidences scaled by 1/(1+hops).
// Zero confidences are floored so one unknown edge does not erase the score.
func scorePath(relations []domain.PathRelation) float64 {
	if len(relations) == 0 {
		return 1
	}
	logSum := 0.0
	for _, r := range relations {
		c := r.Confidence
		if c < 1e-3 {
			c = 1e-3
		}
		if c > 1 {
			c = 1
		}
		logSum += math.Log(c)
	}
	geo := math.Exp(logSum / float64(len(relations)))
	return geo / float64(1+len(relations))
}

func accumulatedConfidence(relations []domain.PathRelation) float64 {
	sum := 0.0
	for _, r := range relations {
		sum += r.Confidence
	}
	return sum
}
