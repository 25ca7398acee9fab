package services

import (
	"fmt"
	"sort"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// ContradictionKind labels why a group of relations is mutually inconsistent.
type ContradictionKind string

const (
	KindPairConflict ContradictionKind = "pair_conflict"
	KindDirectional  ContradictionKind = "directional"
	KindCyclic       ContradictionKind = "cyclic"
)

// Contradiction is one group of mutually inconsistent relations.
type Contradiction struct {
	Kind        ContradictionKind    `json:"kind"`
	Relations   []domain.RelationKey `json:"relations"`
	Description string               `json:"description"`
}

// ContradictionService finds mutually exclusive and cyclic relation sets
// among scored proposals. Detection is idempotent: members are downgraded to
// pending, and re-running on the output marks nothing new.
type ContradictionService struct {
	cfg *kgconfig.Config
	log *logger.Logger
}

func NewContradictionService(cfg *kgconfig.Config, baseLog *logger.Logger) *ContradictionService {
	return &ContradictionService{
		cfg: cfg,
		log: baseLog.With("service", "ContradictionService"),
	}
}

// Detect returns all contradiction groups in the set.
func (s *ContradictionService) Detect(rels []domain.Relation) []Contradiction {
	var out []Contradiction
	out = append(out, s.pairConflicts(rels)...)
	out = append(out, s.directional(rels)...)
	out = append(out, s.cycles(rels)...)
	return out
}

// Apply forces every involved relation to pending with needsReview set.
// Confidence is untouched.
func (s *ContradictionService) Apply(rels []domain.Relation, contradictions []Contradiction) []domain.Relation {
	flagged := map[domain.RelationKey]bool{}
	for _, c := range contradictions {
		for _, key := range c.Relations {
			flagged[key] = true
		}
	}
	for i := range rels {
		if flagged[rels[i].Key()] {
			rels[i].ReviewStatus = domain.StatusPending
			rels[i].NeedsReview = true
		}
	}
	return rels
}

func (s *ContradictionService) pairConflicts(rels []domain.Relation) []Contradiction {
	type unorderedPair struct{ a, b string }
	byPair := map[unorderedPair][]domain.Relation{}
	for _, r := range rels {
		p := unorderedPair{r.Source, r.Target}
		if p.b < p.a {
			p.a, p.b = p.b, p.a
		}
		byPair[p] = append(byPair[p], r)
	}

	var out []Contradiction
	for _, group := range byPair {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if s.cfg.Conflicts(group[i].Type, group[j].Type) {
					out = append(out, Contradiction{
						Kind:      KindPairConflict,
						Relations: []domain.RelationKey{group[i].Key(), group[j].Key()},
						Description: fmt.Sprintf("%s and %s are mutually exclusive between %s and %s",
							group[i].Type, group[j].Type, group[i].Source, group[i].Target),
					})
				}
			}
		}
	}
	sortContradictions(out)
	return out
}

func (s *ContradictionService) directional(rels []domain.Relation) []Contradiction {
	present := map[domain.RelationKey]bool{}
	for _, r := range rels {
		present[r.Key()] = true
	}

	var out []Contradiction
	seen := map[domain.RelationKey]bool{}
	for _, r := range rels {
		def, ok := s.cfg.Relations[r.Type]
		if !ok || def.Bidirectional {
			continue
		}
		reverse := domain.RelationKey{Source: r.Target, Target: r.Source, Type: r.Type}
		if !present[reverse] || seen[reverse] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, Contradiction{
			Kind:      KindDirectional,
			Relations: []domain.RelationKey{r.Key(), reverse},
			Description: fmt.Sprintf("%s holds in both directions between %s and %s but is asymmetric",
				r.Type, r.Source, r.Target),
		})
	}
	return out
}

// cycles runs per-type DFS over relation types declared acyclic and reports
// every edge on a cycle.
func (s *ContradictionService) cycles(rels []domain.Relation) []Contradiction {
	var out []Contradiction
	for relType, def := range s.cfg.Relations {
		if !def.Acyclic {
			continue
		}
		adjacency := map[string][]string{}
		edges := map[domain.RelationKey]bool{}
		for _, r := range rels {
			if r.Type != relType {
				continue
			}
			adjacency[r.Source] = append(adjacency[r.Source], r.Target)
			edges[r.Key()] = true
			// Self-loops violate acyclicity at length one.
			if r.Source == r.Target {
				out = append(out, Contradiction{
					Kind:        KindCyclic,
					Relations:   []domain.RelationKey{r.Key()},
					Description: fmt.Sprintf("%s self-loop on %s", relType, r.Source),
				})
			}
		}

		for _, members := range findCycles(adjacency) {
			keys := make([]domain.RelationKey, 0, len(members))
			for i := range members {
				key := domain.RelationKey{
					Source: members[i],
					Target: members[(i+1)%len(members)],
					Type:   relType,
				}
				if edges[key] {
					keys = append(keys, key)
				}
			}
			if len(keys) < 2 {
				continue
			}
			out = append(out, Contradiction{
				Kind:        KindCyclic,
				Relations:   keys,
				Description: fmt.Sprintf("%s cycle of length %d through %s", relType, len(keys), members[0]),
			})
		}
	}
	sortContradictions(out)
	return out
}

// findCycles returns one representative node cycle per strongly-entangled
// back edge, via colored DFS with an explicit path stack.
func findCycles(adjacency map[string][]string) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string
	var cycles [][]string

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range adjacency[node] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Back edge: the cycle is the stack suffix starting at next.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycle := make([]string, len(stack)-i)
						copy(cycle, stack[i:])
						if len(cycle) >= 2 {
							cycles = append(cycles, cycle)
						}
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
	}

	nodes := make([]string, 0, len(adjacency))
	for node := range adjacency {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if color[node] == white {
			visit(node)
		}
	}
	return cycles
}

func sortContradictions(out []Contradiction) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Description < out[j].Description
	})
}
