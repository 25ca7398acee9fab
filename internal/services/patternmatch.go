package services

import (
	"context"
	"sort"
	"strings"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// patternWindow is how far (in bytes) an entity may sit from a trigger
// phrase and still bind to it.
const patternWindow = 150

// PatternService applies the configured lexical templates to propose typed
// relations between entities already identified in the text. It never
// invents entity ids.
type PatternService struct {
	cfg *kgconfig.Config
	log *logger.Logger
}

func NewPatternService(cfg *kgconfig.Config, baseLog *logger.Logger) *PatternService {
	return &PatternService{
		cfg: cfg,
		log: baseLog.With("service", "PatternService"),
	}
}

type entityOccurrence struct {
	entity domain.DocumentEntity
	start  int
	end    int
}

// Match scans the document for trigger phrases and binds the nearest
// entities on each side. Identical (source, target, type) results
// deduplicate to the highest confidence.
func (s *PatternService) Match(ctx context.Context, doc domain.Document, entities []domain.DocumentEntity) ([]domain.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc.Content == "" || len(entities) < 2 {
		return nil, nil
	}

	occurrences := locateEntities(doc.Content, entities)
	if len(occurrences) < 2 {
		return nil, nil
	}
	lower := strings.ToLower(doc.Content)

	best := map[domain.RelationKey]domain.Relation{}
	for _, relType := range domain.RelationTypes() {
		def, ok := s.cfg.Relations[relType]
		if !ok || !def.Extractable {
			continue
		}
		for _, pattern := range def.Patterns {
			trigger := strings.ToLower(pattern.Trigger)
			if trigger == "" {
				continue
			}
			for _, at := range indexAll(lower, trigger) {
				before, after := nearestAround(occurrences, at, at+len(trigger))
				if before == nil || after == nil {
					continue
				}
				source, target := before.entity, after.entity
				if pattern.Reversed {
					source, target = target, source
				}
				if strings.EqualFold(source.ID, target.ID) {
					continue
				}
				if !typeAllowed(def.SourceTypes, source.Type) || !typeAllowed(def.TargetTypes, target.Type) {
					continue
				}
				confidence := pattern.Confidence
				if confidence <= 0 {
					confidence = def.DefaultConfidence
				}
				span := snippetAround(doc.Content, before.start, after.end)
				rel := domain.Relation{
					Source:     source.ID,
					Target:     target.ID,
					Type:       relType,
					Confidence: confidence,
					Method:     domain.MethodPattern,
					Evidence: []domain.Evidence{{
						DocumentID:     doc.ID,
						ContextSnippet: span,
						Method:         domain.MethodPattern,
						RawConfidence:  confidence,
					}},
				}
				key := rel.Key()
				if prev, ok := best[key]; !ok || rel.Confidence > prev.Confidence {
					best[key] = rel
				}
			}
		}
	}

	out := make([]domain.Relation, 0, len(best))
	for _, rel := range best {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Type < b.Type
	})
	return out, nil
}

// locateEntities resolves byte offsets for every entity occurrence, using
// supplied positions when present and substring search otherwise.
func locateEntities(content string, entities []domain.DocumentEntity) []entityOccurrence {
	lower := strings.ToLower(content)
	var out []entityOccurrence
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		if len(e.Positions) > 0 {
			for _, pos := range e.Positions {
				if pos < 0 || pos >= len(content) {
					continue
				}
				out = append(out, entityOccurrence{entity: e, start: pos, end: pos + len(e.Name)})
			}
			continue
		}
		needle := strings.ToLower(e.Name)
		for _, at := range indexAll(lower, needle) {
			if boundaryBefore(lower, at) && boundaryAfter(lower, at+len(needle)) {
				out = append(out, entityOccurrence{entity: e, start: at, end: at + len(needle)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func indexAll(haystack, needle string) []int {
	var out []int
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return out
		}
		out = append(out, start+idx)
		start += idx + 1
	}
}

// nearestAround picks the closest occurrence ending before the trigger and
// the closest starting after it, both within the window.
func nearestAround(occurrences []entityOccurrence, triggerStart, triggerEnd int) (before, after *entityOccurrence) {
	for i := range occurrences {
		occ := &occurrences[i]
		if occ.end <= triggerStart && triggerStart-occ.end <= patternWindow {
			if before == nil || occ.end > before.end {
				before = occ
			}
		}
		if occ.start >= triggerEnd && occ.start-triggerEnd <= patternWindow {
			if after == nil || occ.start < after.start {
				after = occ
			}
		}
	}
	return before, after
}

func typeAllowed(allowed []domain.EntityType, t domain.EntityType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func snippetAround(content string, start, end int) string {
	lo := start - 20
	if lo < 0 {
		lo = 0
	}
	hi := end + 20
	if hi > len(content) {
		hi = len(content)
	}
	return strings.TrimSpace(content[lo:hi])
}
