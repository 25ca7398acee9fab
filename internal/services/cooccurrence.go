package services

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/kgconfig"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// countSaturation is the observation count at which raw confidence tops out.
const countSaturation = 5

var levelFactors = map[domain.CooccurrenceLevel]float64{
	domain.LevelSentence:  1.0,
	domain.LevelParagraph: 0.8,
	domain.LevelDocument:  0.6,
}

// surfaceStopwords excludes structural words the fallback recognizer would
// otherwise promote to entities.
var surfaceStopwords = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"a": true, "an": true, "in": true, "on": true, "at": true, "by": true,
	"as": true, "for": true, "with": true, "from": true, "of": true,
	"to": true, "and": true, "or": true, "but": true, "is": true,
	"are": true, "was": true, "were": true, "it": true, "its": true,
	"we": true, "our": true, "however": true, "therefore": true,
	"thus": true, "figure": true, "table": true, "section": true,
	"abstract": true, "introduction": true, "conclusion": true,
	"results": true, "methods": true, "discussion": true,
}

var (
	capitalizedPhraseRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9-]*(?:\s+[A-Z][A-Za-z0-9-]*)*\b`)
	acronymRe           = regexp.MustCompile(`\b[A-Z][A-Z0-9-]{1,}\b`)
)

// CooccurrenceService detects entity pairs co-mentioned at document,
// paragraph, and sentence scope.
type CooccurrenceService struct {
	cfg *kgconfig.Config
	log *logger.Logger
}

func NewCooccurrenceService(cfg *kgconfig.Config, baseLog *logger.Logger) *CooccurrenceService {
	return &CooccurrenceService{
		cfg: cfg,
		log: baseLog.With("service", "CooccurrenceService"),
	}
}

// Entities returns the document's pre-tagged entities, or runs the
// conservative surface recognizer when none were supplied. Recognized
// surfaces carry no positions and default to Concept.
func (s *CooccurrenceService) Entities(doc domain.Document) []domain.DocumentEntity {
	if len(doc.Entities) > 0 {
		out := make([]domain.DocumentEntity, len(doc.Entities))
		copy(out, doc.Entities)
		for i := range out {
			if out[i].ID == "" {
				out[i].ID = out[i].Name
			}
		}
		return out
	}
	return recognizeSurfaces(doc.Content)
}

func recognizeSurfaces(text string) []domain.DocumentEntity {
	seen := map[string]bool{}
	var out []domain.DocumentEntity
	add := func(surface string) {
		surface = strings.TrimSpace(surface)
		if len(surface) < 2 || surfaceStopwords[strings.ToLower(surface)] {
			return
		}
		key := strings.ToLower(surface)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, domain.DocumentEntity{
			ID:   surface,
			Name: surface,
			Type: domain.EntityConcept,
		})
	}
	for _, m := range acronymRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range capitalizedPhraseRe.FindAllString(text, -1) {
		// Drop leading stopwords so sentence-initial "The Transformer"
		// recognizes "Transformer".
		words := strings.Fields(m)
		for len(words) > 0 && surfaceStopwords[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if len(words) > 0 {
			add(strings.Join(words, " "))
		}
	}
	return out
}

type pairKey struct {
	a, b string
}

type pairAccumulator struct {
	counts map[domain.CooccurrenceLevel]int
	docs   map[string]bool
	names  map[string]string // id -> surface used for matching
}

// Analyze produces co-occurrence pairs for one document across all three
// scopes, deduplicated to the most specific scope observed. A non-nil
// entities list overrides the document's own tags, so callers that resolved
// canonical ids keep them on the resulting pairs; nil derives from the
// document.
func (s *CooccurrenceService) Analyze(ctx context.Context, doc domain.Document, entities []domain.DocumentEntity) ([]domain.CooccurrencePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := map[pairKey]*pairAccumulator{}
	s.accumulate(doc, entities, acc)
	return finishPairs(acc), nil
}

// AnalyzeBatch aggregates counts across documents; the most specific level
// seen anywhere wins for each pair.
func (s *CooccurrenceService) AnalyzeBatch(ctx context.Context, docs []domain.Document) ([]domain.CooccurrencePair, error) {
	acc := map[pairKey]*pairAccumulator{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.accumulate(doc, nil, acc)
	}
	return finishPairs(acc), nil
}

func (s *CooccurrenceService) accumulate(doc domain.Document, entities []domain.DocumentEntity, acc map[pairKey]*pairAccumulator) {
	if entities == nil {
		entities = s.Entities(doc)
	}
	if len(entities) < 2 || doc.Content == "" {
		return
	}

	scopes := []struct {
		level    domain.CooccurrenceLevel
		segments []string
	}{
		{domain.LevelDocument, []string{doc.Content}},
		{domain.LevelParagraph, splitParagraphs(doc.Content)},
		{domain.LevelSentence, sentencesOf(doc.Content)},
	}

	for _, scope := range scopes {
		for _, segment := range scope.segments {
			var present []domain.DocumentEntity
			for _, e := range entities {
				if containsSurface(segment, e.Name) {
					present = append(present, e)
				}
			}
			for i := 0; i < len(present); i++ {
				for j := i + 1; j < len(present); j++ {
					a, b := present[i], present[j]
					if strings.EqualFold(a.ID, b.ID) {
						continue
					}
					key := pairKey{a.ID, b.ID}
					if key.b < key.a {
						key.a, key.b = key.b, key.a
					}
					p := acc[key]
					if p == nil {
						p = &pairAccumulator{
							counts: map[domain.CooccurrenceLevel]int{},
							docs:   map[string]bool{},
							names:  map[string]string{},
						}
						acc[key] = p
					}
					p.counts[scope.level]++
					p.docs[doc.ID] = true
					p.names[a.ID] = a.Name
					p.names[b.ID] = b.Name
				}
			}
		}
	}
}

func sentencesOf(text string) []string {
	var out []string
	for _, para := range splitParagraphs(text) {
		out = append(out, splitSentences(para)...)
	}
	return out
}

func finishPairs(acc map[pairKey]*pairAccumulator) []domain.CooccurrencePair {
	out := make([]domain.CooccurrencePair, 0, len(acc))
	for key, p := range acc {
		level := domain.LevelDocument
		for _, l := range []domain.CooccurrenceLevel{domain.LevelSentence, domain.LevelParagraph} {
			if p.counts[l] > 0 {
				level = l
				break
			}
		}
		docs := make([]string, 0, len(p.docs))
		for id := range p.docs {
			docs = append(docs, id)
		}
		sort.Strings(docs)
		out = append(out, domain.CooccurrencePair{
			SourceID:    key.a,
			TargetID:    key.b,
			Count:       p.counts[level],
			DocumentIDs: docs,
			Level:       level,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

// RawConfidence is min(1, count/5) scaled by the scope factor.
func RawConfidence(pair domain.CooccurrencePair) float64 {
	raw := float64(pair.Count) / countSaturation
	if raw > 1 {
		raw = 1
	}
	return raw * levelFactors[pair.Level]
}

// Relations converts pairs into unscored relation proposals using the
// type-pair seed table. Pair direction follows the seed rule, not the
// lexicographic order of the pair. The entities list must be the one the
// pairs were analyzed with; nil derives from the document.
func (s *CooccurrenceService) Relations(doc domain.Document, entities []domain.DocumentEntity, pairs []domain.CooccurrencePair) []domain.Relation {
	if entities == nil {
		entities = s.Entities(doc)
	}
	typeOf := map[string]domain.EntityType{}
	for _, e := range entities {
		typeOf[e.ID] = e.Type
	}

	out := make([]domain.Relation, 0, len(pairs))
	for _, pair := range pairs {
		source, target := pair.SourceID, pair.TargetID
		relType, swapped := s.cfg.SeedRelationType(typeOf[source], typeOf[target])
		if swapped {
			source, target = target, source
		}
		raw := RawConfidence(pair)
		out = append(out, domain.Relation{
			Source:     source,
			Target:     target,
			Type:       relType,
			Confidence: raw,
			Method:     domain.MethodCooccurrence,
			Evidence: []domain.Evidence{{
				DocumentID:     doc.ID,
				ContextSnippet: "co-occurrence at " + string(pair.Level) + " scope",
				Method:         domain.MethodCooccurrence,
				RawConfidence:  raw,
			}},
		})
	}
	return out
}
