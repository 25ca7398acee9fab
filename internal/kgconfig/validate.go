package kgconfig

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

const weightTolerance = 1e-3

// Validate enforces the configuration invariants. Any violation is fatal at
// startup; the error names the offending configuration path.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("kgconfig: nil configuration")
	}

	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("kgconfig: weights: components must sum to 1.0 (got %.6f)", sum)
	}
	for name, w := range map[string]float64{
		"weights.cooccurrence": c.Weights.Cooccurrence,
		"weights.llm":          c.Weights.LLM,
		"weights.source":       c.Weights.Source,
		"weights.graph":        c.Weights.Graph,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("kgconfig: %s: must be in [0,1] (got %.4f)", name, w)
		}
	}

	if err := checkUnit("thresholds.auto_approve", c.Threshold.AutoApprove); err != nil {
		return err
	}
	if err := checkUnit("thresholds.review", c.Threshold.Review); err != nil {
		return err
	}
	if c.Threshold.Review >= c.Threshold.AutoApprove {
		return fmt.Errorf("kgconfig: thresholds: review (%.2f) must be below auto_approve (%.2f)",
			c.Threshold.Review, c.Threshold.AutoApprove)
	}

	if err := checkUnit("default_source_reliability", c.DefaultSourceReliability); err != nil {
		return err
	}
	for method, v := range c.SourceReliability {
		if err := checkUnit(fmt.Sprintf("source_reliability.%s", method), v); err != nil {
			return err
		}
	}

	if len(c.Relations) == 0 {
		return fmt.Errorf("kgconfig: relations: at least one relation type must be defined")
	}
	for _, relType := range sortedRelationTypes(c.Relations) {
		def := c.Relations[relType]
		path := fmt.Sprintf("relations.%s", relType)
		if !domain.ValidRelationType(relType) {
			return fmt.Errorf("kgconfig: %s: unknown relation type", path)
		}
		if len(def.SourceTypes) == 0 {
			return fmt.Errorf("kgconfig: %s.source_types: must not be empty", path)
		}
		if len(def.TargetTypes) == 0 {
			return fmt.Errorf("kgconfig: %s.target_types: must not be empty", path)
		}
		for _, t := range def.SourceTypes {
			if !domain.ValidEntityType(t) {
				return fmt.Errorf("kgconfig: %s.source_types: unknown entity type %q", path, t)
			}
		}
		for _, t := range def.TargetTypes {
			if !domain.ValidEntityType(t) {
				return fmt.Errorf("kgconfig: %s.target_types: unknown entity type %q", path, t)
			}
		}
		if err := checkUnit(path+".default_confidence", def.DefaultConfidence); err != nil {
			return err
		}
		for i, p := range def.Patterns {
			if p.Trigger == "" {
				return fmt.Errorf("kgconfig: %s.patterns[%d].trigger: must not be empty", path, i)
			}
			if err := checkUnit(fmt.Sprintf("%s.patterns[%d].confidence", path, i), p.Confidence); err != nil {
				return err
			}
		}
		if def.Bidirectional && def.Acyclic {
			return fmt.Errorf("kgconfig: %s: bidirectional relation cannot also be acyclic", path)
		}
	}

	for i, pair := range c.ConflictPairs {
		if _, ok := c.Relations[pair.A]; !ok {
			return fmt.Errorf("kgconfig: conflict_pairs[%d].a: relation type %q not defined", i, pair.A)
		}
		if _, ok := c.Relations[pair.B]; !ok {
			return fmt.Errorf("kgconfig: conflict_pairs[%d].b: relation type %q not defined", i, pair.B)
		}
		if pair.A == pair.B {
			return fmt.Errorf("kgconfig: conflict_pairs[%d]: pair must name two distinct types", i)
		}
	}

	for i, rule := range c.TypePairRules {
		path := fmt.Sprintf("type_pair_rules[%d]", i)
		if !domain.ValidEntityType(rule.Source) {
			return fmt.Errorf("kgconfig: %s.source: unknown entity type %q", path, rule.Source)
		}
		if !domain.ValidEntityType(rule.Target) {
			return fmt.Errorf("kgconfig: %s.target: unknown entity type %q", path, rule.Target)
		}
		if _, ok := c.Relations[rule.Relation]; !ok {
			return fmt.Errorf("kgconfig: %s.relation: relation type %q not defined", path, rule.Relation)
		}
	}

	n := &c.Normalization
	if err := checkUnit("normalization.similarity_auto_threshold", n.SimilarityAutoThreshold); err != nil {
		return err
	}
	if err := checkUnit("normalization.similarity_review_threshold", n.SimilarityReviewThreshold); err != nil {
		return err
	}
	if n.SimilarityReviewThreshold >= n.SimilarityAutoThreshold {
		return fmt.Errorf("kgconfig: normalization: similarity_review_threshold (%.2f) must be below similarity_auto_threshold (%.2f)",
			n.SimilarityReviewThreshold, n.SimilarityAutoThreshold)
	}
	if err := checkUnit("normalization.llm_reliability_factor", n.LLMReliabilityFactor); err != nil {
		return err
	}
	for i := range n.Rules {
		rule := &n.Rules[i]
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("kgconfig: normalization.rules[%d].pattern: %w", i, err)
		}
		rule.compiled = compiled
	}
	sort.SliceStable(n.Rules, func(i, j int) bool {
		return n.Rules[i].Priority > n.Rules[j].Priority
	})

	if err := checkUnit("consistency_threshold", c.ConsistencyThreshold); err != nil {
		return err
	}
	return nil
}

func checkUnit(path string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("kgconfig: %s: must be in [0,1] (got %.4f)", path, v)
	}
	return nil
}

func sortedRelationTypes(defs map[domain.RelationType]RelationDef) []domain.RelationType {
	out := make([]domain.RelationType, 0, len(defs))
	for t := range defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
