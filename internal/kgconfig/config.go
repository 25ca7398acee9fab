package kgconfig

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

// Pattern is one lexical template for a relation type: a trigger phrase
// expected between (or near) two already-identified entities.
type Pattern struct {
	Trigger    string  `yaml:"trigger"`
	Confidence float64 `yaml:"confidence"`
	// Reversed matches "{target} <trigger> {source}" order.
	Reversed bool `yaml:"reversed,omitempty"`
}

// RelationDef declares one relation type of the closed vocabulary.
type RelationDef struct {
	SourceTypes []domain.EntityType `yaml:"source_types"`
	TargetTypes []domain.EntityType `yaml:"target_types"`
	// Bidirectional relations are symmetric; direction conflicts are not
	// contradictions for them.
	Bidirectional bool `yaml:"bidirectional,omitempty"`
	// Acyclic relations must not form cycles (length >= 2).
	Acyclic bool `yaml:"acyclic,omitempty"`
	// Extractable relations may be proposed by the extractors.
	Extractable       bool      `yaml:"extractable"`
	Patterns          []Pattern `yaml:"patterns,omitempty"`
	DefaultConfidence float64   `yaml:"default_confidence"`
}

// Weights fuse the four score components; they must sum to 1.0 within 1e-3.
type Weights struct {
	Cooccurrence float64 `yaml:"cooccurrence"`
	LLM          float64 `yaml:"llm"`
	Source       float64 `yaml:"source"`
	Graph        float64 `yaml:"graph"`
}

func (w Weights) Sum() float64 {
	return w.Cooccurrence + w.LLM + w.Source + w.Graph
}

// Thresholds route scored relations to triage buckets.
type Thresholds struct {
	AutoApprove float64 `yaml:"auto_approve"`
	Review      float64 `yaml:"review"`
}

// NormalizationRule rewrites a surface form; higher priority runs first.
type NormalizationRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Priority    int    `yaml:"priority"`

	compiled *regexp.Regexp
}

// Compiled returns the compiled pattern; Validate compiles it.
func (r *NormalizationRule) Compiled() *regexp.Regexp { return r.compiled }

// Normalization tunes the surface-form resolution cascade.
type Normalization struct {
	Rules []NormalizationRule `yaml:"rules,omitempty"`
	// Similarity at or above AutoThreshold is accepted outright; scores in
	// [ReviewThreshold, AutoThreshold) are routed to the LLM stage.
	SimilarityAutoThreshold   float64 `yaml:"similarity_auto_threshold"`
	SimilarityReviewThreshold float64 `yaml:"similarity_review_threshold"`
	// LLMReliabilityFactor scales the endpoint's reported confidence.
	LLMReliabilityFactor float64 `yaml:"llm_reliability_factor"`
	AutoRegister         bool    `yaml:"auto_register"`
}

// TypePairRule seeds a default relation type for a co-occurring entity-type
// pair.
type TypePairRule struct {
	Source   domain.EntityType   `yaml:"source"`
	Target   domain.EntityType   `yaml:"target"`
	Relation domain.RelationType `yaml:"relation"`
}

// ConflictPair declares two relation types mutually exclusive on the same
// (source, target) pair.
type ConflictPair struct {
	A domain.RelationType `yaml:"a"`
	B domain.RelationType `yaml:"b"`
}

// Config is the versioned domain configuration. It is an immutable snapshot:
// reload builds a new value, it is never mutated in place.
type Config struct {
	Version   string                                 `yaml:"version"`
	Relations map[domain.RelationType]RelationDef    `yaml:"relations"`
	Weights   Weights                                `yaml:"weights"`
	Threshold Thresholds                             `yaml:"thresholds"`
	// SourceReliability scores each evidence source; missing entries fall
	// back to DefaultSourceReliability.
	SourceReliability        map[domain.ExtractionMethod]float64 `yaml:"source_reliability,omitempty"`
	DefaultSourceReliability float64                             `yaml:"default_source_reliability"`
	Normalization            Normalization                       `yaml:"normalization"`
	TypePairRules            []TypePairRule                      `yaml:"type_pair_rules,omitempty"`
	ConflictPairs            []ConflictPair                      `yaml:"conflict_pairs,omitempty"`
	ConsistencyThreshold     float64                             `yaml:"consistency_threshold"`
}

// Load reads and validates a YAML configuration file. Defaults fill any
// section the file omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kgconfig: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("kgconfig: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReliabilityFor returns the configured reliability for an evidence source.
func (c *Config) ReliabilityFor(m domain.ExtractionMethod) float64 {
	if v, ok := c.SourceReliability[m]; ok {
		return v
	}
	return c.DefaultSourceReliability
}

// SeedRelationType returns the default relation type for a co-occurring
// entity-type pair, trying both orders. The fallback is CITES, the most
// permissive type.
func (c *Config) SeedRelationType(a, b domain.EntityType) (domain.RelationType, bool) {
	for _, rule := range c.TypePairRules {
		if rule.Source == a && rule.Target == b {
			return rule.Relation, false
		}
		if rule.Source == b && rule.Target == a {
			return rule.Relation, true
		}
	}
	return domain.RelCites, false
}

// Conflicts reports whether two relation types are declared mutually
// exclusive.
func (c *Config) Conflicts(a, b domain.RelationType) bool {
	for _, p := range c.ConflictPairs {
		if (p.A == a && p.B == b) || (p.A == b && p.B == a) {
			return true
		}
	}
	return false
}
