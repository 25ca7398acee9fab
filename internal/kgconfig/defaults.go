package kgconfig

import "github.com/scigraph/scigraph-backend/internal/domain"

// Default returns the built-in configuration snapshot. Load overlays a YAML
// file on top of it.
func Default() *Config {
	return &Config{
		Version: "1",
		Relations: map[domain.RelationType]RelationDef{
			domain.RelDevelopedBy: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityArchitecture, domain.EntityDataset, domain.EntityBenchmark},
				TargetTypes: []domain.EntityType{domain.EntityOrganization, domain.EntityPerson, domain.EntityCommunity},
				Acyclic:     true,
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "was developed by", Confidence: 0.9},
					{Trigger: "developed by", Confidence: 0.85},
					{Trigger: "was created by", Confidence: 0.85},
					{Trigger: "was built by", Confidence: 0.8},
					{Trigger: "developed", Confidence: 0.8, Reversed: true},
					{Trigger: "released", Confidence: 0.75, Reversed: true},
				},
				DefaultConfidence: 0.8,
			},
			domain.RelTrainedOn: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel},
				TargetTypes: []domain.EntityType{domain.EntityDataset, domain.EntityBenchmark},
				Acyclic:     true,
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "was trained on", Confidence: 0.9},
					{Trigger: "trained on", Confidence: 0.85},
					{Trigger: "pretrained on", Confidence: 0.85},
					{Trigger: "fine-tuned on", Confidence: 0.8},
				},
				DefaultConfidence: 0.8,
			},
			domain.RelUsesTechnique: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityArchitecture, domain.EntityMethod},
				TargetTypes: []domain.EntityType{domain.EntityTechnique, domain.EntityMethod, domain.EntityConcept},
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "uses", Confidence: 0.8},
					{Trigger: "employs", Confidence: 0.8},
					{Trigger: "is based on", Confidence: 0.7},
					{Trigger: "leverages", Confidence: 0.75},
					{Trigger: "applies", Confidence: 0.7},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelEvaluatedOn: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityMethod, domain.EntityTechnique},
				TargetTypes: []domain.EntityType{domain.EntityBenchmark, domain.EntityDataset},
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "was evaluated on", Confidence: 0.9},
					{Trigger: "evaluated on", Confidence: 0.85},
					{Trigger: "achieves state-of-the-art on", Confidence: 0.85},
					{Trigger: "tested on", Confidence: 0.75},
					{Trigger: "benchmarked on", Confidence: 0.8},
				},
				DefaultConfidence: 0.75,
			},
			domain.RelCites: {
				SourceTypes: domain.EntityTypes(),
				TargetTypes: domain.EntityTypes(),
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "cites", Confidence: 0.8},
					{Trigger: "references", Confidence: 0.7},
					{Trigger: "as shown in", Confidence: 0.6},
				},
				DefaultConfidence: 0.5,
			},
			domain.RelAffiliatedWith: {
				SourceTypes: []domain.EntityType{domain.EntityPerson},
				TargetTypes: []domain.EntityType{domain.EntityOrganization, domain.EntityCommunity},
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "is affiliated with", Confidence: 0.9},
					{Trigger: "works at", Confidence: 0.85},
					{Trigger: "from", Confidence: 0.5},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelContributedTo: {
				SourceTypes: []domain.EntityType{domain.EntityPerson, domain.EntityOrganization},
				TargetTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityConcept, domain.EntityPublication},
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "contributed to", Confidence: 0.85},
					{Trigger: "co-authored", Confidence: 0.8},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelSpecializesIn: {
				SourceTypes: []domain.EntityType{domain.EntityPerson, domain.EntityOrganization, domain.EntityCommunity},
				TargetTypes: []domain.EntityType{domain.EntityConcept, domain.EntityTechnique, domain.EntityMethod},
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "specializes in", Confidence: 0.85},
					{Trigger: "focuses on", Confidence: 0.7},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelInfluencedBy: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityConcept, domain.EntityArchitecture, domain.EntityMethod},
				TargetTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityConcept, domain.EntityArchitecture, domain.EntityMethod, domain.EntityPerson},
				Acyclic:     true,
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "was influenced by", Confidence: 0.85},
					{Trigger: "inspired by", Confidence: 0.8},
					{Trigger: "builds on", Confidence: 0.75},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelCollaboratedWith: {
				SourceTypes:   []domain.EntityType{domain.EntityPerson, domain.EntityOrganization, domain.EntityCommunity},
				TargetTypes:   []domain.EntityType{domain.EntityPerson, domain.EntityOrganization, domain.EntityCommunity},
				Bidirectional: true,
				Extractable:   true,
				Patterns: []Pattern{
					{Trigger: "collaborated with", Confidence: 0.85},
					{Trigger: "in collaboration with", Confidence: 0.85},
					{Trigger: "partnered with", Confidence: 0.8},
				},
				DefaultConfidence: 0.75,
			},
			domain.RelEvolvedInto: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityArchitecture},
				TargetTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityArchitecture},
				Acyclic:     true,
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "evolved into", Confidence: 0.85},
					{Trigger: "was succeeded by", Confidence: 0.8},
					{Trigger: "successor to", Confidence: 0.8, Reversed: true},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelCompetesWith: {
				SourceTypes:   []domain.EntityType{domain.EntityAIModel, domain.EntityOrganization, domain.EntityTechnique},
				TargetTypes:   []domain.EntityType{domain.EntityAIModel, domain.EntityOrganization, domain.EntityTechnique},
				Bidirectional: true,
				Extractable:   true,
				Patterns: []Pattern{
					{Trigger: "competes with", Confidence: 0.85},
					{Trigger: "rivals", Confidence: 0.75},
					{Trigger: "outperforms", Confidence: 0.6},
				},
				DefaultConfidence: 0.7,
			},
			domain.RelBasedOn: {
				SourceTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityMethod, domain.EntityArchitecture},
				TargetTypes: []domain.EntityType{domain.EntityAIModel, domain.EntityTechnique, domain.EntityMethod, domain.EntityArchitecture, domain.EntityConcept},
				Acyclic:     true,
				Extractable: true,
				Patterns: []Pattern{
					{Trigger: "is based on", Confidence: 0.85},
					{Trigger: "based on", Confidence: 0.8},
					{Trigger: "extends", Confidence: 0.75},
					{Trigger: "builds upon", Confidence: 0.75},
				},
				DefaultConfidence: 0.75,
			},
		},
		Weights:   Weights{Cooccurrence: 0.3, LLM: 0.3, Source: 0.2, Graph: 0.2},
		Threshold: Thresholds{AutoApprove: 0.7, Review: 0.5},
		SourceReliability: map[domain.ExtractionMethod]float64{
			domain.MethodPattern:      0.8,
			domain.MethodLLM:          0.7,
			domain.MethodCooccurrence: 0.6,
		},
		DefaultSourceReliability: 0.7,
		Normalization: Normalization{
			Rules: []NormalizationRule{
				{Pattern: `\s+`, Replacement: " ", Priority: 100},
				{Pattern: `(?i)^the\s+`, Replacement: "", Priority: 90},
				{Pattern: `\s*\(.*\)$`, Replacement: "", Priority: 80},
			},
			SimilarityAutoThreshold:   0.85,
			SimilarityReviewThreshold: 0.65,
			LLMReliabilityFactor:      0.7,
			AutoRegister:              true,
		},
		TypePairRules: []TypePairRule{
			{Source: domain.EntityAIModel, Target: domain.EntityOrganization, Relation: domain.RelDevelopedBy},
			{Source: domain.EntityAIModel, Target: domain.EntityTechnique, Relation: domain.RelUsesTechnique},
			{Source: domain.EntityAIModel, Target: domain.EntityDataset, Relation: domain.RelTrainedOn},
			{Source: domain.EntityAIModel, Target: domain.EntityBenchmark, Relation: domain.RelEvaluatedOn},
			{Source: domain.EntityPerson, Target: domain.EntityOrganization, Relation: domain.RelAffiliatedWith},
			{Source: domain.EntityPublication, Target: domain.EntityPublication, Relation: domain.RelCites},
			{Source: domain.EntityAIModel, Target: domain.EntityArchitecture, Relation: domain.RelBasedOn},
		},
		ConflictPairs: []ConflictPair{
			{A: domain.RelDevelopedBy, B: domain.RelCompetesWith},
			{A: domain.RelCollaboratedWith, B: domain.RelCompetesWith},
			{A: domain.RelEvolvedInto, B: domain.RelCompetesWith},
		},
		ConsistencyThreshold: 0.7,
	}
}
