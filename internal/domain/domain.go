package domain

import (
	"time"
)

// EntityType is the closed vocabulary of node labels.
type EntityType string

const (
	EntityAIModel      EntityType = "AIModel"
	EntityTechnique    EntityType = "Technique"
	EntityConcept      EntityType = "Concept"
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityPublication  EntityType = "Publication"
	EntityBenchmark    EntityType = "Benchmark"
	EntityArchitecture EntityType = "Architecture"
	EntityDataset      EntityType = "Dataset"
	EntityMethod       EntityType = "Method"
	EntityCommunity    EntityType = "Community"
)

// EntityTypes lists the closed set in declaration order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityAIModel, EntityTechnique, EntityConcept, EntityPerson,
		EntityOrganization, EntityPublication, EntityBenchmark,
		EntityArchitecture, EntityDataset, EntityMethod, EntityCommunity,
	}
}

func ValidEntityType(t EntityType) bool {
	for _, known := range EntityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// RelationType is the closed vocabulary of edge types.
type RelationType string

const (
	RelDevelopedBy      RelationType = "DEVELOPED_BY"
	RelTrainedOn        RelationType = "TRAINED_ON"
	RelUsesTechnique    RelationType = "USES_TECHNIQUE"
	RelEvaluatedOn      RelationType = "EVALUATED_ON"
	RelCites            RelationType = "CITES"
	RelAffiliatedWith   RelationType = "AFFILIATED_WITH"
	RelContributedTo    RelationType = "CONTRIBUTED_TO"
	RelSpecializesIn    RelationType = "SPECIALIZES_IN"
	RelInfluencedBy     RelationType = "INFLUENCED_BY"
	RelCollaboratedWith RelationType = "COLLABORATED_WITH"
	RelEvolvedInto      RelationType = "EVOLVED_INTO"
	RelCompetesWith     RelationType = "COMPETES_WITH"
	RelBasedOn          RelationType = "BASED_ON"
)

func RelationTypes() []RelationType {
	return []RelationType{
		RelDevelopedBy, RelTrainedOn, RelUsesTechnique, RelEvaluatedOn,
		RelCites, RelAffiliatedWith, RelContributedTo, RelSpecializesIn,
		RelInfluencedBy, RelCollaboratedWith, RelEvolvedInto,
		RelCompetesWith, RelBasedOn,
	}
}

func ValidRelationType(t RelationType) bool {
	for _, known := range RelationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is a graph node. (Type, ID) is unique; surface-name drift is stored
// as aliases, never by overwriting Name.
type Entity struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        EntityType     `json:"type"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// ExtractionMethod tags where a relation proposal came from.
type ExtractionMethod string

const (
	MethodCooccurrence ExtractionMethod = "cooccurrence"
	MethodPattern      ExtractionMethod = "pattern"
	MethodLLM          ExtractionMethod = "llm"
	MethodHybrid       ExtractionMethod = "hybrid"
)

// ReviewStatus is the triage outcome for a scored relation.
type ReviewStatus string

const (
	StatusApproved ReviewStatus = "approved"
	StatusPending  ReviewStatus = "pending"
	StatusRejected ReviewStatus = "rejected"
	StatusModified ReviewStatus = "modified"
)

// Evidence is one per-source justification attached to a relation.
type Evidence struct {
	DocumentID     string           `json:"documentId"`
	ContextSnippet string           `json:"contextSnippet,omitempty"`
	Method         ExtractionMethod `json:"method"`
	RawConfidence  float64          `json:"rawConfidence"`
}

// ScoreComponents are the four fused evidence scores, each in [0,1].
type ScoreComponents struct {
	Cooccurrence     float64 `json:"cooccurrence"`
	LLM              float64 `json:"llm"`
	Source           float64 `json:"source"`
	GraphConsistency float64 `json:"graph"`
}

// Relation is a directed typed edge proposal or stored edge.
type Relation struct {
	Source          string           `json:"source"`
	Target          string           `json:"target"`
	Type            RelationType     `json:"type"`
	Confidence      float64          `json:"confidence"`
	ScoreComponents ScoreComponents  `json:"scoreComponents"`
	Evidence        []Evidence       `json:"evidence,omitempty"`
	ReviewStatus    ReviewStatus     `json:"reviewStatus"`
	Method          ExtractionMethod `json:"method"`
	NeedsReview     bool             `json:"needsReview"`
}

// Key identifies the merge bucket for repeat observations.
func (r Relation) Key() RelationKey {
	return RelationKey{Source: r.Source, Target: r.Target, Type: r.Type}
}

type RelationKey struct {
	Source string
	Target string
	Type   RelationType
}

// DocumentEntity is a pre-tagged entity occurrence inside a document.
type DocumentEntity struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Type      EntityType `json:"type"`
	Positions []int      `json:"positions,omitempty"`
}

// Document is an ingested scholarly text, immutable after intake.
type Document struct {
	ID          string           `json:"id"`
	Title       string           `json:"title,omitempty"`
	Content     string           `json:"content"`
	Source      string           `json:"source,omitempty"`
	PublishedAt time.Time        `json:"publishedAt,omitempty"`
	Entities    []DocumentEntity `json:"entities,omitempty"`
}

// CooccurrenceLevel is the textual scope a co-occurrence was observed at.
type CooccurrenceLevel string

const (
	LevelDocument  CooccurrenceLevel = "document"
	LevelParagraph CooccurrenceLevel = "paragraph"
	LevelSentence  CooccurrenceLevel = "sentence"
)

// Specificity orders levels: sentence > paragraph > document.
func (l CooccurrenceLevel) Specificity() int {
	switch l {
	case LevelSentence:
		return 3
	case LevelParagraph:
		return 2
	default:
		return 1
	}
}

// CooccurrencePair is a transient co-mention record; Level is the most
// specific scope any co-occurrence was seen at.
type CooccurrencePair struct {
	SourceID    string            `json:"sourceId"`
	TargetID    string            `json:"targetId"`
	Count       int               `json:"count"`
	DocumentIDs []string          `json:"documentIds"`
	Level       CooccurrenceLevel `json:"level"`
}

// PathRelation is one traversed edge with its direction relative to the
// node order of the path.
type PathRelation struct {
	Type       RelationType `json:"type"`
	Direction  string       `json:"direction"` // "outgoing" | "incoming"
	Confidence float64      `json:"confidence"`
}

// Path is a simple (cycle-free) walk through the graph.
type Path struct {
	Nodes     []Entity       `json:"nodes"`
	Relations []PathRelation `json:"relations"`
	Hops      int            `json:"hops"`
	Score     float64        `json:"score"`
}

// PathResult is the full answer to a path query.
type PathResult struct {
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Paths      []Path    `json:"paths"`
	MaxHops    int       `json:"maxHops"`
	Truncated  bool      `json:"truncated"`
	ComputedAt time.Time `json:"computedAt"`
}

// FactClaim is a short assertion extracted from generated or source text.
type FactClaim struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	EntityIDs      []string     `json:"entityIds,omitempty"`
	SourceEntityID string       `json:"sourceEntityId,omitempty"`
	TargetEntityID string       `json:"targetEntityId,omitempty"`
	RelationType   RelationType `json:"relationType,omitempty"`
	Confidence     float64      `json:"confidence,omitempty"`
}

// ConsistencyEvidence tags one supporting or contradicting fact.
type ConsistencyEvidence struct {
	Type        string  `json:"type"` // matched_relation | path_support | missing_entity | wrong_relation | missing_relation
	Description string  `json:"description"`
	Weight      float64 `json:"weight,omitempty"`
}

// ConsistencyResult is the outcome of validating one claim against the graph.
type ConsistencyResult struct {
	Claim                 FactClaim             `json:"claim"`
	IsConsistent          bool                  `json:"isConsistent"`
	Score                 float64               `json:"score"`
	SupportingEvidence    []ConsistencyEvidence `json:"supportingEvidence"`
	ContradictingEvidence []ConsistencyEvidence `json:"contradictingEvidence"`
	Suggestions           []string              `json:"suggestions,omitempty"`
	Explanation           string                `json:"explanation,omitempty"`
}

// ExtractionResult is the per-document pipeline output.
type ExtractionResult struct {
	DocumentID     string        `json:"documentId"`
	Relations      []Relation    `json:"relations"`
	Entities       []Entity      `json:"entities"`
	Partial        bool          `json:"partial,omitempty"`
	ProcessingTime time.Duration `json:"processingTime"`
	Timestamp      time.Time     `json:"timestamp"`
}

// BatchError captures one failed document inside a batch.
type BatchError struct {
	DocumentID string `json:"documentId"`
	Err        string `json:"error"`
}

// BatchResult aggregates a concurrent batch run.
type BatchResult struct {
	Results      []ExtractionResult `json:"results"`
	Errors       []BatchError       `json:"errors"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
	TotalTime    time.Duration      `json:"totalTime"`
}

// PipelineStats always counts attempts, not just successes.
type PipelineStats struct {
	TotalProcessed    int     `json:"totalProcessed"`
	TotalRelations    int     `json:"totalRelations"`
	AverageConfidence float64 `json:"averageConfidence"`
	ApprovedCount     int     `json:"approvedCount"`
	PendingCount      int     `json:"pendingCount"`
	RejectedCount     int     `json:"rejectedCount"`
	FailedDocuments   int     `json:"failedDocuments"`
}

// NormalizationStage identifies which cascade stage resolved a surface form.
type NormalizationStage string

const (
	StageRule       NormalizationStage = "rule"
	StageAlias      NormalizationStage = "alias"
	StageSimilarity NormalizationStage = "similarity"
	StageLLM        NormalizationStage = "llm"
	StageNone       NormalizationStage = "none"
)

// NormalizationResult reports one surface-form resolution.
type NormalizationResult struct {
	Original        string             `json:"original"`
	Normalized      string             `json:"normalized"`
	WasNormalized   bool               `json:"wasNormalized"`
	Confidence      float64            `json:"confidence"`
	Stage           NormalizationStage `json:"stage"`
	AliasRegistered bool               `json:"aliasRegistered"`
}

// QueryIntent is the structured interpretation of a natural-language query.
type QueryIntent struct {
	QueryType     string         `json:"queryType"` // search | describe | compare | rank
	EntityTypes   []EntityType   `json:"entityTypes,omitempty"`
	RelationTypes []RelationType `json:"relationTypes,omitempty"`
	EntityNames   []string       `json:"entityNames,omitempty"`
	Filters       map[string]any `json:"filters,omitempty"`
	OrderBy       string         `json:"orderBy,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Confidence    float64        `json:"confidence"`
}

// NLQueryResult carries the full trace of an NL query execution.
type NLQueryResult struct {
	Intent          QueryIntent      `json:"intent"`
	GraphQuery      string           `json:"graphQueryString"`
	Parameters      map[string]any   `json:"parameters,omitempty"`
	Results         []map[string]any `json:"results"`
	Confidence      float64          `json:"confidence"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
}

// ReasoningStep is one step of chain-of-thought over a retrieved subgraph.
type ReasoningStep struct {
	Index      int      `json:"index"`
	Statement  string   `json:"statement"`
	EvidenceID []string `json:"evidenceIds,omitempty"`
	Confidence float64  `json:"confidence"`
}

// ReasoningResult is the reasoner's final answer.
type ReasoningResult struct {
	Question    string          `json:"question"`
	Steps       []ReasoningStep `json:"steps"`
	Conclusion  string          `json:"conclusion"`
	Confidence  float64         `json:"confidence"`
	TotalTimeMs int64           `json:"totalTimeMs"`
}
