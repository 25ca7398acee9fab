package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AliasSource identifies which normalizer stage produced an alias.
type AliasSource string

const (
	AliasSourceRule       AliasSource = "rule"
	AliasSourceSimilarity AliasSource = "similarity"
	AliasSourceLLM        AliasSource = "llm"
	AliasSourceManual     AliasSource = "manual"
)

// AliasRow maps a surface form to a canonical entity id. Surface is unique;
// rows are replaced by higher-confidence sources, never implicitly deleted.
type AliasRow struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Surface    string      `gorm:"column:surface;not null;uniqueIndex" json:"surface"`
	Canonical  string      `gorm:"column:canonical;not null;index" json:"canonical"`
	Confidence float64     `gorm:"column:confidence;not null" json:"confidence"`
	Source     AliasSource `gorm:"column:source;not null" json:"source"`
	CreatedAt  time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"not null" json:"updated_at"`
}

func (AliasRow) TableName() string { return "alias" }

// DocumentRow persists an ingested document. Immutable after intake.
type DocumentRow struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"column:title" json:"title"`
	Content     string         `gorm:"column:content;type:text;not null" json:"content"`
	Source      string         `gorm:"column:source;index" json:"source"`
	PublishedAt *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	Entities    datatypes.JSON `gorm:"column:entities;type:jsonb" json:"entities,omitempty"`
	Processed   bool           `gorm:"column:processed;not null;default:false;index" json:"processed"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (DocumentRow) TableName() string { return "document" }

// ExtractionRunRow is the per-batch ledger entry behind the stats endpoint.
type ExtractionRunRow struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentCount  int            `gorm:"column:document_count;not null" json:"document_count"`
	SuccessCount   int            `gorm:"column:success_count;not null" json:"success_count"`
	FailureCount   int            `gorm:"column:failure_count;not null" json:"failure_count"`
	RelationCount  int            `gorm:"column:relation_count;not null" json:"relation_count"`
	AvgConfidence  float64        `gorm:"column:avg_confidence" json:"avg_confidence"`
	DurationMs     int64          `gorm:"column:duration_ms;not null" json:"duration_ms"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	ErrorSummaries datatypes.JSON `gorm:"column:error_summaries;type:jsonb" json:"error_summaries,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

func (ExtractionRunRow) TableName() string { return "extraction_run" }
