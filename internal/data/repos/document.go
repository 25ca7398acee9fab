package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// DocumentRepo persists ingested documents. Rows are immutable after intake
// except for the processed flag.
type DocumentRepo interface {
	Create(ctx context.Context, docs []*domain.DocumentRow) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRow, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.DocumentRow, error)
	MarkProcessed(ctx context.Context, ids []string) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(ctx context.Context, docs []*domain.DocumentRow) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("document create: id required")
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(docs).Error
	if err != nil {
		return fmt.Errorf("document create: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id string) (*domain.DocumentRow, error) {
	var row domain.DocumentRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document get: %w", err)
	}
	return &row, nil
}

func (r *documentRepo) ListUnprocessed(ctx context.Context, limit int) ([]*domain.DocumentRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*domain.DocumentRow
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("document list unprocessed: %w", err)
	}
	return rows, nil
}

func (r *documentRepo) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&domain.DocumentRow{}).
		Where("id IN ?", ids).
		Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("document mark processed: %w", err)
	}
	return nil
}

// ToDocument converts a stored row into the pipeline's document value.
func ToDocument(row *domain.DocumentRow) (domain.Document, error) {
	doc := domain.Document{
		ID:      row.ID,
		Title:   row.Title,
		Content: row.Content,
		Source:  row.Source,
	}
	if row.PublishedAt != nil {
		doc.PublishedAt = *row.PublishedAt
	}
	if len(row.Entities) > 0 {
		if err := json.Unmarshal(row.Entities, &doc.Entities); err != nil {
			return domain.Document{}, fmt.Errorf("document %s: decode entities: %w", row.ID, err)
		}
	}
	return doc, nil
}

// FromDocument builds an immutable intake row.
func FromDocument(doc domain.Document) (*domain.DocumentRow, error) {
	row := &domain.DocumentRow{
		ID:      doc.ID,
		Title:   doc.Title,
		Content: doc.Content,
		Source:  doc.Source,
	}
	if !doc.PublishedAt.IsZero() {
		t := doc.PublishedAt
		row.PublishedAt = &t
	}
	if len(doc.Entities) > 0 {
		raw, err := json.Marshal(doc.Entities)
		if err != nil {
			return nil, fmt.Errorf("document %s: encode entities: %w", doc.ID, err)
		}
		row.Entities = datatypes.JSON(raw)
	}
	return row, nil
}
