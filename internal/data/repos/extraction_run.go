package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// ExtractionRunRepo records one row per batch attempt, successes and
// failures alike.
type ExtractionRunRepo interface {
	Record(ctx context.Context, batch domain.BatchResult, avgConfidence float64) (uuid.UUID, error)
	Recent(ctx context.Context, limit int) ([]*domain.ExtractionRunRow, error)
}

type extractionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionRunRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionRunRepo {
	return &extractionRunRepo{db: db, log: baseLog.With("repo", "ExtractionRunRepo")}
}

func (r *extractionRunRepo) Record(ctx context.Context, batch domain.BatchResult, avgConfidence float64) (uuid.UUID, error) {
	relationCount := 0
	for _, res := range batch.Results {
		relationCount += len(res.Relations)
	}

	status := "succeeded"
	if batch.FailureCount > 0 {
		status = "partial"
	}
	if batch.SuccessCount == 0 && batch.FailureCount > 0 {
		status = "failed"
	}

	row := &domain.ExtractionRunRow{
		ID:            uuid.New(),
		DocumentCount: batch.SuccessCount + batch.FailureCount,
		SuccessCount:  batch.SuccessCount,
		FailureCount:  batch.FailureCount,
		RelationCount: relationCount,
		AvgConfidence: avgConfidence,
		DurationMs:    batch.TotalTime.Milliseconds(),
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	if len(batch.Errors) > 0 {
		raw, err := json.Marshal(batch.Errors)
		if err != nil {
			return uuid.Nil, fmt.Errorf("extraction run: encode errors: %w", err)
		}
		row.ErrorSummaries = datatypes.JSON(raw)
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("extraction run create: %w", err)
	}
	return row.ID, nil
}

func (r *extractionRunRepo) Recent(ctx context.Context, limit int) ([]*domain.ExtractionRunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []*domain.ExtractionRunRow
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("extraction run list: %w", err)
	}
	return rows, nil
}
