package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// AliasRepo owns the surface → canonical mapping table.
type AliasRepo interface {
	GetBySurface(ctx context.Context, surface string) (*domain.AliasRow, error)
	GetByCanonical(ctx context.Context, canonical string) ([]*domain.AliasRow, error)
	ListCanonicals(ctx context.Context) ([]string, error)
	All(ctx context.Context) ([]*domain.AliasRow, error)
	// Upsert applies the conflict policy: an existing row for the same
	// surface survives unless the new entry has strictly higher confidence.
	Upsert(ctx context.Context, row *domain.AliasRow) (registered bool, err error)
}

type aliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAliasRepo(db *gorm.DB, baseLog *logger.Logger) AliasRepo {
	return &aliasRepo{db: db, log: baseLog.With("repo", "AliasRepo")}
}

func (r *aliasRepo) GetBySurface(ctx context.Context, surface string) (*domain.AliasRow, error) {
	surface = strings.TrimSpace(surface)
	if surface == "" {
		return nil, nil
	}
	var row domain.AliasRow
	err := r.db.WithContext(ctx).Where("surface = ?", surface).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("alias get by surface: %w", err)
	}
	return &row, nil
}

func (r *aliasRepo) GetByCanonical(ctx context.Context, canonical string) ([]*domain.AliasRow, error) {
	var rows []*domain.AliasRow
	if err := r.db.WithContext(ctx).Where("canonical = ?", canonical).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("alias get by canonical: %w", err)
	}
	return rows, nil
}

func (r *aliasRepo) ListCanonicals(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&domain.AliasRow{}).
		Distinct("canonical").
		Order("canonical").
		Pluck("canonical", &out).Error
	if err != nil {
		return nil, fmt.Errorf("alias list canonicals: %w", err)
	}
	return out, nil
}

func (r *aliasRepo) All(ctx context.Context) ([]*domain.AliasRow, error) {
	var rows []*domain.AliasRow
	if err := r.db.WithContext(ctx).Order("surface").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("alias list: %w", err)
	}
	return rows, nil
}

func (r *aliasRepo) Upsert(ctx context.Context, row *domain.AliasRow) (bool, error) {
	if row == nil || strings.TrimSpace(row.Surface) == "" {
		return false, fmt.Errorf("alias upsert: surface required")
	}
	if strings.TrimSpace(row.Canonical) == "" {
		return false, fmt.Errorf("alias upsert: canonical required")
	}

	registered := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.AliasRow
		err := tx.Where("surface = ?", row.Surface).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if row.ID == uuid.Nil {
				row.ID = uuid.New()
			}
			now := time.Now().UTC()
			row.CreatedAt = now
			row.UpdatedAt = now
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("alias create: %w", err)
			}
			registered = true
			return nil
		case err != nil:
			return fmt.Errorf("alias lookup: %w", err)
		}

		if existing.Canonical == row.Canonical {
			if row.Confidence > existing.Confidence {
				existing.Confidence = row.Confidence
				existing.Source = row.Source
				existing.UpdatedAt = time.Now().UTC()
				if err := tx.Save(&existing).Error; err != nil {
					return fmt.Errorf("alias refresh: %w", err)
				}
				registered = true
			}
			*row = existing
			return nil
		}

		// Different canonical for the same surface: higher confidence wins,
		// tie keeps the earlier entry.
		if row.Confidence > existing.Confidence {
			existing.Canonical = row.Canonical
			existing.Confidence = row.Confidence
			existing.Source = row.Source
			existing.UpdatedAt = time.Now().UTC()
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("alias replace: %w", err)
			}
			registered = true
		}
		*row = existing
		return nil
	})
	if err != nil {
		return false, err
	}
	return registered, nil
}
