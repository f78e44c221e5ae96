package repository

import (
	"context"

	"github.com/basketfi/vaultcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresChangeRepo persists position-change records.
type PostgresChangeRepo struct {
	db *gorm.DB
}

func NewPostgresChangeRepo(db *gorm.DB) (*PostgresChangeRepo, error) {
	if err := db.AutoMigrate(&model.PositionChange{}); err != nil {
		return nil, err
	}
	return &PostgresChangeRepo{db: db}, nil
}

func (r *PostgresChangeRepo) Insert(ctx context.Context, change *model.PositionChange) error {
	if change == nil {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(change).Error
}

func (r *PostgresChangeRepo) List(ctx context.Context, vaultID string, limit int) ([]*model.PositionChange, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if vaultID != "" {
		query = query.Where("vault_id = ?", vaultID)
	}
	var records []*model.PositionChange
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
