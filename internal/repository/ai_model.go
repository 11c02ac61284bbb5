package repository

import (
	"context"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

type ModelRepository interface {
	List(ctx context.Context) ([]models.AIModel, error)
	SeedIfEmpty(ctx context.Context, catalog []models.AIModel) (int, error)
}

type GormModelRepository struct {
	db *gorm.DB
}

func NewGormModelRepository(db *gorm.DB) *GormModelRepository {
	return &GormModelRepository{db: db}
}

func (r *GormModelRepository) List(ctx context.Context) ([]models.AIModel, error) {
	catalog := []models.AIModel{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&catalog).Error; err != nil {
		return nil, err
	}
	return catalog, nil
}

// SeedIfEmpty inserts catalog when the table has no rows and returns how many were inserted
func (r *GormModelRepository) SeedIfEmpty(ctx context.Context, catalog []models.AIModel) (int, error) {
	inserted := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AIModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || len(catalog) == 0 {
			return nil
		}

		rows := make([]models.AIModel, len(catalog))
		copy(rows, catalog)
		for i := range rows {
			rows[i].ID = 0
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		inserted = len(rows)
		return nil
	})
	return inserted, err
}
