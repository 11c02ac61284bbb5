package repository

import (
	"context"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

type CharacterRepository interface {
	Create(ctx context.Context, character *models.Character) error
	GetByID(ctx context.Context, id uint) (*models.Character, error)
	List(ctx context.Context, category string) ([]models.Character, error)
}

type GormCharacterRepository struct {
	db *gorm.DB
}

func NewGormCharacterRepository(db *gorm.DB) *GormCharacterRepository {
	return &GormCharacterRepository{db: db}
}

func (r *GormCharacterRepository) Create(ctx context.Context, character *models.Character) error {
	return r.db.WithContext(ctx).Create(character).Error
}

func (r *GormCharacterRepository) GetByID(ctx context.Context, id uint) (*models.Character, error) {
	var character models.Character
	if err := r.db.WithContext(ctx).First(&character, id).Error; err != nil {
		return nil, translate(err)
	}
	return &character, nil
}

// List returns all characters, or only those whose category equals category exactly
func (r *GormCharacterRepository) List(ctx context.Context, category string) ([]models.Character, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if category != "" {
		q = q.Where("category = ?", category)
	}

	characters := []models.Character{}
	if err := q.Find(&characters).Error; err != nil {
		return nil, err
	}
	return characters, nil
}
