package service

import (
	"context"
	"fmt"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/pkg/cache"
	"companion-chat/backend/pkg/logger"
)

const catalogCacheKey = "models"

// CatalogService serves the static AI model catalog
type CatalogService struct {
	repo  repository.ModelRepository
	cache *cache.Cache
	log   *logger.Logger
}

func NewCatalogService(repo repository.ModelRepository, c *cache.Cache, log *logger.Logger) *CatalogService {
	return &CatalogService{repo: repo, cache: c, log: log}
}

// ListModels returns the catalog, served from the in-process cache when warm
func (s *CatalogService) ListModels(ctx context.Context) ([]models.AIModel, error) {
	if s.cache == nil {
		return s.load(ctx)
	}

	v, err := s.cache.GetOrLoad(catalogCacheKey, func() (interface{}, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.AIModel), nil
}

func (s *CatalogService) load(ctx context.Context) ([]models.AIModel, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return list, nil
}

// Seed inserts the default catalog when the table is empty
func (s *CatalogService) Seed(ctx context.Context) error {
	n, err := s.repo.SeedIfEmpty(ctx, models.DefaultModels)
	if err != nil {
		return fmt.Errorf("seed models: %w", err)
	}
	if n > 0 {
		s.log.Info("Seeded model catalog", "count", n)
		if s.cache != nil {
			s.cache.Delete(catalogCacheKey)
		}
	}
	return nil
}
