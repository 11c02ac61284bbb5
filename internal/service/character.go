package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/pkg/logger"
)

// Age bounds accepted on create
const (
	MinCharacterAge = 18
	MaxCharacterAge = 120
)

type CharacterService struct {
	repo     repository.CharacterRepository
	store    Store
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewCharacterService creates the service. store may be nil to disable the shared cache.
func NewCharacterService(repo repository.CharacterRepository, store Store, cacheTTL time.Duration, log *logger.Logger) *CharacterService {
	return &CharacterService{
		repo:     repo,
		store:    store,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// ListCharacters returns every character, or those whose category matches exactly
func (s *CharacterService) ListCharacters(ctx context.Context, category string) ([]models.Character, error) {
	characters, err := s.repo.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return characters, nil
}

// GetCharacter looks a character up by id, consulting the shared cache first
func (s *CharacterService) GetCharacter(ctx context.Context, id uint) (*models.Character, error) {
	if c := s.cached(ctx, id); c != nil {
		return c, nil
	}

	character, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCharacterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get character %d: %w", id, err)
	}

	s.remember(ctx, character)
	return character, nil
}

// CreateCharacter validates and stores a new character. Nothing is written when validation fails.
func (s *CharacterService) CreateCharacter(ctx context.Context, req *models.CreateCharacterRequest) (*models.Character, error) {
	if err := validateCharacter(req); err != nil {
		return nil, err
	}

	character := req.ToCharacter()
	if err := s.repo.Create(ctx, character); err != nil {
		return nil, fmt.Errorf("create character: %w", err)
	}

	s.log.WithContext(ctx).Info("Character created", "character_id", character.ID, "category", character.Category)
	return character, nil
}

func validateCharacter(req *models.CreateCharacterRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidCharacter)
	case strings.TrimSpace(req.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidCharacter)
	case strings.TrimSpace(req.WelcomeMessage) == "":
		return fmt.Errorf("%w: welcomeMessage is required", ErrInvalidCharacter)
	case req.Age < MinCharacterAge || req.Age > MaxCharacterAge:
		return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidCharacter, MinCharacterAge, MaxCharacterAge)
	case !models.IsValidCategory(req.Category):
		return fmt.Errorf("%w: unknown category %q", ErrInvalidCharacter, req.Category)
	}
	if req.ImageURL != "" {
		u, err := url.ParseRequestURI(req.ImageURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: imageUrl must be an absolute URL", ErrInvalidCharacter)
		}
	}
	return nil
}

func cacheKey(id uint) string {
	return fmt.Sprintf("character:%d", id)
}

func (s *CharacterService) cached(ctx context.Context, id uint) *models.Character {
	if s.store == nil {
		return nil
	}
	raw, err := s.store.Get(ctx, cacheKey(id))
	if err != nil || raw == "" {
		return nil
	}
	var c models.Character
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.log.Warn("Dropping unreadable cached character", "character_id", id, "error", err.Error())
		_ = s.store.Del(ctx, cacheKey(id))
		return nil
	}
	return &c
}

func (s *CharacterService) remember(ctx context.Context, c *models.Character) {
	if s.store == nil {
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, cacheKey(c.ID), raw, s.cacheTTL); err != nil {
		s.log.Debug("Character cache write failed", "character_id", c.ID, "error", err.Error())
	}
}
