package repository

import (
	"context"
	"time"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	CreateIfSessionEmpty(ctx context.Context, message *models.ChatMessage) (bool, error)
	ListBySession(ctx context.Context, characterID uint, sessionID string) ([]models.ChatMessage, error)
	ListRecentBySession(ctx context.Context, characterID uint, sessionID string, messageType string, limit int) ([]models.ChatMessage, error)
}

type GormMessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db, now: time.Now}
}

// Create appends a message. The id and creation time are always assigned here.
func (r *GormMessageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	return r.create(r.db.WithContext(ctx), message)
}

func (r *GormMessageRepository) create(tx *gorm.DB, message *models.ChatMessage) error {
	message.ID = 0
	message.CreatedAt = r.now().UTC()
	if message.MessageType == "" {
		message.MessageType = models.MessageTypeText
	}
	return tx.Create(message).Error
}

// CreateIfSessionEmpty inserts message only when its session has no rows yet.
// On postgres the character row is locked first so concurrent callers on any
// instance serialise on it; sqlite already serialises writers.
func (r *GormMessageRepository) CreateIfSessionEmpty(ctx context.Context, message *models.ChatMessage) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := lockCharacter(tx, message.CharacterID).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := sessionScope(tx, message.CharacterID, message.SessionID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := r.create(tx, message); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// ListBySession returns the session log ordered by creation time, ties by id
func (r *GormMessageRepository) ListBySession(ctx context.Context, characterID uint, sessionID string) ([]models.ChatMessage, error) {
	messages := []models.ChatMessage{}
	err := sessionScope(r.db.WithContext(ctx), characterID, sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListRecentBySession returns the newest limit messages of the given type, oldest first.
// An empty messageType matches every type; limit <= 0 means no limit.
func (r *GormMessageRepository) ListRecentBySession(ctx context.Context, characterID uint, sessionID string, messageType string, limit int) ([]models.ChatMessage, error) {
	q := sessionScope(r.db.WithContext(ctx), characterID, sessionID)
	if messageType != "" {
		q = q.Where("message_type = ?", messageType)
	}
	q = q.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	messages := []models.ChatMessage{}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// lockCharacter selects the character row FOR UPDATE
func lockCharacter(tx *gorm.DB, characterID uint) *gorm.DB {
	var locked []models.Character
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", characterID).
		Find(&locked)
}

func sessionScope(db *gorm.DB, characterID uint, sessionID string) *gorm.DB {
	return db.Model(&models.ChatMessage{}).
		Where("character_id = ? AND session_id = ?", characterID, sessionID)
}
