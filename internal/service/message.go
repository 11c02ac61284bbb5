package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/pkg/logger"

	"github.com/google/uuid"
)

// MaxSessionIDLength bounds client supplied session keys
const MaxSessionIDLength = 128

// CharacterGetter is the part of CharacterService other services need
type CharacterGetter interface {
	GetCharacter(ctx context.Context, id uint) (*models.Character, error)
}

// MessageService appends and lists session messages and seeds welcome messages
type MessageService struct {
	repo       repository.MessageRepository
	characters CharacterGetter
	store      Store
	lockTTL    time.Duration
	locks      *keyedMutex
	log        *logger.Logger
}

// NewMessageService creates the service. store may be nil; the in-process
// lock then guards welcome seeding alone.
func NewMessageService(repo repository.MessageRepository, characters CharacterGetter, store Store, lockTTL time.Duration, log *logger.Logger) *MessageService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &MessageService{
		repo:       repo,
		characters: characters,
		store:      store,
		lockTTL:    lockTTL,
		locks:      newKeyedMutex(),
		log:        log,
	}
}

// ValidateSessionID checks a client supplied session key
func ValidateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidSession)
	}
	if len(sessionID) > MaxSessionIDLength {
		return fmt.Errorf("%w: sessionId is longer than %d characters", ErrInvalidSession, MaxSessionIDLength)
	}
	return nil
}

// AppendMessage persists one message. The referenced character must exist.
func (s *MessageService) AppendMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	if msg.CharacterID == 0 {
		return nil, fmt.Errorf("%w: characterId is required", ErrInvalidMessage)
	}
	if err := ValidateSessionID(msg.SessionID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeText
	}
	if !models.IsValidMessageType(msg.MessageType) {
		return nil, fmt.Errorf("%w: messageType must be text or image", ErrInvalidMessage)
	}

	if _, err := s.characters.GetCharacter(ctx, msg.CharacterID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the session log ordered by creation time
func (s *MessageService) ListMessages(ctx context.Context, characterID uint, sessionID string) ([]models.ChatMessage, error) {
	messages, err := s.repo.ListBySession(ctx, characterID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// RecentTextMessages returns up to limit of the newest text messages, oldest first
func (s *MessageService) RecentTextMessages(ctx context.Context, characterID uint, sessionID string, limit int) ([]models.ChatMessage, error) {
	messages, err := s.repo.ListRecentBySession(ctx, characterID, sessionID, models.MessageTypeText, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return messages, nil
}

// Session is the state returned when a chat view opens
type Session struct {
	CharacterID uint                 `json:"characterId"`
	SessionID   string               `json:"sessionId"`
	Seeded      bool                 `json:"seeded"`
	Messages    []models.ChatMessage `json:"messages"`
}

// OpenSession seeds the character's welcome message when the session has no
// messages yet and returns the session log. Seeding happens at most once per session.
func (s *MessageService) OpenSession(ctx context.Context, characterID uint, sessionID string) (*Session, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	character, err := s.characters.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}

	seeded := false
	if strings.TrimSpace(character.WelcomeMessage) != "" {
		seeded, err = s.seedWelcome(ctx, character, sessionID)
		if err != nil {
			return nil, err
		}
	}

	messages, err := s.ListMessages(ctx, characterID, sessionID)
	if err != nil {
		return nil, err
	}

	return &Session{
		CharacterID: characterID,
		SessionID:   sessionID,
		Seeded:      seeded,
		Messages:    messages,
	}, nil
}

func (s *MessageService) seedWelcome(ctx context.Context, character *models.Character, sessionID string) (bool, error) {
	key := fmt.Sprintf("%d:%s", character.ID, sessionID)

	unlock := s.locks.Lock(key)
	defer unlock()

	release := s.acquireShared(ctx, "welcome-lock:"+key)
	defer release()

	created, err := s.repo.CreateIfSessionEmpty(ctx, &models.ChatMessage{
		CharacterID: character.ID,
		SessionID:   sessionID,
		Content:     character.WelcomeMessage,
		IsUser:      false,
		MessageType: models.MessageTypeText,
	})
	if err != nil {
		return false, fmt.Errorf("seed welcome message: %w", err)
	}
	if created {
		s.log.WithContext(ctx).WithSession(character.ID, sessionID).Info("Welcome message seeded")
	}
	return created, nil
}

// acquireShared takes the cross-instance lock when a store is configured.
// If the store is unreachable or the lock cannot be taken within lockTTL the
// caller proceeds and relies on CreateIfSessionEmpty, which locks the
// character row on postgres.
func (s *MessageService) acquireShared(ctx context.Context, key string) func() {
	if s.store == nil {
		return func() {}
	}

	token := uuid.NewString()
	deadline := time.Now().Add(s.lockTTL)
	for {
		ok, err := s.store.SetNX(ctx, key, token, s.lockTTL)
		if err != nil {
			s.log.Warn("Shared session lock unavailable", "key", key, "error", err.Error())
			return func() {}
		}
		if ok {
			return func() {
				released, err := s.store.CompareAndDelete(context.WithoutCancel(ctx), key, token)
				switch {
				case err != nil:
					s.log.Debug("Shared session lock release failed", "key", key, "error", err.Error())
				case !released:
					s.log.Warn("Shared session lock expired before release", "key", key)
				}
			}
		}
		if time.Now().After(deadline) {
			s.log.Warn("Timed out waiting for shared session lock", "key", key)
			return func() {}
		}

		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(50 * time.Millisecond):
		}
	}
}
