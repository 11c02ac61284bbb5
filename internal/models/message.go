package models

import (
	"time"
)

// Message types
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// ChatMessage is one append-only entry of a (character, session) log.
// Content holds either text or an image URL depending on MessageType.
type ChatMessage struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CharacterID uint      `json:"characterId" gorm:"not null;index:idx_chat_messages_session,priority:1"`
	SessionID   string    `json:"sessionId" gorm:"not null;index:idx_chat_messages_session,priority:2"`
	Content     string    `json:"content" gorm:"type:text;not null"`
	IsUser      bool      `json:"isUser" gorm:"not null"`
	MessageType string    `json:"messageType" gorm:"not null;default:text"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;index:idx_chat_messages_session,priority:3"`
}

// TableName overrides the table name
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// CreateMessageRequest is the body of POST /api/messages. Client supplied ids
// and timestamps are not part of it.
type CreateMessageRequest struct {
	CharacterID uint   `json:"characterId" binding:"required"`
	SessionID   string `json:"sessionId" binding:"required,notblank,max=128"`
	Content     string `json:"content" binding:"required"`
	IsUser      *bool  `json:"isUser" binding:"required"`
	MessageType string `json:"messageType" binding:"omitempty,oneof=text image"`
}

// ToMessage converts the request into a row
func (r CreateMessageRequest) ToMessage() *ChatMessage {
	msgType := r.MessageType
	if msgType == "" {
		msgType = MessageTypeText
	}
	return &ChatMessage{
		CharacterID: r.CharacterID,
		SessionID:   r.SessionID,
		Content:     r.Content,
		IsUser:      r.IsUser != nil && *r.IsUser,
		MessageType: msgType,
	}
}

// IsValidMessageType reports whether t is text or image
func IsValidMessageType(t string) bool {
	return t == MessageTypeText || t == MessageTypeImage
}
