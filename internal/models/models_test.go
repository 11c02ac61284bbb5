package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCreateCharacterRequestDefaultsAvatar(t *testing.T) {
	req := CreateCharacterRequest{
		Name:           "Skyler",
		Age:            24,
		Description:    "A cheerful barista",
		WelcomeMessage: "Hey there!",
		Category:       CategoryRealism,
	}

	c := req.ToCharacter()
	assert.Equal(t, DefaultAvatarURL, c.ImageURL)

	req.ImageURL = "https://example.com/a.png"
	assert.Equal(t, "https://example.com/a.png", req.ToCharacter().ImageURL)
}

func TestCategoryAndMessageTypeChecks(t *testing.T) {
	assert.True(t, IsValidCategory("anime"))
	assert.False(t, IsValidCategory("Anime"))
	assert.False(t, IsValidCategory(""))

	assert.True(t, IsValidMessageType(MessageTypeImage))
	assert.False(t, IsValidMessageType("audio"))
}

func TestCreateMessageRequestDefaults(t *testing.T) {
	isUser := true
	msg := CreateMessageRequest{CharacterID: 1, SessionID: "abc123", Content: "hi", IsUser: &isUser}.ToMessage()

	assert.Equal(t, MessageTypeText, msg.MessageType)
	assert.True(t, msg.IsUser)
	assert.Zero(t, msg.ID)
}

func TestUserPasswordHashedOnCreate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(All()...))

	u := &User{Username: "skyler", Password: "secret-pass"}
	require.NoError(t, db.Create(u).Error)

	assert.NotEqual(t, "secret-pass", u.Password)
	assert.True(t, CheckPasswordHash("secret-pass", u.Password))
}
