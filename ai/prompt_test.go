package ai

import (
	"testing"

	"companion-chat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var skyler = &models.Character{ID: 1, Name: "Skyler", Description: "a cheerful barista who loves indie music"}

func TestPersonaPrompt(t *testing.T) {
	p := PersonaPrompt(skyler)
	assert.Contains(t, p, "You are Skyler, a chat companion with the following personality: a cheerful barista who loves indie music.")
	assert.Contains(t, p, "Never break character")
}

func TestBuildConversationUsesTextHistory(t *testing.T) {
	history := []models.ChatMessage{
		{Content: "Hey there!", IsUser: false, MessageType: models.MessageTypeText},
		{Content: "at the beach", IsUser: true, MessageType: models.MessageTypeImage},
		{Content: "https://picsum.photos/seed/x/400/400", IsUser: false, MessageType: models.MessageTypeImage},
		{Content: "hi", IsUser: true, MessageType: models.MessageTypeText},
	}

	msgs := BuildConversation(skyler, history)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hey there!", msgs[1].Content)
	assert.Equal(t, RoleUser, msgs[2].Role)
	assert.Equal(t, "hi", msgs[2].Content)
}

func TestImagePrompts(t *testing.T) {
	assert.Equal(t, "I'll create an image of a selfie", ImageAcknowledgement("a selfie"))
	assert.Equal(t, "Photorealistic portrait photo of a cheerful barista who loves indie music, a selfie", PosePrompt(skyler, "a selfie"))
	assert.Contains(t, EnhanceImagePrompt("x", StyleNatural), "natural")
	assert.True(t, ValidRole("assistant"))
	assert.False(t, ValidRole("tool"))
}
