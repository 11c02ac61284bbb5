package ai

import (
	"fmt"
	"strings"

	"companion-chat/backend/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

// Fixed texts persisted by a chat turn
const (
	ChatFallbackMessage  = "Sorry, I couldn't process that message. Please try again in a moment."
	ImageFallbackMessage = "Sorry, I couldn't generate that image right now. Please try again later."
)

// PersonaPrompt frames the character's description as the system instruction
func PersonaPrompt(c *models.Character) string {
	return fmt.Sprintf(
		"You are %s, a chat companion with the following personality: %s. "+
			"Respond in character, keeping replies concise (1-3 sentences max), conversational, and engaging. "+
			"Never break character or mention that you are an AI.",
		c.Name, c.Description,
	)
}

// ImageAcknowledgement is the interim reply persisted before an image is generated
func ImageAcknowledgement(userText string) string {
	return "I'll create an image of " + userText
}

// PosePrompt combines the character's look with what the user asked for
func PosePrompt(c *models.Character, userText string) string {
	return fmt.Sprintf("Photorealistic portrait photo of %s, %s", c.Description, userText)
}

// EnhanceImagePrompt wraps a subject in portrait-photography direction for DALL-E
func EnhanceImagePrompt(prompt, style string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a photorealistic portrait photo of %s. ", strings.TrimSpace(prompt))
	b.WriteString("The image should be a highly detailed, professional portrait photograph with soft studio lighting, ")
	b.WriteString("shallow depth of field, and a neutral background. Focus on creating a lifelike, ")
	b.WriteString("attractive person with natural skin texture, realistic eyes, and detailed hair. ")
	b.WriteString("The portrait should frame the face and upper shoulders, similar to a professional ")
	b.WriteString("headshot or modeling portrait. Ensure the image has high-quality details and photorealistic qualities.")
	if style == StyleNatural {
		b.WriteString(" Keep colors and lighting natural and understated.")
	}
	return b.String()
}

// BuildConversation turns a session history into the upstream message list:
// the persona prompt first, then each text message in order. Image messages are skipped.
func BuildConversation(c *models.Character, history []models.ChatMessage) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: RoleSystem, Content: PersonaPrompt(c)})

	for _, m := range history {
		if m.MessageType == models.MessageTypeImage || m.Content == "" {
			continue
		}
		role := RoleAssistant
		if m.IsUser {
			role = RoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return messages
}

// ValidRole reports whether role may appear in a relayed conversation
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
