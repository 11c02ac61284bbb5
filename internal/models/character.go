package models

import (
	"time"
)

// DefaultAvatarURL is used when a character is created without an image.
const DefaultAvatarURL = "https://images.unsplash.com/photo-1494790108377-be9c29b29330"

// Character categories accepted on create. Filtering is an exact string match.
const (
	CategoryAnime   = "anime"
	CategoryFantasy = "fantasy"
	CategoryRealism = "realism"
	CategoryOther   = "other"
)

// Categories lists every accepted category label
var Categories = []string{CategoryAnime, CategoryFantasy, CategoryRealism, CategoryOther}

// Character is a companion profile. The description doubles as the persona prompt.
type Character struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name" gorm:"not null"`
	Age            int       `json:"age" gorm:"not null"`
	Description    string    `json:"description" gorm:"type:text;not null"`
	WelcomeMessage string    `json:"welcomeMessage" gorm:"type:text;not null"`
	ImageURL       string    `json:"imageUrl" gorm:"not null"`
	Category       string    `json:"category" gorm:"not null;default:anime;index"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TableName overrides the table name
func (Character) TableName() string {
	return "characters"
}

type CreateCharacterRequest struct {
	Name           string `json:"name" binding:"required,notblank,max=100"`
	Age            int    `json:"age" binding:"required,gte=18,lte=120"`
	Description    string `json:"description" binding:"required,notblank"`
	WelcomeMessage string `json:"welcomeMessage" binding:"required,notblank"`
	ImageURL       string `json:"imageUrl" binding:"omitempty,url"`
	Category       string `json:"category" binding:"required,category"`
}

// ToCharacter converts the request into a row, applying the avatar default.
func (r CreateCharacterRequest) ToCharacter() *Character {
	imageURL := r.ImageURL
	if imageURL == "" {
		imageURL = DefaultAvatarURL
	}
	return &Character{
		Name:           r.Name,
		Age:            r.Age,
		Description:    r.Description,
		WelcomeMessage: r.WelcomeMessage,
		ImageURL:       imageURL,
		Category:       r.Category,
	}
}

// IsValidCategory reports whether c is one of the known category labels
func IsValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
