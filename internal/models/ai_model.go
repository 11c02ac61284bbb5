package models

// AIModel is a static catalog entry. Value is the routing id sent upstream.
type AIModel struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Value       string `json:"value" gorm:"not null;uniqueIndex"`
	Description string `json:"description" gorm:"type:text"`
}

// TableName overrides the table name
func (AIModel) TableName() string {
	return "ai_models"
}

// DefaultModels is the catalog seeded into an empty ai_models table
var DefaultModels = []AIModel{
	{
		Name:        "GPT-4.1",
		Value:       "provider-4/gpt-4.1",
		Description: "Advanced AI model for natural language understanding and generation",
	},
	{
		Name:        "Claude 3.7 Sonnet",
		Value:       "provider-4/claude-3.7-sonnet",
		Description: "Anthropic's Claude model with improved conversation and reasoning",
	},
	{
		Name:        "Gemini 2.5 Pro",
		Value:       "provider-4/gemini-2.5-pro-exp-03-25",
		Description: "Google's multimodal AI model with strong reasoning capabilities",
	},
	{
		Name:        "GPT-4.1 Mini",
		Value:       "provider-4/gpt-4.1-mini",
		Description: "Smaller, faster version of GPT-4.1 with similar capabilities",
	},
	{
		Name:        "Mistral Large",
		Value:       "provider-4/mistral-large-latest",
		Description: "Powerful open-source large language model",
	},
}
