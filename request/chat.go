package request

type ChatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type ChatRequest struct {
	Question           string        `json:"question" binding:"required"`
	Collection         string        `json:"collection" binding:"required"`
	Provider           string        `json:"provider"`
	Temperature        *float64      `json:"temperature"`
	TopK               *int          `json:"top_k"`
	SystemPrompt       string        `json:"system_prompt"`
	CustomInstructions string        `json:"custom_instructions"`
	History            []ChatMessage `json:"history"`
}
