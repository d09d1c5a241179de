package dto

import (
	"time"

	"github.com/google/uuid"
)

// NewChatResponse is the documented flat body of POST /chat/new.
type NewChatResponse struct {
	ChatId string `json:"chat_id"`
}

// ChatRequest is the documented body of POST /chat. The Neon API key travels
// per request so one deployment can serve many Neon accounts; when omitted
// the service falls back to the configured NEON_API_KEY.
type ChatRequest struct {
	Query      string `json:"query" validate:"required"`
	NeonApiKey string `json:"neon_api_key"`
	ChatId     string `json:"chat_id" validate:"required,uuid4"`
}

// ChatResponse is the documented flat body of POST /chat.
type ChatResponse struct {
	Response     string         `json:"response"`
	ActionResult map[string]any `json:"action_result,omitempty"`
}

type GetChatHistoryResponse struct {
	Id           uuid.UUID      `json:"id"`
	Role         string         `json:"role"`
	Content      string         `json:"content"`
	ActionResult map[string]any `json:"action_result,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
