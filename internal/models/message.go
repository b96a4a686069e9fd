package models

import "time"

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single chat message within a conversation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
	References     []Reference `json:"references,omitempty"`
}

// Reference points an assistant message back at the item excerpt it was grounded on.
type Reference struct {
	ItemID   string  `json:"item_id"`
	FileName string  `json:"file_name"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// ChatRequest is the body for sending a message to the chat service.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	UseRAG         *bool  `json:"use_rag,omitempty"`
	TopK           *int   `json:"top_k,omitempty"`
}

// ChatResponse is the chat service's reply. SourceNodes and Sources are passed through as-is.
type ChatResponse struct {
	Message     Message          `json:"message"`
	SourceNodes []map[string]any `json:"source_nodes,omitempty"`
	Sources     []string         `json:"sources,omitempty"`
}

// ChatHistoryResponse is the ordered message history of a conversation.
type ChatHistoryResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
