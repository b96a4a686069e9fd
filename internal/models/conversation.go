// Package models defines the data structures exchanged with the docchat backends.
package models

import "time"

// Conversation is a user-created folder of items with its own chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `json:"user_id"`
}

// ConversationCreate is the body for creating or updating a conversation.
type ConversationCreate struct {
	Title   string `json:"title"`
	Context string `json:"context"`
}

// ConversationsResponse is the list envelope returned by the conversation endpoint.
type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// ConversationResponse is the single-conversation envelope.
type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}
