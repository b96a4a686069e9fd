package service

import (
	"context"
	"net/http"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
)

const (
	chatPath        = "api/v1/chat"
	chatHistoryPath = "api/v1/chat/history"

	// DefaultHistoryLimit is the number of messages fetched when no limit is given.
	DefaultHistoryLimit = 20
)

// ChatService wraps the RAG chat endpoints.
type ChatService struct {
	c Caller
}

// NewChatService creates a chat service.
func NewChatService(c Caller) *ChatService {
	return &ChatService{c: c}
}

// Send posts a user message and returns the assistant's reply.
func (s *ChatService) Send(ctx context.Context, in models.ChatRequest) (*models.ChatResponse, error) {
	resp, err := call[models.ChatResponse](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodPost,
		Path:    chatPath,
		Body:    in,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns up to limit messages of a conversation, oldest first.
func (s *ChatService) History(ctx context.Context, conversationID string, limit int) (*models.ChatHistoryResponse, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	resp, err := call[models.ChatHistoryResponse](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodGet,
		Path:    chatHistoryPath + "/" + pathID(conversationID),
		Params:  client.Params{"limit": limit},
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message returns a single message of a conversation.
func (s *ChatService) Message(ctx context.Context, conversationID, messageID string) (*models.Message, error) {
	resp, err := call[models.Message](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodGet,
		Path:    chatHistoryPath + "/" + pathID(conversationID) + "/" + pathID(messageID),
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
