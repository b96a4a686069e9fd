package service

import (
	"context"
	"net/http"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
)

const conversationsPath = "api/v1/conversation"

// ListConversationsParams filters the conversation list.
type ListConversationsParams struct {
	Title *string
}

// ConversationService wraps the conversation endpoints of the chat backend.
type ConversationService struct {
	c Caller
}

// NewConversationService creates a conversation service.
func NewConversationService(c Caller) *ConversationService {
	return &ConversationService{c: c}
}

// List returns the conversations visible to the current user.
func (s *ConversationService) List(ctx context.Context, params ListConversationsParams) (*models.ConversationsResponse, error) {
	resp, err := call[models.ConversationsResponse](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodGet,
		Path:    conversationsPath,
		Params:  client.Params{"title": params.Title},
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get returns one conversation.
func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	resp, err := call[models.ConversationResponse](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodGet,
		Path:    conversationsPath + "/" + pathID(id),
	})
	if err != nil {
		return nil, err
	}
	return &resp.Conversation, nil
}

// Create creates a conversation.
func (s *ConversationService) Create(ctx context.Context, in models.ConversationCreate) (*models.Conversation, error) {
	resp, err := call[models.ConversationResponse](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodPost,
		Path:    conversationsPath,
		Body:    in,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Conversation, nil
}

// Update replaces a conversation's title and context.
func (s *ConversationService) Update(ctx context.Context, id string, in models.ConversationCreate) (*models.Conversation, error) {
	return callEnveloped[models.Conversation](ctx, s.c, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodPut,
		Path:    conversationsPath + "/" + pathID(id),
		Body:    in,
	}, "conversation")
}

// Delete deletes a conversation. The backend refuses conversations that still hold items.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	_, err := s.c.Call(ctx, client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodDelete,
		Path:    conversationsPath + "/" + pathID(id),
	})
	return err
}
