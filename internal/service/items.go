package service

import (
	"context"
	"net/http"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
)

const itemsPath = "api/v1/items"

// ListItemsParams filters the item list. Nil fields are not sent.
type ListItemsParams struct {
	ConversationID *string
	Search         *string
	MimeType       *string
	ActiveOnly     *bool
}

func (p ListItemsParams) params() client.Params {
	return client.Params{
		"conversation_id": p.ConversationID,
		"search":          p.Search,
		"mime_type":       p.MimeType,
		"active_only":     p.ActiveOnly,
	}
}

// ItemService wraps the item endpoints of the management backend.
type ItemService struct {
	c Caller
}

// NewItemService creates an item service.
func NewItemService(c Caller) *ItemService {
	return &ItemService{c: c}
}

// List returns items matching params.
func (s *ItemService) List(ctx context.Context, params ListItemsParams) (*models.ItemsResponse, error) {
	resp, err := call[models.ItemsResponse](ctx, s.c, client.Request{
		Backend: client.BackendManagement,
		Method:  http.MethodGet,
		Path:    itemsPath,
		Params:  params.params(),
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get returns one item.
func (s *ItemService) Get(ctx context.Context, id string) (*models.Item, error) {
	resp, err := call[models.ItemResponse](ctx, s.c, client.Request{
		Backend: client.BackendManagement,
		Method:  http.MethodGet,
		Path:    itemsPath + "/" + pathID(id),
	})
	if err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// Update applies a partial update and returns the updated item.
func (s *ItemService) Update(ctx context.Context, id string, in models.ItemUpdate) (*models.Item, error) {
	return callEnveloped[models.Item](ctx, s.c, client.Request{
		Backend: client.BackendManagement,
		Method:  http.MethodPut,
		Path:    itemsPath + "/" + pathID(id),
		Body:    in,
	}, "item")
}

// Delete removes an item. Without permanent the backend soft-deletes it.
func (s *ItemService) Delete(ctx context.Context, id string, permanent bool) error {
	_, err := s.c.Call(ctx, client.Request{
		Backend: client.BackendManagement,
		Method:  http.MethodDelete,
		Path:    itemsPath + "/" + pathID(id),
		Params:  client.Params{"permanent": permanent},
	})
	return err
}

// DeleteByConversation removes every item of a conversation.
func (s *ItemService) DeleteByConversation(ctx context.Context, conversationID string, permanent bool) error {
	_, err := s.c.Call(ctx, client.Request{
		Backend: client.BackendManagement,
		Method:  http.MethodDelete,
		Path:    itemsPath + "/conversation/" + pathID(conversationID),
		Params:  client.Params{"permanent": permanent},
	})
	return err
}
