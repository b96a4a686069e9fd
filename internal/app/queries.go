package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/docchat/internal/cache"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
)

// Conversations lists conversations, optionally filtered by title. The
// unfiltered list is merged into the conversation store and returned from
// it, so optimistic entries are included.
func (a *App) Conversations(ctx context.Context, title string) ([]models.Conversation, error) {
	params := service.ListConversationsParams{}
	if title != "" {
		params.Title = &title
	}

	list, err := cache.Fetch(ctx, a.cache, ConversationKeys.List(title), a.policies.Conversations,
		func(ctx context.Context) ([]models.Conversation, error) {
			resp, err := a.services.Conversations.List(ctx, params)
			if err != nil {
				return nil, err
			}
			return resp.Conversations, nil
		})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if title != "" {
		return list, nil
	}
	if res := a.convs.Reconcile(list); res.Changed() {
		a.logger.Debug("conversation list reconciled", "added", res.Added, "updated", res.Updated, "removed", res.Removed)
	}
	return a.convs.List(), nil
}

// Conversation returns one conversation.
func (a *App) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := cache.Fetch(ctx, a.cache, ConversationKeys.Detail(id), a.policies.Conversations,
		func(ctx context.Context) (models.Conversation, error) {
			c, err := a.services.Conversations.Get(ctx, id)
			if err != nil {
				return models.Conversation{}, err
			}
			return *c, nil
		})
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	a.convs.Update(conv)
	return &conv, nil
}

// Items lists items across conversations.
func (a *App) Items(ctx context.Context, params service.ListItemsParams) ([]models.Item, error) {
	items, err := cache.Fetch(ctx, a.cache, ItemKeys.List(params), a.policies.Items, a.listItems(params))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ItemsByConversation fetches a conversation's items and overwrites its mirror.
func (a *App) ItemsByConversation(ctx context.Context, conversationID string) ([]models.Item, error) {
	return a.fetchConversationItems(ctx, conversationID, false)
}

func (a *App) fetchConversationItems(ctx context.Context, conversationID string, force bool) ([]models.Item, error) {
	fetch := cache.Fetch[[]models.Item]
	if force {
		fetch = cache.Refetch[[]models.Item]
	}

	fn := a.listItems(service.ListItemsParams{ConversationID: &conversationID})
	items, err := fetch(ctx, a.cache, ItemKeys.Conversation(conversationID), a.policies.Items, fn)
	if errors.Is(err, cache.ErrSuperseded) {
		// A mutation landed while listing; the mirror already reflects it.
		a.logger.Debug("item listing superseded", "conversation_id", conversationID)
		return a.items.Items(conversationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", conversationID, err)
	}

	// The backend may ignore the filter for items moved between conversations.
	items = models.FilterByConversation(items, conversationID)
	a.items.Replace(conversationID, items)
	return items, nil
}

func (a *App) listItems(params service.ListItemsParams) cache.FetchFunc[[]models.Item] {
	return func(ctx context.Context) ([]models.Item, error) {
		resp, err := a.services.Items.List(ctx, params)
		if err != nil {
			return nil, err
		}
		return resp.Items, nil
	}
}

// Item returns one item.
func (a *App) Item(ctx context.Context, id string) (*models.Item, error) {
	item, err := cache.Fetch(ctx, a.cache, ItemKeys.Detail(id), a.policies.Items,
		func(ctx context.Context) (models.Item, error) {
			it, err := a.services.Items.Get(ctx, id)
			if err != nil {
				return models.Item{}, err
			}
			return *it, nil
		})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// ChatHistory returns the last limit messages of a conversation and makes it
// the active transcript. A non-positive limit uses the default.
func (a *App) ChatHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = service.DefaultHistoryLimit
	}

	msgs, err := cache.Fetch(ctx, a.cache, ChatKeys.History(conversationID, limit), a.policies.Chat,
		func(ctx context.Context) ([]models.Message, error) {
			resp, err := a.services.Chat.History(ctx, conversationID, limit)
			if err != nil {
				return nil, err
			}
			return resp.Messages, nil
		})
	if err != nil {
		return nil, fmt.Errorf("chat history of %s: %w", conversationID, err)
	}

	a.chat.Set(conversationID, msgs)
	return msgs, nil
}

// Message returns one message of a conversation.
func (a *App) Message(ctx context.Context, conversationID, messageID string) (*models.Message, error) {
	msg, err := cache.Fetch(ctx, a.cache, ChatKeys.Message(conversationID, messageID), a.policies.Chat,
		func(ctx context.Context) (models.Message, error) {
			m, err := a.services.Chat.Message(ctx, conversationID, messageID)
			if err != nil {
				return models.Message{}, err
			}
			return *m, nil
		})
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	return &msg, nil
}

// WatchItems returns a poller for a conversation's items. Run it in a
// goroutine; every result has already been written to the item store when
// onUpdate is called. Superseded polls are skipped.
func (a *App) WatchItems(conversationID string, onUpdate func([]models.Item, error)) *cache.Poller[[]models.Item] {
	fn := a.listItems(service.ListItemsParams{ConversationID: &conversationID})
	return cache.NewPoller(a.cache, ItemKeys.Conversation(conversationID), a.policies.Items, fn,
		func(items []models.Item, err error) {
			if err == nil {
				items = models.FilterByConversation(items, conversationID)
				a.items.Replace(conversationID, items)
			}
			onUpdate(items, err)
		})
}
