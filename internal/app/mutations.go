package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/reconcile"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/raphaelgruber/docchat/internal/store"
)

const pendingPrefix = "pending-"

// CreateConversation creates a conversation. An optimistic entry is shown in
// the conversation store until the server confirms it.
func (a *App) CreateConversation(ctx context.Context, title, contextText string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.NewValidationError("title", "is required")
	}

	tempID := pendingPrefix + uuid.NewString()
	now := time.Now()
	a.convs.AddPending(models.Conversation{ID: tempID, Title: title, Context: contextText, CreatedAt: now, UpdatedAt: now})

	conv, err := a.services.Conversations.Create(ctx, models.ConversationCreate{Title: title, Context: contextText})
	if err != nil {
		a.convs.Remove(tempID)
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	a.convs.Confirm(tempID, *conv)
	a.items.Replace(conv.ID, nil)
	a.cache.Invalidate(ConversationKeys.Lists())
	a.logger.Info("conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// UpdateConversation replaces a conversation's title and context.
func (a *App) UpdateConversation(ctx context.Context, id, title, contextText string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.NewValidationError("title", "is required")
	}

	conv, err := a.services.Conversations.Update(ctx, id, models.ConversationCreate{Title: title, Context: contextText})
	if err != nil {
		return nil, fmt.Errorf("update conversation %s: %w", id, err)
	}

	a.convs.Update(*conv)
	a.cache.Invalidate(ConversationKeys.Lists())
	a.cache.Invalidate(ConversationKeys.Detail(id))
	return conv, nil
}

// DeleteConversation deletes an empty conversation. A conversation whose item
// mirror is non-empty is refused with a ValidationError and nothing is sent;
// if the mirror was never loaded it is fetched first.
func (a *App) DeleteConversation(ctx context.Context, id string) error {
	state := a.items.DeleteState(id)
	if state == store.DeleteUnknown {
		if _, err := a.ItemsByConversation(ctx, id); err != nil {
			return fmt.Errorf("delete conversation %s: %w", id, err)
		}
		state = a.items.DeleteState(id)
	}
	if state == store.DeleteBlocked {
		n, _ := a.items.Count(id)
		return models.NewValidationError("items", "conversation still contains %d item(s); delete them first", n)
	}

	if err := a.services.Conversations.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}

	a.convs.Remove(id)
	a.items.Forget(id)
	if a.chat.Snapshot().ConversationID == id {
		a.chat.Clear()
	}
	a.cache.Invalidate(ConversationKeys.Lists())
	a.cache.Reset(ConversationKeys.Detail(id))
	a.cache.Reset(ItemKeys.Conversation(id))
	a.cache.Reset(ChatKeys.Conversation(id))
	a.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// UpdateItem applies a partial update with exactly one request.
func (a *App) UpdateItem(ctx context.Context, id string, update models.ItemUpdate) (*models.Item, error) {
	if update.FileName != nil && strings.TrimSpace(*update.FileName) == "" {
		return nil, models.NewValidationError("file_name", "must not be empty")
	}
	if update.FileName == nil && update.Active == nil {
		return nil, models.NewValidationError("", "nothing to update")
	}

	item, err := a.services.Items.Update(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("update item %s: %w", id, err)
	}

	conversationID := item.ConversationID
	if conversationID == "" {
		if known, ok := a.items.Find(id); ok {
			conversationID = known.ConversationID
		}
	}
	a.items.Patch(*item)
	a.invalidateItem(id, conversationID)
	return item, nil
}

// ToggleItemActive flips the active flag of item.
func (a *App) ToggleItemActive(ctx context.Context, item models.Item) (*models.Item, error) {
	return a.UpdateItem(ctx, item.ID, models.ItemUpdate{Active: models.Ptr(!item.Active)})
}

// RenameItem changes an item's file name.
func (a *App) RenameItem(ctx context.Context, id, name string) (*models.Item, error) {
	return a.UpdateItem(ctx, id, models.ItemUpdate{FileName: models.Ptr(strings.TrimSpace(name))})
}

// DeleteItem deletes an item and starts a refresh sequence for its conversation.
func (a *App) DeleteItem(ctx context.Context, id string, permanent bool) (*reconcile.Sequence, error) {
	item, ok := a.items.Find(id)
	if !ok {
		fetched, err := a.Item(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("delete item %s: %w", id, err)
		}
		item = *fetched
	}

	if err := a.services.Items.Delete(ctx, id, permanent); err != nil {
		return nil, fmt.Errorf("delete item %s: %w", id, err)
	}

	a.items.RemoveItem(id)
	a.invalidateItem(id, item.ConversationID)
	a.cache.Reset(ItemKeys.Detail(id))
	a.logger.Info("item deleted", "item_id", id, "conversation_id", item.ConversationID, "permanent", permanent)

	if item.ConversationID == "" {
		return nil, nil
	}
	return a.RefreshItems(item.ConversationID, a.schedules.AfterMutation), nil
}

// DeleteConversationItems deletes every item of a conversation.
func (a *App) DeleteConversationItems(ctx context.Context, conversationID string, permanent bool) (*reconcile.Sequence, error) {
	if err := a.services.Items.DeleteByConversation(ctx, conversationID, permanent); err != nil {
		return nil, fmt.Errorf("delete items of %s: %w", conversationID, err)
	}

	a.items.Replace(conversationID, nil)
	a.invalidateItem("", conversationID)
	a.cache.Invalidate(ItemKeys.Details())
	return a.RefreshItems(conversationID, a.schedules.AfterMutation), nil
}

// AddItem hands a source link to ingestion. The item appears in listings
// after a delay; the returned sequence refreshes the conversation until then.
func (a *App) AddItem(ctx context.Context, conversationID, link string) (*models.UploadResponse, *reconcile.Sequence, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, nil, models.NewValidationError("link", "is required")
	}
	if u, err := url.Parse(link); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, nil, models.NewValidationError("link", "must be an absolute URL")
	}
	if conversationID == "" {
		return nil, nil, models.NewValidationError("conversation", "is required")
	}

	resp, err := a.services.Upload.Upload(ctx, models.UploadRequest{DriverID: link, ConversationID: conversationID})
	if err != nil {
		return nil, nil, fmt.Errorf("add item: %w", err)
	}

	a.invalidateItem("", conversationID)
	a.logger.Info("item submitted for ingestion", "item_id", resp.ItemID, "conversation_id", conversationID)
	return resp, a.RefreshItems(conversationID, a.schedules.AfterMutation), nil
}

// SearchItems runs a server-side search and narrows the result to one
// conversation and, if asked, to active items. Results are not cached.
func (a *App) SearchItems(ctx context.Context, conversationID, term string, activeOnly bool) ([]models.Item, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, models.NewValidationError("search", "is required")
	}

	params := service.ListItemsParams{Search: &term}
	if conversationID != "" {
		params.ConversationID = &conversationID
	}
	resp, err := a.services.Items.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}

	items := resp.Items
	if conversationID != "" {
		items = models.FilterByConversation(items, conversationID)
	}
	if activeOnly {
		items = models.FilterActive(items)
	}
	return items, nil
}

// SendMessage posts a user message. The message is shown in the chat store
// immediately and rolled back if the request fails.
func (a *App) SendMessage(ctx context.Context, conversationID, text string, opts ...ChatOption) (*models.ChatResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("message", "is required")
	}
	if conversationID == "" {
		return nil, models.NewValidationError("conversation", "is required")
	}

	req := models.ChatRequest{ConversationID: conversationID, Message: text}
	for _, opt := range opts {
		opt(&req)
	}

	if a.chat.Snapshot().ConversationID != conversationID {
		a.chat.Set(conversationID, nil)
	}
	optimistic := models.Message{
		ID:             pendingPrefix + uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	a.chat.Append(optimistic)
	a.chat.SetLoading(true)
	a.chat.SetError(nil)
	defer a.chat.SetLoading(false)

	resp, err := a.services.Chat.Send(ctx, req)
	if err != nil {
		a.chat.Drop(optimistic.ID)
		a.chat.SetError(err)
		return nil, fmt.Errorf("send message: %w", err)
	}

	a.chat.Append(resp.Message)
	a.cache.Invalidate(ChatKeys.Conversation(conversationID))
	return resp, nil
}

// ChatOption adjusts a chat request.
type ChatOption func(*models.ChatRequest)

// WithRAG toggles retrieval for the request.
func WithRAG(enabled bool) ChatOption {
	return func(r *models.ChatRequest) { r.UseRAG = models.Ptr(enabled) }
}

// WithTopK sets the number of retrieved excerpts.
func WithTopK(k int) ChatOption {
	return func(r *models.ChatRequest) { r.TopK = models.Ptr(k) }
}

// RefreshItems forces a conversation's item list to be refetched at every
// offset of schedule. Each attempt evicts the cached list, refetches it into
// the item store and bumps the store's refresh counter.
func (a *App) RefreshItems(conversationID string, schedule reconcile.Schedule) *reconcile.Sequence {
	key := ItemKeys.Conversation(conversationID)
	return a.reconciler.Start("items:"+conversationID, schedule, func(ctx context.Context, _ int) error {
		a.cache.Invalidate(ItemKeys.Lists())
		a.cache.Reset(key)
		if _, err := a.fetchConversationItems(ctx, conversationID, true); err != nil {
			return err
		}
		a.items.BumpRefresh()
		return nil
	})
}

// CloseItemsDialog runs the shorter refresh schedule used when an item view closes.
func (a *App) CloseItemsDialog(conversationID string) *reconcile.Sequence {
	return a.RefreshItems(conversationID, a.schedules.OnDialogClose)
}

func (a *App) invalidateItem(itemID, conversationID string) {
	a.cache.Invalidate(ItemKeys.Lists())
	if conversationID != "" {
		a.cache.Invalidate(ItemKeys.Conversation(conversationID))
	}
	if itemID != "" {
		a.cache.Invalidate(ItemKeys.Detail(itemID))
	}
}
