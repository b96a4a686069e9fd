package fakeapi

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/raphaelgruber/docchat/internal/models"
)

func (b *Backend) listConversations(w http.ResponseWriter, r *http.Request) {
	title := strings.ToLower(r.URL.Query().Get("title"))

	b.mu.Lock()
	out := make([]models.Conversation, 0, len(b.conversations))
	for _, c := range b.conversations {
		if title == "" || strings.Contains(strings.ToLower(c.Title), title) {
			out = append(out, c)
		}
	}
	b.mu.Unlock()

	slices.SortFunc(out, func(x, y models.Conversation) int { return strings.Compare(x.ID, y.ID) })
	writeJSON(w, http.StatusOK, models.ConversationsResponse{Conversations: out, Total: len(out)})
}

func (b *Backend) createConversation(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r.Context())
	title, _ := stringField(body, "title")
	if title == "" {
		writeJSON(w, http.StatusUnprocessableEntity, models.HTTPValidationError{Detail: []models.FieldError{
			{Loc: []any{"body", "title"}, Msg: "field required", Type: "value_error.missing"},
		}})
		return
	}
	ctxText, _ := stringField(body, "context")

	c := b.SeedConversation(models.Conversation{Title: title, Context: ctxText, UserID: "user-1"})
	writeJSON(w, http.StatusCreated, models.ConversationResponse{Conversation: c})
}

func (b *Backend) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	c, ok := b.conversations[id]
	b.mu.Unlock()
	if !ok {
		notFound(w, "conversation", id)
		return
	}
	writeJSON(w, http.StatusOK, models.ConversationResponse{Conversation: c})
}

func (b *Backend) updateConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body := bodyOf(r.Context())

	b.mu.Lock()
	c, ok := b.conversations[id]
	if ok {
		if title, ok := stringField(body, "title"); ok {
			c.Title = title
		}
		if ctxText, ok := stringField(body, "context"); ok {
			c.Context = ctxText
		}
		c.UpdatedAt = b.now()
		b.conversations[id] = c
	}
	b.mu.Unlock()

	if !ok {
		notFound(w, "conversation", id)
		return
	}
	// The real backend answers updates with the bare resource.
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	_, ok := b.conversations[id]
	hasItems := len(b.itemsOf(id)) > 0
	if ok && !hasItems {
		delete(b.conversations, id)
		delete(b.messages, id)
	}
	b.mu.Unlock()

	switch {
	case !ok:
		notFound(w, "conversation", id)
	case hasItems:
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "conversation still has items"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *Backend) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conversationID := q.Get("conversation_id")
	search := strings.ToLower(q.Get("search"))
	mimeType := q.Get("mime_type")
	activeOnly := queryBool(r, "active_only")

	b.mu.Lock()
	b.promotePending()
	var out []models.Item
	for _, it := range b.itemsOf(conversationID) {
		if search != "" && !strings.Contains(strings.ToLower(it.FileName), search) {
			continue
		}
		if mimeType != "" && it.MimeType != mimeType {
			continue
		}
		if activeOnly && !it.Active {
			continue
		}
		out = append(out, it)
	}
	b.mu.Unlock()

	if out == nil {
		out = []models.Item{}
	}
	writeJSON(w, http.StatusOK, models.ItemsResponse{Items: out, Total: len(out)})
}

// promotePending makes lagging uploads visible once their listing budget is spent.
// Caller must hold b.mu.
func (b *Backend) promotePending() {
	kept := b.pending[:0]
	for _, p := range b.pending {
		if p.listsTil <= 0 {
			b.items[p.item.ID] = p.item
			continue
		}
		p.listsTil--
		kept = append(kept, p)
	}
	b.pending = kept
}

func (b *Backend) getItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	it, ok := b.items[id]
	b.mu.Unlock()
	if !ok {
		notFound(w, "item", id)
		return
	}
	writeJSON(w, http.StatusOK, models.ItemResponse{Item: it})
}

func (b *Backend) updateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body := bodyOf(r.Context())

	b.mu.Lock()
	it, ok := b.items[id]
	if ok {
		if name, ok := stringField(body, "file_name"); ok {
			it.FileName = name
		}
		if active, ok := body["active"].(bool); ok {
			it.Active = active
		}
		it.UpdatedAt = b.now()
		b.items[id] = it
	}
	b.mu.Unlock()

	if !ok {
		notFound(w, "item", id)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (b *Backend) deleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.items[id]
	delete(b.items, id)
	b.mu.Unlock()
	if !ok {
		notFound(w, "item", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) deleteConversationItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	for _, it := range b.itemsOf(id) {
		delete(b.items, it.ID)
	}
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r.Context())
	link, _ := stringField(body, "driver_id")
	conversationID, _ := stringField(body, "conversation_id")
	if link == "" {
		writeJSON(w, http.StatusUnprocessableEntity, models.HTTPValidationError{Detail: []models.FieldError{
			{Loc: []any{"body", "driver_id"}, Msg: "field required", Type: "value_error.missing"},
		}})
		return
	}

	name := link[strings.LastIndex(link, "/")+1:]
	b.mu.Lock()
	it := models.Item{
		ID:             uuid.NewString(),
		FileName:       name,
		MimeType:       "application/pdf",
		Size:           1024,
		SourceURI:      link,
		Active:         true,
		ConversationID: conversationID,
		UserID:         "user-1",
		CreatedAt:      b.now(),
		UpdatedAt:      b.now(),
	}
	if b.ingestLag > 0 {
		b.pending = append(b.pending, pendingItem{item: it, listsTil: b.ingestLag})
	} else {
		b.items[it.ID] = it
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, models.UploadResponse{ItemID: it.ID, FileName: it.FileName, MimeType: it.MimeType, Size: it.Size})
}

func (b *Backend) sendMessage(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r.Context())
	conversationID, _ := stringField(body, "conversation_id")
	text, _ := stringField(body, "message")

	b.mu.Lock()
	now := b.now()
	user := models.Message{ID: uuid.NewString(), ConversationID: conversationID, Role: models.RoleUser, Content: text, CreatedAt: now}
	reply := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        "echo: " + text,
		CreatedAt:      now,
	}
	for _, it := range b.itemsOf(conversationID) {
		if it.Active {
			reply.References = append(reply.References, models.Reference{ItemID: it.ID, FileName: it.FileName, Content: "excerpt", Score: 0.9})
		}
	}
	b.messages[conversationID] = append(b.messages[conversationID], user, reply)
	b.mu.Unlock()

	sources := make([]string, 0, len(reply.References))
	for _, ref := range reply.References {
		sources = append(sources, ref.FileName)
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{Message: reply, Sources: sources})
}

func (b *Backend) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	b.mu.Lock()
	msgs := slices.Clone(b.messages[id])
	b.mu.Unlock()

	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, models.ChatHistoryResponse{Messages: msgs, Total: len(msgs)})
}

func (b *Backend) message(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages[id] {
		if m.ID == messageID {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	notFound(w, "message", messageID)
}
