package app

import (
	"strconv"

	"github.com/raphaelgruber/docchat/internal/cache"
	"github.com/raphaelgruber/docchat/internal/service"
)

type conversationKeys struct{}

type itemKeys struct{}

type chatKeys struct{}

// Key factories. Every key of a family starts with its All key, so
// invalidating All reaches every query of the family.
var (
	ConversationKeys conversationKeys
	ItemKeys         itemKeys
	ChatKeys         chatKeys
)

func (conversationKeys) All() cache.Key { return cache.NewKey("conversations") }

func (k conversationKeys) Lists() cache.Key { return k.All().With("list") }

func (k conversationKeys) List(title string) cache.Key {
	return k.Lists().With(cache.Filters(map[string]string{"title": title}))
}

func (k conversationKeys) Details() cache.Key { return k.All().With("detail") }

func (k conversationKeys) Detail(id string) cache.Key { return k.Details().With(id) }

func (itemKeys) All() cache.Key { return cache.NewKey("items") }

func (k itemKeys) Lists() cache.Key { return k.All().With("list") }

func (k itemKeys) List(p service.ListItemsParams) cache.Key {
	return k.Lists().With(cache.Filters(map[string]string{
		"conversation_id": deref(p.ConversationID),
		"search":          deref(p.Search),
		"mime_type":       deref(p.MimeType),
		"active_only":     boolFilter(p.ActiveOnly),
	}))
}

// Conversation is the key of one conversation's item list.
func (k itemKeys) Conversation(conversationID string) cache.Key {
	return k.All().With("conversation", conversationID)
}

func (k itemKeys) Details() cache.Key { return k.All().With("detail") }

func (k itemKeys) Detail(id string) cache.Key { return k.Details().With(id) }

func (chatKeys) All() cache.Key { return cache.NewKey("chat") }

func (k chatKeys) Histories() cache.Key { return k.All().With("history") }

// Conversation is the prefix of every history key of one conversation.
func (k chatKeys) Conversation(conversationID string) cache.Key {
	return k.Histories().With(conversationID)
}

func (k chatKeys) History(conversationID string, limit int) cache.Key {
	return k.Conversation(conversationID).With(strconv.Itoa(limit))
}

func (k chatKeys) Message(conversationID, messageID string) cache.Key {
	return k.All().With("message", conversationID, messageID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolFilter(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
