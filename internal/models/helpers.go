package models

// FilterActive returns the items whose active flag is set.
func FilterActive(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Active {
			out = append(out, it)
		}
	}
	return out
}

// FilterByConversation returns the items that belong to conversationID.
func FilterByConversation(items []Item, conversationID string) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ConversationID == conversationID {
			out = append(out, it)
		}
	}
	return out
}

// Ptr returns a pointer to v. Handy for optional request fields.
func Ptr[T any](v T) *T {
	return &v
}
