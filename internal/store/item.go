package store

import (
	"slices"
	"sync"

	"github.com/raphaelgruber/docchat/internal/models"
)

// DeleteState says whether a conversation may be deleted, based on its item mirror.
type DeleteState int

const (
	// DeleteUnknown means the conversation's items have not been fetched yet.
	DeleteUnknown DeleteState = iota
	DeleteAllowed
	DeleteBlocked
)

func (d DeleteState) String() string {
	switch d {
	case DeleteAllowed:
		return "deletable"
	case DeleteBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ItemStore mirrors the item list of each conversation and carries a refresh
// counter that views watch to know when to re-read.
type ItemStore struct {
	mu      sync.RWMutex
	byConv  map[string][]models.Item
	refresh uint64
}

// NewItemStore creates an empty store.
func NewItemStore() *ItemStore {
	return &ItemStore{byConv: make(map[string][]models.Item)}
}

// Replace overwrites the mirror of a conversation with the server's list.
// Duplicate ids keep their first occurrence.
func (s *ItemStore) Replace(conversationID string, items []models.Item) {
	seen := make(map[string]bool, len(items))
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConv[conversationID] = out
}

// Items returns a copy of the mirror of a conversation.
func (s *ItemStore) Items(conversationID string) []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byConv[conversationID])
}

// Count returns the number of mirrored items and whether the conversation
// has been loaded at all.
func (s *ItemStore) Count(conversationID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, ok := s.byConv[conversationID]
	return len(items), ok
}

// DeleteState derives the delete affordance of a conversation.
func (s *ItemStore) DeleteState(conversationID string) DeleteState {
	n, ok := s.Count(conversationID)
	switch {
	case !ok:
		return DeleteUnknown
	case n > 0:
		return DeleteBlocked
	default:
		return DeleteAllowed
	}
}

// Find returns the mirrored copy of an item from any conversation.
func (s *ItemStore) Find(itemID string) (models.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, items := range s.byConv {
		for _, it := range items {
			if it.ID == itemID {
				return it, true
			}
		}
	}
	return models.Item{}, false
}

// Patch replaces the mirrored copy of item wherever it appears.
func (s *ItemStore) Patch(item models.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, items := range s.byConv {
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = item
				found = true
			}
		}
	}
	return found
}

// RemoveItem drops an item from every mirror.
func (s *ItemStore) RemoveItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conv, items := range s.byConv {
		s.byConv[conv] = slices.DeleteFunc(items, func(it models.Item) bool { return it.ID == itemID })
	}
}

// Forget drops the mirror of a conversation; its delete state becomes unknown.
func (s *ItemStore) Forget(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConv, conversationID)
}

// BumpRefresh increments the refresh counter and returns the new value.
func (s *ItemStore) BumpRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh++
	return s.refresh
}

// Refresh returns the current refresh counter.
func (s *ItemStore) Refresh() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Reset empties every mirror. The refresh counter keeps increasing across resets.
func (s *ItemStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConv = make(map[string][]models.Item)
}
