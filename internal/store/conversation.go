package store

import (
	"sync"

	"github.com/raphaelgruber/docchat/internal/models"
)

type conversationEntry struct {
	conv    models.Conversation
	pending bool
}

// ReconcileResult counts the changes a reconcile applied.
type ReconcileResult struct {
	Added   int
	Updated int
	Removed int
}

// Changed reports whether the reconcile modified the list.
func (r ReconcileResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

// ConversationStore mirrors the conversation list and the selected conversation.
type ConversationStore struct {
	mu       sync.RWMutex
	entries  []conversationEntry
	selected string
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// List returns the conversations in display order.
func (s *ConversationStore) List() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.conv)
	}
	return out
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.index(id); i >= 0 {
		return s.entries[i].conv, true
	}
	return models.Conversation{}, false
}

// IsPending reports whether id is an optimistic entry not yet confirmed by the server.
func (s *ConversationStore) IsPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(id)
	return i >= 0 && s.entries[i].pending
}

// Add inserts a confirmed conversation, or replaces the entry with the same id.
func (s *ConversationStore) Add(c models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(c, false)
}

// AddPending inserts an optimistic conversation. It survives reconciles until
// Confirm or Remove is called for its id.
func (s *ConversationStore) AddPending(c models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(c, true)
}

// Confirm replaces the pending entry tempID with the server's record. The
// selection follows the entry.
func (s *ConversationStore) Confirm(tempID string, c models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == tempID {
		s.selected = c.ID
	}
	i := s.index(tempID)
	if i < 0 {
		s.put(c, false)
		return
	}
	// The server record may already have arrived through a reconcile.
	if j := s.index(c.ID); j >= 0 && j != i {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		return
	}
	s.entries[i] = conversationEntry{conv: c}
}

// Update replaces the stored conversation with the same id. It reports
// whether the id was present.
func (s *ConversationStore) Update(c models.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(c.ID)
	if i < 0 {
		return false
	}
	s.entries[i].conv = c
	return true
}

// Remove deletes a conversation and clears the selection if it pointed at it.
func (s *ConversationStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(id); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
	if s.selected == id {
		s.selected = ""
	}
}

// Select marks id as the selected conversation. An empty id clears it.
func (s *ConversationStore) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

// Selected returns the selected conversation id, or "".
func (s *ConversationStore) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Reconcile merges the server's list into the mirror: new conversations are
// appended, changed ones are updated in place and confirmed entries the
// server no longer returns are dropped. Pending entries are kept.
func (s *ConversationStore) Reconcile(server []models.Conversation) ReconcileResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ReconcileResult
	seen := make(map[string]bool, len(server))
	for _, c := range server {
		seen[c.ID] = true
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.pending && !seen[e.conv.ID] {
			res.Removed++
			if s.selected == e.conv.ID {
				s.selected = ""
			}
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	for _, c := range server {
		i := s.index(c.ID)
		switch {
		case i < 0:
			s.entries = append(s.entries, conversationEntry{conv: c})
			res.Added++
		case s.entries[i].conv.Title != c.Title || s.entries[i].conv.Context != c.Context || s.entries[i].pending:
			s.entries[i] = conversationEntry{conv: c}
			res.Updated++
		default:
			s.entries[i].conv = c
		}
	}
	return res
}

// Reset empties the store.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.selected = ""
}

func (s *ConversationStore) put(c models.Conversation, pending bool) {
	if i := s.index(c.ID); i >= 0 {
		s.entries[i] = conversationEntry{conv: c, pending: pending}
		return
	}
	s.entries = append(s.entries, conversationEntry{conv: c, pending: pending})
}

func (s *ConversationStore) index(id string) int {
	for i, e := range s.entries {
		if e.conv.ID == id {
			return i
		}
	}
	return -1
}
