package store

import (
	"slices"
	"sync"

	"github.com/raphaelgruber/docchat/internal/models"
)

// ChatState is a snapshot of the active transcript.
type ChatState struct {
	ConversationID string
	Messages       []models.Message
	Loading        bool
	Err            error
}

// ChatStore holds the transcript of the conversation being chatted in.
type ChatStore struct {
	mu    sync.RWMutex
	state ChatState
}

// NewChatStore creates an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{}
}

// Snapshot returns a copy of the current state.
func (s *ChatStore) Snapshot() ChatState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	out.Messages = slices.Clone(s.state.Messages)
	return out
}

// Set replaces the transcript, switching the active conversation.
func (s *ChatStore) Set(conversationID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ChatState{ConversationID: conversationID, Messages: slices.Clone(messages)}
}

// Append adds a message to the transcript of its conversation. Messages for
// another conversation are ignored and Append returns false.
func (s *ChatStore) Append(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.ConversationID != "" && s.state.ConversationID != msg.ConversationID {
		return false
	}
	s.state.ConversationID = msg.ConversationID
	s.state.Messages = append(s.state.Messages, msg)
	return true
}

// Drop removes a message by id, used to roll back an optimistic message.
func (s *ChatStore) Drop(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Messages = slices.DeleteFunc(s.state.Messages, func(m models.Message) bool { return m.ID == messageID })
}

// SetLoading flags an in-flight send.
func (s *ChatStore) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = loading
}

// SetError records the last send failure; nil clears it.
func (s *ChatStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Err = err
}

// Clear empties the transcript.
func (s *ChatStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ChatState{}
}
