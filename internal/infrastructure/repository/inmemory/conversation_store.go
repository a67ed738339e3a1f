package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

// ConversationStore keeps deep copies, so callers can never alias stored
// history.
type ConversationStore struct {
	mu    sync.RWMutex
	items map[string]*domain.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{items: make(map[string]*domain.Conversation)}
}

func (s *ConversationStore) Save(_ context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save conversation", errors.New("conversation id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[conv.ID] = conv.Snapshot()
	return nil
}

func (s *ConversationStore) Get(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "get conversation", fmt.Errorf("id=%s", id))
	}
	return conv.Snapshot(), nil
}
