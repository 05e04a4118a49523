// Package memory provides an in-memory implementation of
// storage.ConversationStore for testing and lightweight deployments.
// Conversations are lost when the process restarts. Optional LRU eviction
// bounds memory usage.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/unichat-ai/unichat/pkg/storage"
)

// conversation holds one conversation's messages and metadata.
type conversation struct {
	messages []storage.StoredMessage
	metadata map[string]any
	lruElem  *list.Element
}

// Store is an in-memory ConversationStore with optional LRU eviction.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	lruList       *list.List // front = most recently used
	maxSize       int        // 0 = unlimited
}

// Ensure Store implements storage.ConversationStore at compile time.
var _ storage.ConversationStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used conversation is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		conversations: make(map[string]*conversation),
		lruList:       list.New(),
		maxSize:       maxSize,
	}
}

// GetHistory returns a conversation's messages in append order.
func (s *Store) GetHistory(ctx context.Context, conversationID string) ([]storage.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	s.lruList.MoveToFront(conv.lruElem)

	out := make([]storage.StoredMessage, len(conv.messages))
	copy(out, conv.messages)
	return out, nil
}

// Append adds one message, creating the conversation on first write.
func (s *Store) Append(ctx context.Context, conversationID string, msg storage.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(conversationID)
	for _, existing := range conv.messages {
		if msg.ID != "" && existing.ID == msg.ID {
			return storage.ErrConflict
		}
	}
	conv.messages = append(conv.messages, msg)
	s.lruList.MoveToFront(conv.lruElem)
	return nil
}

// SetMetadata merges the patch into the conversation's metadata.
func (s *Store) SetMetadata(ctx context.Context, conversationID string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(conversationID)
	for k, v := range patch {
		conv.metadata[k] = v
	}
	s.lruList.MoveToFront(conv.lruElem)
	return nil
}

// Metadata returns a copy of a conversation's metadata document.
func (s *Store) Metadata(conversationID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(conv.metadata))
	for k, v := range conv.metadata {
		out[k] = v
	}
	return out
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// getOrCreate must be called with the write lock held.
func (s *Store) getOrCreate(conversationID string) *conversation {
	if conv, ok := s.conversations[conversationID]; ok {
		return conv
	}
	if s.maxSize > 0 && len(s.conversations) >= s.maxSize {
		s.evictOldest()
	}
	conv := &conversation{
		metadata: make(map[string]any),
		lruElem:  s.lruList.PushFront(conversationID),
	}
	s.conversations[conversationID] = conv
	return conv
}

// evictOldest removes the least recently used conversation.
// Must be called with the write lock held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.conversations, id)
}
