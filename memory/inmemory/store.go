// Package inmemory keeps key/value state and conversation logs in process
// memory. Nothing survives a restart; use the redis package for that.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samzhu/ragkit/memory"
)

var errNoSession = errors.New("session id is required")

// Store is a mutex-guarded map. The embedding cache uses it when no Redis
// is configured.
type Store struct {
	mu      sync.RWMutex
	entries map[string]any
}

func NewStore() *Store {
	return &Store{entries: map[string]any{}}
}

func (s *Store) Store(_ context.Context, key string, value any) error {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) Retrieve(_ context.Context, key string) (any, error) {
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmemory: %q: %w", key, memory.ErrNotFound)
	}
	return v, nil
}

// Delete is a no-op for unknown keys.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// List returns the keys in no particular order.
func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Keys(s.entries)), nil
}

func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	clear(s.entries)
	s.mu.Unlock()
	return nil
}

// ConversationStore holds one message slice per session.
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[string][]memory.Message
	limit    int
}

// NewConversationStore returns an empty store. A positive limit keeps only
// the most recent messages of each session.
func NewConversationStore(limit ...int) *ConversationStore {
	cs := &ConversationStore{sessions: map[string][]memory.Message{}}
	if len(limit) > 0 && limit[0] > 0 {
		cs.limit = limit[0]
	}
	return cs
}

func (cs *ConversationStore) AppendMessage(_ context.Context, sessionID string, role, content string) error {
	if sessionID == "" {
		return errNoSession
	}
	msg := memory.Message{Role: role, Content: content, Timestamp: time.Now().Unix()}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	log := append(cs.sessions[sessionID], msg)
	if cs.limit > 0 && len(log) > cs.limit {
		// copy so the dropped prefix can be collected
		log = slices.Clone(log[len(log)-cs.limit:])
	}
	cs.sessions[sessionID] = log
	return nil
}

// GetMessages returns a copy of the session log, oldest first. Unknown
// sessions yield an empty slice.
func (cs *ConversationStore) GetMessages(_ context.Context, sessionID string) ([]memory.Message, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]memory.Message, len(cs.sessions[sessionID]))
	copy(out, cs.sessions[sessionID])
	return out, nil
}

func (cs *ConversationStore) ClearSession(_ context.Context, sessionID string) error {
	cs.mu.Lock()
	delete(cs.sessions, sessionID)
	cs.mu.Unlock()
	return nil
}

// Sessions lists the sessions holding at least one message.
func (cs *ConversationStore) Sessions() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return slices.Collect(maps.Keys(cs.sessions))
}

var (
	_ memory.Store             = (*Store)(nil)
	_ memory.ConversationStore = (*ConversationStore)(nil)
)
