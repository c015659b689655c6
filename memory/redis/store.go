// Package redis provides Redis-backed key/value and conversation stores so
// several ragkit processes can share embedding caches and chat sessions.
//
// Keys are the caller's namespace followed by the key or session ID, for
// example "ragkit:embedding:<hash>" and "ragkit:session:<id>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	rds "github.com/redis/go-redis/v9"

	"github.com/samzhu/ragkit/memory"
)

const scanBatch = 256

// Store keeps JSON-encoded values with an optional expiry.
type Store struct {
	rdb       rds.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewStore returns a store writing under namespace. A zero ttl never expires.
func NewStore(rdb rds.UniversalClient, ttl time.Duration, namespace string) *Store {
	return &Store{rdb: rdb, namespace: namespace, ttl: ttl}
}

func (s *Store) Store(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: encode %q: %w", key, err)
	}
	return s.rdb.Set(ctx, s.namespace+key, payload, s.ttl).Err()
}

// Retrieve returns the JSON-decoded value, so numbers come back as float64
// and slices as []any.
func (s *Store) Retrieve(ctx context.Context, key string) (any, error) {
	payload, err := s.rdb.Get(ctx, s.namespace+key).Bytes()
	switch {
	case errors.Is(err, rds.Nil):
		return nil, fmt.Errorf("redis: %q: %w", key, memory.ErrNotFound)
	case err != nil:
		return nil, err
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("redis: decode %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.namespace+key).Err()
}

// List returns the keys in the namespace with the namespace removed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	full, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for i, k := range full {
		full[i] = strings.TrimPrefix(k, s.namespace)
	}
	return full, nil
}

// Clear deletes every key in the namespace.
func (s *Store) Clear(ctx context.Context) error {
	full, err := s.scan(ctx)
	if err != nil || len(full) == 0 {
		return err
	}
	return s.rdb.Del(ctx, full...).Err()
}

func (s *Store) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.namespace+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// ConversationStore keeps each session as a Redis list of JSON messages.
// Appends refresh the session's expiry.
type ConversationStore struct {
	rdb       rds.UniversalClient
	namespace string
	ttl       time.Duration
	keep      int64
}

func NewConversationStore(rdb rds.UniversalClient, namespace string, ttl time.Duration) *ConversationStore {
	return &ConversationStore{rdb: rdb, namespace: namespace, ttl: ttl}
}

// WithMaxMessages trims every session to its n most recent messages.
func (cs *ConversationStore) WithMaxMessages(n int) *ConversationStore {
	cs.keep = int64(n)
	return cs
}

func (cs *ConversationStore) AppendMessage(ctx context.Context, sessionID string, role, content string) error {
	if sessionID == "" {
		return errors.New("redis: session id is required")
	}
	payload, err := json.Marshal(memory.Message{Role: role, Content: content, Timestamp: time.Now().Unix()})
	if err != nil {
		return err
	}

	key := cs.namespace + sessionID
	_, err = cs.rdb.TxPipelined(ctx, func(p rds.Pipeliner) error {
		p.RPush(ctx, key, payload)
		if cs.keep > 0 {
			p.LTrim(ctx, key, -cs.keep, -1)
		}
		if cs.ttl > 0 {
			p.Expire(ctx, key, cs.ttl)
		}
		return nil
	})
	return err
}

// GetMessages returns the session oldest first. Missing sessions are empty.
func (cs *ConversationStore) GetMessages(ctx context.Context, sessionID string) ([]memory.Message, error) {
	raw, err := cs.rdb.LRange(ctx, cs.namespace+sessionID, 0, -1).Result()
	if err != nil && !errors.Is(err, rds.Nil) {
		return nil, err
	}
	msgs := make([]memory.Message, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &msgs[i]); err != nil {
			return nil, fmt.Errorf("redis: session %s message %d: %w", sessionID, i, err)
		}
	}
	return msgs, nil
}

func (cs *ConversationStore) ClearSession(ctx context.Context, sessionID string) error {
	return cs.rdb.Del(ctx, cs.namespace+sessionID).Err()
}

var (
	_ memory.Store             = (*Store)(nil)
	_ memory.ConversationStore = (*ConversationStore)(nil)
)
