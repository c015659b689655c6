package memory

import (
	"context"
	"sync"
	"time"
)

// Log is an ordered conversation history owned by the caller. The chat
// client reads it before each completion and appends the user and
// assistant turns afterwards; it never keeps history of its own.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
}

// NewLog creates a log that keeps at most limit messages (0 = unbounded).
// When the limit is exceeded the oldest messages are dropped.
func NewLog(limit int) *Log {
	if limit < 0 {
		limit = 0
	}
	return &Log{limit: limit}
}

// LoadLog restores a session's history from a ConversationStore.
func LoadLog(ctx context.Context, store ConversationStore, sessionID string, limit int) (*Log, error) {
	msgs, err := store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	l := NewLog(limit)
	for _, m := range msgs {
		l.appendMessage(m)
	}
	return l, nil
}

// Append adds a turn to the end of the log.
func (l *Log) Append(role, content string) {
	l.appendMessage(Message{Role: role, Content: content, Timestamp: time.Now().Unix()})
}

func (l *Log) appendMessage(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, m)
	if l.limit > 0 && len(l.messages) > l.limit {
		l.messages = append([]Message(nil), l.messages[len(l.messages)-l.limit:]...)
	}
}

// Messages returns a copy of the log in append order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Reset drops all messages.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}
