package memory

import (
	"context"
	"errors"

	"github.com/samzhu/ragkit/document"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimensionality of the store it is written to or queried against.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound is returned when a key, session or entry does not exist.
	ErrNotFound = errors.New("not found")
)

// Store defines the interface for generic key/value state
type Store interface {
	// Store saves data with the given key
	Store(ctx context.Context, key string, value interface{}) error

	// Retrieve gets data by key
	Retrieve(ctx context.Context, key string) (interface{}, error)

	// Delete removes data by key
	Delete(ctx context.Context, key string) error

	// List returns all keys
	List(ctx context.Context) ([]string, error)

	// Clear removes all stored data
	Clear(ctx context.Context) error
}

// ConversationStore persists conversation logs per session so that a
// caller-owned Log can be restored between requests.
type ConversationStore interface {
	// AppendMessage adds a message to the conversation
	AppendMessage(ctx context.Context, sessionID string, role, content string) error

	// GetMessages retrieves conversation history in append order
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)

	// ClearSession removes all messages for a session
	ClearSession(ctx context.Context, sessionID string) error
}

// Message represents a conversation message
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp int64             `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// VectorStore holds (chunk, vector) pairs and answers top-k similarity
// queries. All vectors in one store share a dimensionality.
type VectorStore interface {
	// Add appends an entry. It fails with ErrDimensionMismatch when the
	// vector length differs from the store's and leaves the store unchanged.
	Add(ctx context.Context, chunk document.Chunk, vector []float64) error

	// Search returns at most topK entries ordered by descending cosine
	// similarity to query.
	Search(ctx context.Context, query []float64, topK int) ([]SearchResult, error)

	// Get retrieves an entry by chunk ID
	Get(ctx context.Context, id string) (*Entry, error)

	// Delete removes an entry by chunk ID
	Delete(ctx context.Context, id string) error

	// Len returns the number of stored entries
	Len(ctx context.Context) (int, error)
}

// Entry pairs exactly one chunk with exactly one vector.
type Entry struct {
	Chunk  document.Chunk `json:"chunk"`
	Vector []float64      `json:"vector"`
}

// SearchResult is a ranked chunk returned by VectorStore.Search.
type SearchResult struct {
	Chunk document.Chunk `json:"chunk"`
	Score float64        `json:"score"`
}
