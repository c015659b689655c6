package observability

import (
	"sync"
	"time"
)

// Label keys shared by every Metrics implementation.
const (
	LabelComponent = "component" // llm, embedder, http, rag, tools
	LabelOperation = "operation" // model name, route or function name
	LabelProvider  = "provider"
	LabelStatus    = "status"
)

// Metrics defines the interface for collecting pipeline metrics
type Metrics interface {
	// IncrementRequests increments the request counter
	IncrementRequests(labels map[string]string)

	// RecordLatency records request latency
	RecordLatency(duration time.Duration, labels map[string]string)

	// IncrementTokensUsed increments token usage counter
	IncrementTokensUsed(tokens int, labels map[string]string)

	// RecordError increments error counter
	RecordError(errorType string, labels map[string]string)

	// IncrementEmbeddings counts texts sent to an embedder
	IncrementEmbeddings(count int, labels map[string]string)

	// SetVectorCount sets the gauge for entries held by the vector store
	SetVectorCount(count int)
}

// NoOpMetrics is a no-operation implementation of Metrics
type NoOpMetrics struct{}

func (n *NoOpMetrics) IncrementRequests(labels map[string]string)                     {}
func (n *NoOpMetrics) RecordLatency(duration time.Duration, labels map[string]string) {}
func (n *NoOpMetrics) IncrementTokensUsed(tokens int, labels map[string]string)       {}
func (n *NoOpMetrics) RecordError(errorType string, labels map[string]string)         {}
func (n *NoOpMetrics) IncrementEmbeddings(count int, labels map[string]string)        {}
func (n *NoOpMetrics) SetVectorCount(count int)                                       {}

// DefaultMetrics is a simple in-memory metrics collector
type DefaultMetrics struct {
	mu           sync.Mutex
	requests     int64
	totalLatency time.Duration
	tokensUsed   int64
	embeddings   int64
	errors       map[string]int64
	vectors      int
}

// NewDefaultMetrics creates a new DefaultMetrics instance
func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{
		errors: make(map[string]int64),
	}
}

func (m *DefaultMetrics) IncrementRequests(labels map[string]string) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
}

func (m *DefaultMetrics) RecordLatency(duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	m.totalLatency += duration
	m.mu.Unlock()
}

func (m *DefaultMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {
	m.mu.Lock()
	m.tokensUsed += int64(tokens)
	m.mu.Unlock()
}

func (m *DefaultMetrics) RecordError(errorType string, labels map[string]string) {
	m.mu.Lock()
	m.errors[errorType]++
	m.mu.Unlock()
}

func (m *DefaultMetrics) IncrementEmbeddings(count int, labels map[string]string) {
	m.mu.Lock()
	m.embeddings += int64(count)
	m.mu.Unlock()
}

func (m *DefaultMetrics) SetVectorCount(count int) {
	m.mu.Lock()
	m.vectors = count
	m.mu.Unlock()
}

// GetStats returns current statistics
func (m *DefaultMetrics) GetStats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make(map[string]int64, len(m.errors))
	for k, v := range m.errors {
		errs[k] = v
	}
	return map[string]interface{}{
		"requests":      m.requests,
		"total_latency": m.totalLatency.String(),
		"tokens_used":   m.tokensUsed,
		"embeddings":    m.embeddings,
		"errors":        errs,
		"vectors":       m.vectors,
	}
}

var _ Metrics = (*NoOpMetrics)(nil)
var _ Metrics = (*DefaultMetrics)(nil)
