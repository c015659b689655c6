package inmemory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/memory"
)

type vectorEntry struct {
	chunk  document.Chunk
	vector []float64
	norm   float64
}

// VectorStore is a brute-force cosine similarity store. Every search scores
// all entries, so cost grows with entries times dimensions.
type VectorStore struct {
	mu      sync.RWMutex
	entries []vectorEntry
	dims    int
}

// NewVectorStore creates an empty store. Its dimensionality is fixed by the
// first vector added.
func NewVectorStore() *VectorStore {
	return &VectorStore{}
}

// Add implements memory.VectorStore.
func (s *VectorStore) Add(ctx context.Context, chunk document.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("add %q: empty vector: %w", chunk.ID, memory.ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) > 0 && len(vector) != s.dims {
		return fmt.Errorf("add %q: got %d dimensions, store has %d: %w",
			chunk.ID, len(vector), s.dims, memory.ErrDimensionMismatch)
	}
	s.dims = len(vector)
	s.entries = append(s.entries, vectorEntry{
		chunk:  chunk,
		vector: slices.Clone(vector),
		norm:   magnitude(vector),
	})
	return nil
}

// Search implements memory.VectorStore.
func (s *VectorStore) Search(ctx context.Context, query []float64, topK int) ([]memory.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || topK <= 0 {
		return []memory.SearchResult{}, nil
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("search: got %d dimensions, store has %d: %w",
			len(query), s.dims, memory.ErrDimensionMismatch)
	}

	qnorm := magnitude(query)
	results := make([]memory.SearchResult, len(s.entries))
	for i, e := range s.entries {
		results[i] = memory.SearchResult{
			Chunk: e.chunk,
			Score: cosine(query, qnorm, e.vector, e.norm),
		}
	}

	// entries are in insertion order, a stable sort keeps earlier ones first on ties
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Get implements memory.VectorStore.
func (s *VectorStore) Get(ctx context.Context, id string) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.chunk.ID == id {
			return &memory.Entry{Chunk: e.chunk, Vector: slices.Clone(e.vector)}, nil
		}
	}
	return nil, fmt.Errorf("entry %q: %w", id, memory.ErrNotFound)
}

// Delete implements memory.VectorStore. Every entry carrying the chunk ID is
// removed; deleting an unknown ID is not an error.
func (s *VectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = slices.DeleteFunc(s.entries, func(e vectorEntry) bool {
		return e.chunk.ID == id
	})
	if len(s.entries) == 0 {
		s.dims = 0
	}
	return nil
}

// DeleteDocument removes all chunks of a document and reports how many
// entries were dropped.
func (s *VectorStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e vectorEntry) bool {
		return e.chunk.DocumentID == documentID
	})
	if len(s.entries) == 0 {
		s.dims = 0
	}
	return before - len(s.entries), nil
}

// Len implements memory.VectorStore.
func (s *VectorStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Dimensions returns the store's dimensionality, or 0 while it is empty.
func (s *VectorStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Entries returns a copy of every entry in insertion order.
func (s *VectorStore) Entries() []memory.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memory.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = memory.Entry{Chunk: e.chunk, Vector: slices.Clone(e.vector)}
	}
	return out
}

func magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a []float64, anorm float64, b []float64, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (anorm * bnorm)
}

var _ memory.VectorStore = (*VectorStore)(nil)
