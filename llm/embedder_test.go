package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzhu/ragkit/memory/inmemory"
)

// countingEmbedder returns [len(text), 1] and records every batch.
type countingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return EmbedOne(ctx, c, text)
}

func (c *countingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	c.mu.Lock()
	c.batches = append(c.batches, append([]string(nil), texts...))
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func TestCachedEmbedderForwardsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachedEmbedder(inner, inmemory.NewStore(), "m", nil)
	ctx := context.Background()

	first, err := cache.EmbedMany(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {2, 1}}, first)

	second, err := cache.EmbedMany(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 1}, {3, 1}, {1, 1}}, second)

	require.Len(t, inner.batches, 2)
	assert.Equal(t, []string{"ccc"}, inner.batches[1])

	v, err := cache.Embed(ctx, "ccc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, v)
	assert.Len(t, inner.batches, 2)
}

func TestCachedEmbedderDecodesJSONShapedValues(t *testing.T) {
	store := inmemory.NewStore()
	cache := NewCachedEmbedder(&countingEmbedder{}, store, "m", nil)
	ctx := context.Background()

	// Remote stores hand back decoded JSON rather than []float64.
	require.NoError(t, store.Store(ctx, cache.key("x"), []interface{}{0.5, 0.25}))
	v, err := cache.Embed(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, v)
}

func TestCachedEmbedderKeysByModel(t *testing.T) {
	store := inmemory.NewStore()
	a := NewCachedEmbedder(&countingEmbedder{}, store, "a", nil)
	b := NewCachedEmbedder(&countingEmbedder{}, store, "b", nil)
	assert.NotEqual(t, a.key("text"), b.key("text"))
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	boom := NewLLMError(ProviderOpenAI, ErrorTypeServerError, "down")
	cache := NewCachedEmbedder(&countingEmbedder{err: boom}, inmemory.NewStore(), "m", nil)
	_, err := cache.EmbedMany(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, ErrCollaboratorFailure))
}

func TestRateLimitedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	limited := NewRateLimitedEmbedder(inner, 1000, 2)

	vecs, err := limited.EmbedMany(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	require.Len(t, inner.batches, 1, "batch is forwarded whole")

	_, err = limited.Embed(context.Background(), "x")
	require.NoError(t, err)
}

func TestRateLimitedEmbedderHonoursContext(t *testing.T) {
	limited := NewRateLimitedEmbedder(&countingEmbedder{}, 0.001, 1)
	ctx := context.Background()
	_, err := limited.Embed(ctx, "drain the bucket")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = limited.Embed(ctx, "blocked")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollaboratorTimeout), "got %v", err)
	assert.False(t, errors.Is(err, ErrCollaboratorFailure))
	assert.True(t, HasErrorType(err, ErrorTypeTimeout))
	assert.Contains(t, err.Error(), "ratelimit")

	_, err = limited.EmbedMany(ctx, []string{"a", "b"})
	assert.True(t, errors.Is(err, ErrCollaboratorTimeout), "got %v", err)
}

func TestRateLimitedEmbedderCanceled(t *testing.T) {
	limited := NewRateLimitedEmbedder(&countingEmbedder{}, 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limited.Embed(ctx, "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCollaboratorTimeout))
}
