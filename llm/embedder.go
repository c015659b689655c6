package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/samzhu/ragkit/memory"
)

// Embedder turns text into vectors. EmbedMany returns one vector per input,
// in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedOne adapts a batch call to a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float64, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text: %w", len(vecs), ErrCollaboratorFailure)
	}
	return vecs[0], nil
}

// CachedEmbedder memoizes vectors in a memory.Store keyed by a hash of the
// model name and text. Any store works; the Redis store shares the cache
// between processes.
type CachedEmbedder struct {
	next   Embedder
	store  memory.Store
	model  string
	logger *zap.Logger
}

// NewCachedEmbedder wraps next. model namespaces the cache keys so vectors
// of different models never mix.
func NewCachedEmbedder(next Embedder, store memory.Store, model string, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{next: next, store: store, model: model, logger: logger}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return EmbedOne(ctx, c, text)
}

// EmbedMany serves hits from the store and forwards only misses, in one
// batch, to the wrapped embedder. Cache write failures are logged, not
// returned.
func (c *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missIdx []int
	var missText []string

	for i, t := range texts {
		v, err := c.lookup(ctx, t)
		if err != nil {
			missIdx = append(missIdx, i)
			missText = append(missText, t)
			continue
		}
		out[i] = v
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedMany(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts: %w", len(vecs), len(missText), ErrCollaboratorFailure)
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		if err := c.store.Store(ctx, c.key(missText[j]), v); err != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	c.logger.Debug("embedding cache",
		zap.Int("hits", len(texts)-len(missText)),
		zap.Int("misses", len(missText)))
	return out, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float64, error) {
	raw, err := c.store.Retrieve(ctx, c.key(text))
	if err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case []float64:
		return append([]float64(nil), v...), nil
	case []interface{}:
		out := make([]float64, len(v))
		for i, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil, errCacheType
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, errCacheType
	}
}

var errCacheType = errors.New("cached value is not a vector")

var _ Embedder = (*CachedEmbedder)(nil)
