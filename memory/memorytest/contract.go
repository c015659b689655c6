// Package memorytest holds behavior checks shared by every memory backend.
// Backend tests call these against a fresh, empty store.
package memorytest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/memory"
)

// Store checks key/value semantics.
func Store(t *testing.T, s memory.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "k1", "v1"))
	v, err := s.Retrieve(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "k1")

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Retrieve(ctx, "k1")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	require.NoError(t, s.Store(ctx, "k2", "v2"))
	require.NoError(t, s.Clear(ctx))
	keys, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// Conversation checks that sessions keep append order and stay separate.
func Conversation(t *testing.T, cs memory.ConversationStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, cs.AppendMessage(ctx, "alpha", "user", "hello"))
	require.NoError(t, cs.AppendMessage(ctx, "beta", "user", "elsewhere"))
	require.NoError(t, cs.AppendMessage(ctx, "alpha", "assistant", "hi"))

	msgs, err := cs.GetMessages(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hi", msgs[1].Content)

	require.NoError(t, cs.ClearSession(ctx, "alpha"))
	msgs, err = cs.GetMessages(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = cs.GetMessages(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	require.NoError(t, cs.ClearSession(ctx, "beta"))
}

// Vector checks insertion, ranking, dimension enforcement and removal.
func Vector(t *testing.T, vs memory.VectorStore) {
	t.Helper()
	ctx := context.Background()

	a := document.Chunk{ID: "d#0", DocumentID: "d", Text: "A", Metadata: map[string]any{"source": "a.txt"}}
	b := document.Chunk{ID: "d#1", DocumentID: "d", Index: 1, Text: "B"}
	require.NoError(t, vs.Add(ctx, a, []float64{1, 0}))
	require.NoError(t, vs.Add(ctx, b, []float64{0, 1}))

	err := vs.Add(ctx, document.Chunk{ID: "d#2"}, []float64{1, 2, 3})
	require.ErrorIs(t, err, memory.ErrDimensionMismatch)
	n, err := vs.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "a rejected add leaves the store unchanged")

	res, err := vs.Search(ctx, []float64{0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, a.ID, res[0].Chunk.ID)
	assert.Equal(t, b.ID, res[1].Chunk.ID)
	assert.Greater(t, res[0].Score, res[1].Score)

	res, err = vs.Search(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)

	e, err := vs.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", e.Chunk.Text)
	assert.Equal(t, "a.txt", e.Chunk.Metadata["source"])
	assert.Len(t, e.Vector, 2)

	require.NoError(t, vs.Delete(ctx, a.ID))
	_, err = vs.Get(ctx, a.ID)
	assert.Error(t, err)
	n, err = vs.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
