package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsIDAndCopiesMetadata(t *testing.T) {
	meta := map[string]any{"source": "story1.md"}
	a := New("hello", meta)
	b := New("hello", meta)

	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)

	meta["source"] = "changed"
	assert.Equal(t, "story1.md", a.Metadata["source"])
}

func TestNewChunk(t *testing.T) {
	doc := Document{ID: "doc", Text: "abc", Metadata: map[string]any{"k": "v"}}
	ch := NewChunk(doc, 3, "b")

	assert.Equal(t, "doc#3", ch.ID)
	assert.Equal(t, "doc", ch.DocumentID)
	assert.Equal(t, 3, ch.Index)
	assert.Equal(t, "b", ch.Text)

	doc.Metadata["k"] = "other"
	assert.Equal(t, "v", ch.Metadata["k"])
}
