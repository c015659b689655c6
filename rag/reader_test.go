package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTextReaderFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "story1.md")
	writeFile(t, path, "從前從前，有一隻貓。")

	r := NewTextReader(map[string]any{"lang": "zh-TW"})
	docs, err := r.Read(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "從前從前，有一隻貓。", doc.Text)
	assert.Equal(t, "story1.md", doc.Metadata[MetaSource])
	assert.Equal(t, "zh-TW", doc.Metadata["lang"])
	assert.True(t, filepath.IsAbs(doc.Metadata[MetaPath].(string)))

	again, err := r.Read(path)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again[0].ID)

	// reader metadata is not shared between documents
	doc.Metadata["lang"] = "en"
	assert.Equal(t, "zh-TW", r.Metadata["lang"])
}

func TestTextReaderDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "bravo")
	writeFile(t, filepath.Join(dir, "a.md"), "alpha")
	writeFile(t, filepath.Join(dir, "nested", "c.TXT"), "charlie")
	writeFile(t, filepath.Join(dir, "image.png"), "binary-ish")

	docs, err := NewTextReader(nil).Read(dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "alpha", docs[0].Text)
	assert.Equal(t, "bravo", docs[1].Text)
	assert.Equal(t, "charlie", docs[2].Text)
}

func TestTextReaderExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "notes")
	writeFile(t, filepath.Join(dir, "page.html"), "<p>page</p>")

	r := &TextReader{Extensions: []string{".html"}}
	docs, err := r.Read(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "<p>page</p>", docs[0].Text)
}

func TestTextReaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewTextReader(nil).Read(filepath.Join(dir, "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, bad, string([]byte{0xff, 0xfe, 0xfd}))
	_, err = NewTextReader(nil).Read(bad)
	require.ErrorContains(t, err, "not valid UTF-8")
}
