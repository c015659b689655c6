package rag

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/samzhu/ragkit/document"
)

// Metadata keys set by TextReader.
const (
	MetaSource = "source"
	MetaPath   = "path"
)

// TextReader loads UTF-8 text files as documents. Document IDs are derived
// from the absolute path, so reading the same file twice yields the same ID.
type TextReader struct {
	// Extensions limits directory walks; empty means .txt and .md.
	Extensions []string
	// Metadata is copied onto every document.
	Metadata map[string]any
}

// NewTextReader returns a reader that tags documents with metadata.
func NewTextReader(metadata map[string]any) *TextReader {
	return &TextReader{Metadata: metadata}
}

// Read loads path. A directory is walked recursively in lexical order and
// every file with a matching extension becomes one document.
func (r *TextReader) Read(path string) ([]document.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		doc, err := r.readFile(path)
		if err != nil {
			return nil, err
		}
		return []document.Document{doc}, nil
	}

	exts := r.Extensions
	if len(exts) == 0 {
		exts = []string{".txt", ".md"}
	}
	var docs []document.Document
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(exts, strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		doc, err := r.readFile(p)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *TextReader) readFile(path string) (document.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return document.Document{}, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return document.Document{}, err
	}
	if !utf8.Valid(b) {
		return document.Document{}, fmt.Errorf("%s: not valid UTF-8 text", path)
	}

	meta := maps.Clone(r.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	meta[MetaSource] = filepath.Base(abs)
	meta[MetaPath] = abs

	return document.Document{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String(),
		Text:     string(b),
		Metadata: meta,
	}, nil
}
