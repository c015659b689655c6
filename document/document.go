// Package document holds the data model shared by the splitter, the vector
// stores and the retrieval pipeline.
package document

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// Document is a unit of raw text handed to ingestion. Treat it as immutable.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// New creates a document with a random ID.
func New(text string, metadata map[string]any) Document {
	return Document{
		ID:       uuid.NewString(),
		Text:     text,
		Metadata: maps.Clone(metadata),
	}
}

// Chunk is a contiguous span of a document's text, the unit of embedding and
// retrieval.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ChunkID returns the identifier of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// NewChunk derives a chunk from doc. Metadata is copied so later changes to
// the document's map never leak into stored chunks.
func NewChunk(doc Document, index int, text string) Chunk {
	return Chunk{
		ID:         ChunkID(doc.ID, index),
		DocumentID: doc.ID,
		Index:      index,
		Text:       text,
		Metadata:   maps.Clone(doc.Metadata),
	}
}
