// Package snapshot persists vector store entries to a bbolt file so an
// in-memory store can be rebuilt after a restart.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/memory"
)

var bucketName = []byte("entries")

// ErrCorrupt is returned when a record cannot be decoded or its vector
// length disagrees with its declared dimensionality.
var ErrCorrupt = errors.New("corrupt snapshot record")

// Record is the persisted form of one entry.
type Record struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	ChunkText  string         `json:"chunk_text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Dimensions int            `json:"dimensions"`
	Vector     []float64      `json:"vector"`
}

func toRecord(e memory.Entry) Record {
	return Record{
		ChunkID:    e.Chunk.ID,
		DocumentID: e.Chunk.DocumentID,
		ChunkIndex: e.Chunk.Index,
		ChunkText:  e.Chunk.Text,
		Metadata:   e.Chunk.Metadata,
		Dimensions: len(e.Vector),
		Vector:     e.Vector,
	}
}

func (r Record) entry() memory.Entry {
	return memory.Entry{
		Chunk: document.Chunk{
			ID:         r.ChunkID,
			DocumentID: r.DocumentID,
			Index:      r.ChunkIndex,
			Text:       r.ChunkText,
			Metadata:   r.Metadata,
		},
		Vector: r.Vector,
	}
}

func key(seq int) []byte {
	return []byte(fmt.Sprintf("%012d", seq))
}

// Save replaces the snapshot at path with entries. Keys are the zero-padded
// position of each entry so iteration order equals insertion order.
func Save(path string, entries []memory.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for snapshot: %w", err)
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName) != nil {
			if err := tx.DeleteBucket(bucketName); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucketName)
		if err != nil {
			return err
		}
		for i, e := range entries {
			data, err := json.Marshal(toRecord(e))
			if err != nil {
				return fmt.Errorf("encode %q: %w", e.Chunk.ID, err)
			}
			if err := b.Put(key(i), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads every entry from the snapshot at path in insertion order. A
// missing file yields no entries.
func Load(path string) ([]memory.Entry, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var entries []memory.Entry
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("%w: key %s: %v", ErrCorrupt, k, err)
			}
			if r.Dimensions != len(r.Vector) {
				return fmt.Errorf("%w: %q declares %d dimensions, has %d",
					ErrCorrupt, r.ChunkID, r.Dimensions, len(r.Vector))
			}
			entries = append(entries, r.entry())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Exporter is implemented by stores that can list their entries in order.
type Exporter interface {
	Entries() []memory.Entry
}

// SaveStore writes all entries of store to path.
func SaveStore(path string, store Exporter) (int, error) {
	entries := store.Entries()
	return len(entries), Save(path, entries)
}

// Restore loads the snapshot at path and adds every entry to store. It
// stops at the first failed Add, leaving earlier entries in place.
func Restore(ctx context.Context, path string, store memory.VectorStore) (int, error) {
	entries, err := Load(path)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := store.Add(ctx, e.Chunk, e.Vector); err != nil {
			return i, fmt.Errorf("restore %q: %w", e.Chunk.ID, err)
		}
	}
	return len(entries), nil
}
