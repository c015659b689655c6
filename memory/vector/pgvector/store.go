// Package pgvector stores chunk embeddings in PostgreSQL with the pgvector
// extension. Ranking matches the in-memory store: cosine similarity, ties
// broken by insertion order.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/memory"
)

// DB is the subset of pgx shared by *pgx.Conn and *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db    DB
	table string

	mu   sync.Mutex
	dims int
}

// Table layout created by EnsureSchema:
//
//	CREATE EXTENSION IF NOT EXISTS vector;
//	CREATE TABLE IF NOT EXISTS chunks (
//	  seq bigserial,
//	  id text PRIMARY KEY,
//	  document_id text NOT NULL,
//	  chunk_index int NOT NULL,
//	  content text NOT NULL,
//	  metadata jsonb,
//	  embedding vector NOT NULL
//	);

func New(db DB, table string) *Store {
	if table == "" {
		table = "chunks"
	}
	return &Store{db: db, table: table}
}

// EnsureSchema creates the extension and table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  seq bigserial,
  id text PRIMARY KEY,
  document_id text NOT NULL,
  chunk_index int NOT NULL,
  content text NOT NULL,
  metadata jsonb,
  embedding vector NOT NULL
)`, pgx.Identifier{s.table}.Sanitize())
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// dimensions returns the stored dimensionality, probing the table once.
func (s *Store) dimensions(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims > 0 {
		return s.dims, nil
	}
	var dims int
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT vector_dims(embedding) FROM %s LIMIT 1", s.ident())).Scan(&dims)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s.dims = dims
	return dims, nil
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *Store) Add(ctx context.Context, chunk document.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("add %q: empty vector: %w", chunk.ID, memory.ErrDimensionMismatch)
	}
	dims, err := s.dimensions(ctx)
	if err != nil {
		return err
	}
	if dims > 0 && dims != len(vector) {
		return fmt.Errorf("add %q: got %d dimensions, store has %d: %w",
			chunk.ID, len(vector), dims, memory.ErrDimensionMismatch)
	}

	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, document_id, chunk_index, content, metadata, embedding) VALUES ($1,$2,$3,$4,$5,$6::float8[]::vector)",
		s.ident()), chunk.ID, chunk.DocumentID, chunk.Index, chunk.Text, meta, vector)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.dims = len(vector)
	s.mu.Unlock()
	return nil
}

func (s *Store) Search(ctx context.Context, query []float64, topK int) ([]memory.SearchResult, error) {
	if topK <= 0 {
		return []memory.SearchResult{}, nil
	}
	dims, err := s.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return []memory.SearchResult{}, nil
	}
	if dims != len(query) {
		return nil, fmt.Errorf("search: got %d dimensions, store has %d: %w",
			len(query), dims, memory.ErrDimensionMismatch)
	}

	// <=> is cosine distance; NaN for zero vectors, mapped to score 0
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT id, document_id, chunk_index, content, metadata,
		        COALESCE(NULLIF(1 - (embedding <=> $1::float8[]::vector), 'NaN'), 0) AS score
		   FROM %s
		  ORDER BY score DESC, seq ASC
		  LIMIT $2`, s.ident()), query, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memory.SearchResult, 0, topK)
	for rows.Next() {
		var r memory.SearchResult
		var meta []byte
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index, &r.Chunk.Text, &meta, &r.Score); err != nil {
			return nil, err
		}
		if r.Chunk.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (*memory.Entry, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT id, document_id, chunk_index, content, metadata, embedding::real[] FROM %s WHERE id=$1", s.ident()), id)
	var e memory.Entry
	var meta []byte
	var vec []float32
	if err := row.Scan(&e.Chunk.ID, &e.Chunk.DocumentID, &e.Chunk.Index, &e.Chunk.Text, &meta, &vec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entry %q: %w", id, memory.ErrNotFound)
		}
		return nil, err
	}
	var err error
	if e.Chunk.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	e.Vector = make([]float64, len(vec))
	for i, v := range vec {
		e.Vector[i] = float64(v)
	}
	return &e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id=$1", s.ident()), id)
	return err
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.ident())).Scan(&n)
	return n, err
}

func decodeMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

var _ memory.VectorStore = (*Store)(nil)
