// Package qdrant adapts a Qdrant collection to memory.VectorStore. The
// collection uses cosine distance; each point's payload carries the chunk
// fields and an insertion sequence used to break score ties.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/memory"
)

const (
	fieldChunkID    = "chunk_id"
	fieldDocumentID = "document_id"
	fieldIndex      = "chunk_index"
	fieldText       = "text"
	fieldMetadata   = "metadata_json"
	fieldSeq        = "seq"
)

// Config holds connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type Store struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger

	mu   sync.Mutex
	dims int
}

// Dial connects to Qdrant over gRPC and wraps the configured collection.
func Dial(cfg Config, logger *zap.Logger) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return New(client, cfg.Collection, logger), nil
}

func New(client *qdrant.Client, collection string, logger *zap.Logger) *Store {
	if collection == "" {
		collection = "ragkit"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, collection: collection, logger: logger}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// PointID maps a chunk ID to the UUIDv5 used as its Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// dimensions returns the collection's vector size, or 0 when the collection
// does not exist yet.
func (s *Store) dimensions(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims > 0 {
		return s.dims, nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		return 0, nil
	}
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("collection info: %w", err)
	}
	s.dims = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	return s.dims, nil
}

func (s *Store) createCollection(ctx context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims > 0 {
		return nil
	}
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.logger.Info("created qdrant collection",
		zap.String("collection", s.collection),
		zap.Int("dimensions", dims))
	s.dims = dims
	return nil
}

func (s *Store) Add(ctx context.Context, chunk document.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("add %q: empty vector: %w", chunk.ID, memory.ErrDimensionMismatch)
	}
	dims, err := s.dimensions(ctx)
	if err != nil {
		return err
	}
	if dims == 0 {
		if err := s.createCollection(ctx, len(vector)); err != nil {
			return err
		}
	} else if dims != len(vector) {
		return fmt.Errorf("add %q: got %d dimensions, store has %d: %w",
			chunk.ID, len(vector), dims, memory.ErrDimensionMismatch)
	}

	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(PointID(chunk.ID)),
			Vectors: qdrant.NewVectors(toFloat32(vector)...),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldChunkID:    chunk.ID,
				fieldDocumentID: chunk.DocumentID,
				fieldIndex:      int64(chunk.Index),
				fieldText:       chunk.Text,
				fieldMetadata:   string(meta),
				fieldSeq:        time.Now().UnixNano(),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert %q: %w", chunk.ID, err)
	}
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

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(toFloat32(query)...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	type ranked struct {
		result memory.SearchResult
		seq    int64
	}
	rs := make([]ranked, 0, len(points))
	for _, p := range points {
		ch, seq, err := chunkFromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		rs = append(rs, ranked{memory.SearchResult{Chunk: ch, Score: float64(p.GetScore())}, seq})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].result.Score != rs[j].result.Score {
			return rs[i].result.Score > rs[j].result.Score
		}
		return rs[i].seq < rs[j].seq
	})

	out := make([]memory.SearchResult, len(rs))
	for i, r := range rs {
		out[i] = r.result
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*memory.Entry, error) {
	if dims, err := s.dimensions(ctx); err != nil {
		return nil, err
	} else if dims == 0 {
		return nil, fmt.Errorf("entry %q: %w", id, memory.ErrNotFound)
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("entry %q: %w", id, memory.ErrNotFound)
	}
	ch, _, err := chunkFromPayload(points[0].GetPayload())
	if err != nil {
		return nil, err
	}
	var vec []float64
	if v := points[0].GetVectors().GetVector(); v != nil {
		vec = toFloat64(v.GetDense().GetData())
	}
	return &memory.Entry{Chunk: ch, Vector: vec}, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if dims, err := s.dimensions(ctx); err != nil || dims == 0 {
		return err
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewIDUUID(PointID(id))},
				},
			},
		},
	})
	return err
}

func (s *Store) Len(ctx context.Context) (int, error) {
	if dims, err := s.dimensions(ctx); err != nil || dims == 0 {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DropCollection deletes the backing collection.
func (s *Store) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims = 0
	return s.client.DeleteCollection(ctx, s.collection)
}

func chunkFromPayload(payload map[string]*qdrant.Value) (document.Chunk, int64, error) {
	ch := document.Chunk{
		ID:         payload[fieldChunkID].GetStringValue(),
		DocumentID: payload[fieldDocumentID].GetStringValue(),
		Index:      int(payload[fieldIndex].GetIntegerValue()),
		Text:       payload[fieldText].GetStringValue(),
	}
	if raw := payload[fieldMetadata].GetStringValue(); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &ch.Metadata); err != nil {
			return ch, 0, fmt.Errorf("decode metadata of %q: %w", ch.ID, err)
		}
	}
	return ch, payload[fieldSeq].GetIntegerValue(), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

var _ memory.VectorStore = (*Store)(nil)
