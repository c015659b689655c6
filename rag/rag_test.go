package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzhu/ragkit/chat"
	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/llm/hashing"
	"github.com/samzhu/ragkit/memory"
	"github.com/samzhu/ragkit/memory/inmemory"
	obs "github.com/samzhu/ragkit/observability"
)

// flakyEmbedder fails every call after the first okCalls.
type flakyEmbedder struct {
	inner   llm.Embedder
	okCalls int
	calls   int
	batches []int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls++
	f.batches = append(f.batches, len(texts))
	if f.okCalls >= 0 && f.calls > f.okCalls {
		return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeServerError, "embedding backend down")
	}
	return f.inner.EmbedMany(ctx, texts)
}

type fixedModel struct {
	content string
	last    *llm.ChatRequest
}

func (m *fixedModel) Chat(_ context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	m.last = req
	return &llm.Response{Content: m.content, Model: "mock"}, nil
}
func (m *fixedModel) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return m.Chat(ctx, &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}}})
}
func (m *fixedModel) Stream(context.Context, *llm.ChatRequest, chan<- *llm.Response) error {
	return nil
}
func (m *fixedModel) Model() string          { return "mock" }
func (m *fixedModel) Provider() llm.Provider { return llm.ProviderOpenAI }
func (m *fixedModel) Validate() error        { return nil }

func newSizedSplitter(t *testing.T, chunkSize, maxSize int) *TokenTextSplitter {
	t.Helper()
	cfg := DefaultSplitterConfig()
	cfg.ChunkSize = chunkSize
	cfg.MaxChunkSize = maxSize
	cfg.MinChunkSizeChars = 1
	s, err := NewTokenTextSplitter(cfg)
	require.NoError(t, err)
	return s
}

var corpus = []document.Document{
	{ID: "cats", Text: "Cats are small carnivorous mammals. They purr when content and sleep most of the day."},
	{ID: "rockets", Text: "Rockets burn propellant to produce thrust. Orbital launches need staging to reach orbit."},
	{ID: "bread", Text: "Bread dough rises because yeast ferments sugar. Bake the loaf until the crust is golden."},
}

func TestIngestAndQuery(t *testing.T) {
	store := inmemory.NewVectorStore()
	p := NewPipeline(newSizedSplitter(t, 40, 60), hashing.New(256), store)

	n, err := p.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	assert.Greater(t, n, len(corpus))
	size, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, size)

	results, err := p.Query(context.Background(), "why does yeast make dough rise", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bread", results[0].Chunk.DocumentID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestQueryExactChunkScoresOne(t *testing.T) {
	p := NewPipeline(newSizedSplitter(t, 200, 350), hashing.New(128), inmemory.NewVectorStore())
	_, err := p.Ingest(context.Background(), corpus[:1])
	require.NoError(t, err)

	results, err := p.Query(context.Background(), corpus[0].Text, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestQueryDefaultTopK(t *testing.T) {
	p := NewPipeline(newSizedSplitter(t, 20, 30), hashing.New(64), inmemory.NewVectorStore())
	_, err := p.Ingest(context.Background(), corpus)
	require.NoError(t, err)

	results, err := p.Query(context.Background(), "orbit", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestIngestBatches(t *testing.T) {
	emb := &flakyEmbedder{inner: hashing.New(32), okCalls: -1}
	p := NewPipeline(newSizedSplitter(t, 20, 30), emb, inmemory.NewVectorStore(), WithBatchSize(3))

	n, err := p.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	for _, b := range emb.batches {
		assert.LessOrEqual(t, b, 3)
	}
	total := 0
	for _, b := range emb.batches {
		total += b
	}
	assert.Equal(t, n, total)
}

func TestIngestPartialFailureKeepsAddedChunks(t *testing.T) {
	store := inmemory.NewVectorStore()
	emb := &flakyEmbedder{inner: hashing.New(32), okCalls: 1}
	p := NewPipeline(newSizedSplitter(t, 20, 30), emb, store, WithBatchSize(2))

	n, err := p.Ingest(context.Background(), corpus)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrCollaboratorFailure)
	assert.Equal(t, 2, n)

	size, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestIngestDimensionMismatch(t *testing.T) {
	store := inmemory.NewVectorStore()
	p := NewPipeline(newSizedSplitter(t, 200, 350), hashing.New(16), store)
	_, err := p.Ingest(context.Background(), corpus[:1])
	require.NoError(t, err)

	other := NewPipeline(newSizedSplitter(t, 200, 350), hashing.New(8), store)
	_, err = other.Ingest(context.Background(), corpus[1:2])
	require.ErrorIs(t, err, memory.ErrDimensionMismatch)

	_, err = other.Query(context.Background(), "rockets", 1)
	require.ErrorIs(t, err, memory.ErrDimensionMismatch)
}

func TestIngestSplitError(t *testing.T) {
	cfg := SplitterConfig{ChunkSize: 1, MaxChunkSize: 1, MaxNumChunks: 1}
	s, err := NewTokenTextSplitter(cfg)
	require.NoError(t, err)

	p := NewPipeline(s, hashing.New(8), inmemory.NewVectorStore())
	n, err := p.Ingest(context.Background(), corpus[:1])
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Zero(t, n)
}

func TestIngestReportsVectorCount(t *testing.T) {
	prev := obs.MetricsImpl
	metrics := obs.NewDefaultMetrics()
	obs.MetricsImpl = metrics
	t.Cleanup(func() { obs.MetricsImpl = prev })

	p := NewPipeline(newSizedSplitter(t, 200, 350), hashing.New(16), inmemory.NewVectorStore())
	n, err := p.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, n, metrics.GetStats()["vectors"])
}

func TestAsk(t *testing.T) {
	model := &fixedModel{content: "Yeast ferments sugar."}
	p := NewPipeline(newSizedSplitter(t, 200, 350), hashing.New(256), inmemory.NewVectorStore(),
		WithChat(chat.New(model)))
	_, err := p.Ingest(context.Background(), corpus)
	require.NoError(t, err)

	ans, err := p.Ask(context.Background(), "What does {yeast} do to bread dough?", 1, chat.Request{System: "Be brief."})
	require.NoError(t, err)
	assert.Equal(t, "Yeast ferments sugar.", ans.Content)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "bread", ans.Sources[0].Chunk.DocumentID)

	require.NotNil(t, model.last)
	system := model.last.Messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.True(t, strings.HasPrefix(system.Content, "Be brief."))
	assert.Contains(t, system.Content, "[D1] (bread)")
	assert.Equal(t, "What does {yeast} do to bread dough?", model.last.Messages[1].Content)
}

func TestAskWithoutChat(t *testing.T) {
	p := NewPipeline(newSizedSplitter(t, 200, 350), hashing.New(8), inmemory.NewVectorStore())
	_, err := p.Ask(context.Background(), "hi", 1, chat.Request{})
	require.ErrorIs(t, err, ErrNoChat)
}

func TestAskQueryError(t *testing.T) {
	emb := &errEmbedder{err: errors.New("offline")}
	p := NewPipeline(newSizedSplitter(t, 200, 350), emb, inmemory.NewVectorStore(), WithChat(chat.New(&fixedModel{})))
	_, err := p.Ask(context.Background(), "hi", 1, chat.Request{})
	require.ErrorContains(t, err, "offline")
}

type errEmbedder struct{ err error }

func (e *errEmbedder) Embed(context.Context, string) ([]float64, error) { return nil, e.err }
func (e *errEmbedder) EmbedMany(context.Context, []string) ([][]float64, error) {
	return nil, e.err
}

func TestBuildContext(t *testing.T) {
	results := []memory.SearchResult{
		{Chunk: document.Chunk{DocumentID: "a", Text: "  first  "}, Score: 0.9},
		{Chunk: document.Chunk{DocumentID: "b", Text: "second"}, Score: 0.5},
	}
	assert.Equal(t, "[D1] (a)\nfirst\n\n[D2] (b)\nsecond\n\n", BuildContext(results))
	assert.Empty(t, BuildContext(nil))
}
