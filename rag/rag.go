package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/samzhu/ragkit/chat"
	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/memory"
	obs "github.com/samzhu/ragkit/observability"
)

// DefaultBatchSize is the number of chunks embedded per EmbedMany call.
const DefaultBatchSize = 32

// DefaultTopK is used by Query and Ask when topK is not positive.
const DefaultTopK = 4

// ErrNoChat is returned by Ask when the pipeline has no chat client.
var ErrNoChat = errors.New("rag: no chat client configured")

// Splitter turns documents into ordered chunks.
type Splitter interface {
	Split(docs []document.Document) ([]document.Chunk, error)
}

// Pipeline wires a splitter, an embedder and a vector store for ingestion
// and retrieval, with an optional chat client for grounded answers.
type Pipeline struct {
	splitter  Splitter
	embedder  llm.Embedder
	store     memory.VectorStore
	chat      *chat.Client
	batchSize int
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChat enables Ask.
func WithChat(c *chat.Client) Option {
	return func(p *Pipeline) { p.chat = c }
}

// WithBatchSize sets how many chunks are embedded per call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline.
func NewPipeline(splitter Splitter, embedder llm.Embedder, store memory.VectorStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	return p
}

// Store returns the pipeline's vector store.
func (p *Pipeline) Store() memory.VectorStore { return p.store }

// Ingest splits, embeds and stores docs and returns the number of chunks
// added. On failure the chunks added so far stay in the store and their
// count is returned alongside the error.
func (p *Pipeline) Ingest(ctx context.Context, docs []document.Document) (added int, err error) {
	span, ctx := obs.StartSpan(ctx, "rag.ingest")
	span.SetAttribute(obs.AttrDocuments, len(docs))
	defer func() {
		span.SetAttribute(obs.AttrChunks, added)
		obs.EndSpan(span, err)
		p.reportSize(ctx)
	}()

	chunks, err := p.splitter.Split(docs)
	if err != nil {
		return 0, fmt.Errorf("split: %w", err)
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vectors, err := p.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return added, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return added, fmt.Errorf("embed chunks %d-%d: got %d vectors: %w",
				start, end-1, len(vectors), llm.ErrCollaboratorFailure)
		}

		for i, ch := range batch {
			if err := p.store.Add(ctx, ch, vectors[i]); err != nil {
				return added, fmt.Errorf("add chunk %s: %w", ch.ID, err)
			}
			added++
		}
	}

	p.logger.Info("ingested documents",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", added),
	)
	return added, nil
}

// Query embeds text and returns the topK most similar chunks.
func (p *Pipeline) Query(ctx context.Context, text string, topK int) (results []memory.SearchResult, err error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	span, ctx := obs.StartSpan(ctx, "rag.query")
	span.SetAttribute(obs.AttrTopK, topK)
	defer func() {
		span.SetAttribute(obs.AttrResults, len(results))
		obs.EndSpan(span, err)
	}()

	vec, err := llm.EmbedOne(ctx, p.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err = p.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	p.logger.Debug("query", zap.Int("top_k", topK), zap.Int("results", len(results)))
	return results, nil
}

// Answer is a grounded completion and the chunks it was grounded on.
type Answer struct {
	Content string                `json:"content"`
	Sources []memory.SearchResult `json:"sources"`
}

// Ask retrieves the topK chunks for question and asks the chat model to
// answer using them. req.User defaults to the question; the retrieved
// context is placed in the system prompt.
func (p *Pipeline) Ask(ctx context.Context, question string, topK int, req chat.Request) (*Answer, error) {
	if p.chat == nil {
		return nil, ErrNoChat
	}
	results, err := p.Query(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	if req.User == "" {
		req.User = escapeBraces(question)
	}
	req.System = systemPrompt(req.System, BuildContext(results))

	resp, err := p.chat.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Answer{Content: resp.Content, Sources: results}, nil
}

// BuildContext formats retrieved chunks into a context block for prompts.
func BuildContext(results []memory.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[D%d] (%s)\n%s\n\n", i+1, r.Chunk.DocumentID, strings.TrimSpace(r.Chunk.Text))
	}
	return b.String()
}

const contextInstruction = "Answer the question using only the context below. " +
	"If the context does not contain the answer, say that you don't know.\n\n" +
	"Context:\n"

func systemPrompt(base, retrieved string) string {
	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}
	b.WriteString(contextInstruction)
	b.WriteString(retrieved)
	return strings.TrimRight(b.String(), "\n")
}

// escapeBraces makes free text safe to use as a prompt template.
func escapeBraces(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

func (p *Pipeline) reportSize(ctx context.Context) {
	n, err := p.store.Len(ctx)
	if err != nil {
		p.logger.Warn("vector store size unavailable", zap.Error(err))
		return
	}
	obs.MetricsImpl.SetVectorCount(n)
}
