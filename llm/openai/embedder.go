package openai

import (
	"context"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/llm"
)

// DefaultEmbeddingBatchSize bounds the number of inputs per request.
const DefaultEmbeddingBatchSize = 96

// EmbedderConfig configures the OpenAI embeddings client. Model defaults to
// text-embedding-3-small.
type EmbedderConfig struct {
	Config
	// Dimensions requests shortened vectors from text-embedding-3 models
	Dimensions int
	BatchSize  int
}

// Embedder implements llm.Embedder on the OpenAI embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	retrier    *llm.Retrier
	logger     *zap.Logger
}

// NewEmbedder creates an embeddings client.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("invalid config: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = llm.DefaultEmbeddingModel
	}
	if err := llm.ValidateModel(model, llm.KindEmbedding); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingBatchSize
	}
	base := cfg.Config
	base.Model = ""
	base = base.withDefaults()

	return &Embedder{
		client:     base.sdkClient(),
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		retrier:    llm.NewRetrier(base.RetryConfig, llm.WithRetryLogger(base.Logger)),
		logger:     base.Logger,
	}, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return llm.EmbedOne(ctx, e, text)
}

// EmbedMany splits texts into batches, retrying each batch independently.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]
		vecs, err := llm.Execute(e.retrier, ctx, func(ctx context.Context, attempt int) ([][]float64, error) {
			return e.embedBatch(ctx, batch)
		})
		if err != nil {
			return nil, llm.AsCollaboratorError(llm.ProviderOpenAI, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      batch,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Data) != len(batch) {
		return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeUnknown,
			fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Data), len(batch)))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float64, len(data))
	for i, d := range data {
		v := make([]float64, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float64(x)
		}
		out[i] = v
	}
	e.logger.Debug("embedded batch", zap.Int("size", len(batch)), zap.Int("prompt_tokens", resp.Usage.PromptTokens))
	return out, nil
}

var _ llm.Embedder = (*Embedder)(nil)
