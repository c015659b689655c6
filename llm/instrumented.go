package llm

import (
	"context"
	"errors"
	"time"

	"github.com/samzhu/ragkit/observability"
)

// InstrumentedClient wraps a Client with spans and metrics reported to the
// global observability implementations.
type InstrumentedClient struct {
	inner Client
}

func NewInstrumentedClient(inner Client) *InstrumentedClient {
	return &InstrumentedClient{inner: inner}
}

func (c *InstrumentedClient) labels(model, status string) map[string]string {
	if model == "" {
		model = c.inner.Model()
	}
	return map[string]string{
		observability.LabelComponent: "llm",
		observability.LabelOperation: model,
		observability.LabelProvider:  string(c.inner.Provider()),
		observability.LabelStatus:    status,
	}
}

func (c *InstrumentedClient) observe(ctx context.Context, name, model string, call func(context.Context) (*Response, error)) (*Response, error) {
	span, ctx := observability.StartSpan(ctx, name)
	span.SetAttribute(observability.AttrProvider, string(c.inner.Provider()))
	span.SetAttribute(observability.AttrModel, model)

	start := time.Now()
	resp, err := call(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		observability.MetricsImpl.RecordError(errorKind(err), c.labels(model, status))
	}
	labels := c.labels(model, status)
	observability.MetricsImpl.IncrementRequests(labels)
	observability.MetricsImpl.RecordLatency(time.Since(start), labels)

	if resp != nil {
		span.SetAttribute(observability.AttrFinishReason, resp.FinishReason)
		if resp.Usage != nil {
			span.SetAttribute(observability.AttrTokensInput, resp.Usage.InputTokens)
			span.SetAttribute(observability.AttrTokensOutput, resp.Usage.OutputTokens)
			observability.MetricsImpl.IncrementTokensUsed(resp.Usage.TotalTokens, labels)
		}
	}
	observability.EndSpan(span, err)
	return resp, err
}

func (c *InstrumentedClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	model := c.inner.Model()
	if req != nil && req.Model != "" {
		model = req.Model
	}
	return c.observe(ctx, "llm.chat", model, func(ctx context.Context) (*Response, error) {
		return c.inner.Chat(ctx, req)
	})
}

func (c *InstrumentedClient) Completion(ctx context.Context, prompt string) (*Response, error) {
	return c.observe(ctx, "llm.completion", c.inner.Model(), func(ctx context.Context) (*Response, error) {
		return c.inner.Completion(ctx, prompt)
	})
}

func (c *InstrumentedClient) Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error {
	span, ctx := observability.StartSpan(ctx, "llm.stream")
	span.SetAttribute(observability.AttrProvider, string(c.inner.Provider()))
	err := c.inner.Stream(ctx, req, output)
	observability.EndSpan(span, err)
	return err
}

func (c *InstrumentedClient) Model() string      { return c.inner.Model() }
func (c *InstrumentedClient) Provider() Provider { return c.inner.Provider() }
func (c *InstrumentedClient) Validate() error    { return c.inner.Validate() }

// InstrumentedEmbedder counts embedded texts and traces each batch.
type InstrumentedEmbedder struct {
	inner    Embedder
	provider Provider
	model    string
}

func NewInstrumentedEmbedder(inner Embedder, provider Provider, model string) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, provider: provider, model: model}
}

func (e *InstrumentedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return EmbedOne(ctx, e, text)
}

func (e *InstrumentedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	span, ctx := observability.StartSpan(ctx, "embedding.batch")
	span.SetAttribute(observability.AttrProvider, string(e.provider))
	span.SetAttribute(observability.AttrModel, e.model)
	span.SetAttribute(observability.AttrBatchSize, len(texts))

	start := time.Now()
	vecs, err := e.inner.EmbedMany(ctx, texts)
	labels := map[string]string{
		observability.LabelComponent: "embedder",
		observability.LabelOperation: e.model,
		observability.LabelProvider:  string(e.provider),
		observability.LabelStatus:    "ok",
	}
	if err != nil {
		labels[observability.LabelStatus] = "error"
		observability.MetricsImpl.RecordError(errorKind(err), labels)
	} else {
		observability.MetricsImpl.IncrementEmbeddings(len(texts), labels)
		if len(vecs) > 0 {
			span.SetAttribute(observability.AttrDimensions, len(vecs[0]))
		}
	}
	observability.MetricsImpl.IncrementRequests(labels)
	observability.MetricsImpl.RecordLatency(time.Since(start), labels)
	observability.EndSpan(span, err)
	return vecs, err
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCollaboratorTimeout):
		return "collaborator_timeout"
	case errors.Is(err, ErrCollaboratorFailure):
		if llmErr, ok := IsLLMError(err); ok {
			return string(llmErr.Type)
		}
		return "collaborator_failure"
	default:
		return "error"
	}
}

var (
	_ Client   = (*InstrumentedClient)(nil)
	_ Embedder = (*InstrumentedEmbedder)(nil)
)
