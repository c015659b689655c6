package observability

import (
	"context"
)

// Tracer opens spans. The active span travels in the context, so a span
// started from a context returned by StartSpan becomes its child.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (Span, context.Context)
	SpanFromContext(ctx context.Context) Span
}

// Span is one timed operation. Implementations must tolerate calls after End.
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(code StatusCode, message string)
	AddEvent(name string, attributes map[string]interface{})
	End()
	Context() context.Context
}

// StatusCode mirrors the OpenTelemetry span status.
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

// Attribute keys shared by the HTTP, LLM and RAG layers.
const (
	AttrHTTPMethod   = "http.method"
	AttrHTTPRoute    = "http.route"
	AttrHTTPStatus   = "http.status_code"
	AttrRequestID    = "request.id"
	AttrProvider     = "genai.provider"
	AttrModel        = "genai.model"
	AttrFinishReason = "genai.finish_reason"
	AttrToolName     = "genai.tool.name"
	AttrTokensInput  = "genai.tokens.input"
	AttrTokensOutput = "genai.tokens.output"

	AttrDocuments  = "rag.documents"
	AttrChunks     = "rag.chunks"
	AttrTopK       = "rag.top_k"
	AttrResults    = "rag.results"
	AttrDimensions = "vector.dimensions"
	AttrBatchSize  = "embedding.batch_size"
)

// Process-wide implementations, no-ops until replaced.
var (
	TracerImpl  Tracer  = &NoOpTracer{}
	MetricsImpl Metrics = &NoOpMetrics{}
)

// SetTracer swaps the global tracer implementation
func SetTracer(t Tracer) { TracerImpl = t }

// SetMetrics swaps the global metrics implementation
func SetMetrics(m Metrics) { MetricsImpl = m }

// NoOpTracer discards every span.
type NoOpTracer struct{}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return &NoOpSpan{ctx: ctx}, ctx
}

func (t *NoOpTracer) SpanFromContext(ctx context.Context) Span { return &NoOpSpan{ctx: ctx} }

// NoOpSpan ignores all calls.
type NoOpSpan struct{ ctx context.Context }

func (s *NoOpSpan) SetAttribute(string, interface{})        {}
func (s *NoOpSpan) SetStatus(StatusCode, string)            {}
func (s *NoOpSpan) AddEvent(string, map[string]interface{}) {}
func (s *NoOpSpan) End()                                    {}

func (s *NoOpSpan) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

var (
	_ Tracer = (*NoOpTracer)(nil)
	_ Span   = (*NoOpSpan)(nil)
)

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return TracerImpl.StartSpan(ctx, name)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span Span, err error) {
	if err != nil {
		span.SetStatus(StatusCodeError, err.Error())
	} else {
		span.SetStatus(StatusCodeOk, "")
	}
	span.End()
}
