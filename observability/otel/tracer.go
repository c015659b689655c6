// Package otel implements observability.Tracer on OpenTelemetry.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samzhu/ragkit/observability"
)

// Tracer adapts an OpenTelemetry tracer.
type Tracer struct{ otTracer trace.Tracer }

// NewTracer uses provider when non-nil, otherwise the global provider.
func NewTracer(serviceName string, provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{otTracer: provider.Tracer(serviceName)}
}

func (t *Tracer) StartSpan(ctx context.Context, name string) (observability.Span, context.Context) {
	ctx, s := t.otTracer.Start(ctx, name)
	return &span{otSpan: s, ctx: ctx}, ctx
}

func (t *Tracer) SpanFromContext(ctx context.Context) observability.Span {
	return &span{otSpan: trace.SpanFromContext(ctx), ctx: ctx}
}

var statusCodes = map[observability.StatusCode]codes.Code{
	observability.StatusCodeUnset: codes.Unset,
	observability.StatusCodeOk:    codes.Ok,
	observability.StatusCodeError: codes.Error,
}

type span struct {
	otSpan trace.Span
	ctx    context.Context
}

func (s *span) SetAttribute(key string, value interface{}) {
	s.otSpan.SetAttributes(attr(key, value))
}

func (s *span) SetStatus(code observability.StatusCode, message string) {
	s.otSpan.SetStatus(statusCodes[code], message)
}

func (s *span) AddEvent(name string, attrs map[string]interface{}) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attr(k, v))
	}
	s.otSpan.AddEvent(name, trace.WithAttributes(kvs...))
}

func (s *span) End()                     { s.otSpan.End() }
func (s *span) Context() context.Context { return s.ctx }

// attr keeps native OTel types where one exists and falls back to %v.
func attr(key string, v interface{}) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(key, x)
	case []string:
		return attribute.StringSlice(key, x)
	case bool:
		return attribute.Bool(key, x)
	case int:
		return attribute.Int(key, x)
	case int64:
		return attribute.Int64(key, x)
	case float32:
		return attribute.Float64(key, float64(x))
	case float64:
		return attribute.Float64(key, x)
	case time.Duration:
		return attribute.Int64(key+"_ms", x.Milliseconds())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

var (
	_ observability.Tracer = (*Tracer)(nil)
	_ observability.Span   = (*span)(nil)
)
