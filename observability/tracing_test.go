package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDefaultTracerAndHTTPHelpers(t *testing.T) {
	oldT := TracerImpl
	tracer := NewDefaultTracer()
	SetTracer(tracer)
	t.Cleanup(func() { TracerImpl = oldT })

	span, ctx := StartSpan(context.Background(), "op")
	span.SetAttribute(AttrHTTPMethod, "GET")
	span.AddEvent("evt", map[string]interface{}{"k": "v"})
	if got := TracerImpl.SpanFromContext(ctx); got != span {
		t.Fatalf("span not found in context")
	}
	EndSpan(span, nil)
	span.SetAttribute("late", 1) // ignored after End

	spans := tracer.GetSpans()
	if len(spans) != 1 || spans[0].Name != "op" || spans[0].Status != StatusCodeOk {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if _, ok := spans[0].Attributes["late"]; ok {
		t.Fatalf("attribute recorded after End")
	}

	// Context helpers
	id := GenerateRequestID()
	ctx = WithRequestID(ctx, id)
	if have, ok := RequestIDFromContext(ctx); !ok || have != id {
		t.Fatalf("request id missing")
	}

	// HTTP inject/extract
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	ctx2 := ExtractHTTPContext(context.Background(), req)
	rw := httptest.NewRecorder()
	InjectHTTPHeaders(rw, ctx2)
	if rw.Header().Get(HeaderRequestID) != "abc" {
		t.Fatalf("request id not propagated")
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	tracer := NewDefaultTracer()
	span, _ := tracer.StartSpan(context.Background(), "failing")
	EndSpan(span, errors.New("boom"))

	spans := tracer.GetSpans()
	if len(spans) != 1 || spans[0].Status != StatusCodeError || spans[0].Message != "boom" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	tracer.Reset()
	if len(tracer.GetSpans()) != 0 {
		t.Fatalf("reset did not clear spans")
	}
}

func TestGeneratedRequestIDWhenHeaderMissing(t *testing.T) {
	ctx := ExtractHTTPContext(context.Background(), httptest.NewRequest("GET", "/", nil))
	id, ok := RequestIDFromContext(ctx)
	if !ok || len(id) != 32 {
		t.Fatalf("expected generated id, got %q", id)
	}
}

func TestDefaultTracerRecordsParent(t *testing.T) {
	tracer := NewDefaultTracer()
	outer, ctx := tracer.StartSpan(context.Background(), "pipeline.ask")
	inner, _ := tracer.StartSpan(ctx, "llm.chat")
	inner.End()
	outer.End()
	outer.End()

	spans := tracer.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "llm.chat" || spans[0].Parent != "pipeline.ask" {
		t.Fatalf("unexpected child span: %+v", spans[0])
	}
	if spans[1].Parent != "" {
		t.Fatalf("root span has parent %q", spans[1].Parent)
	}
}

func TestOversizedRequestIDIsReplaced(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 500))
	id, _ := RequestIDFromContext(ExtractHTTPContext(context.Background(), req))
	if len(id) != 32 {
		t.Fatalf("expected generated id, got %d bytes", len(id))
	}
}
