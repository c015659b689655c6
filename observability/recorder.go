package observability

import (
	"context"
	"maps"
	"sync"
	"time"
)

// SpanData is a finished span as kept by DefaultTracer.
type SpanData struct {
	Name       string                 `json:"name"`
	Parent     string                 `json:"parent,omitempty"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Duration   time.Duration          `json:"duration"`
	Status     StatusCode             `json:"status"`
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"`
	Events     []Event                `json:"events"`
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string                 `json:"name"`
	Time       time.Time              `json:"time"`
	Attributes map[string]interface{} `json:"attributes"`
}

type spanKey struct{}

// DefaultTracer records finished spans in memory. Tests install it with
// SetTracer and inspect GetSpans.
type DefaultTracer struct {
	mu    sync.Mutex
	spans []SpanData
}

func NewDefaultTracer() *DefaultTracer { return &DefaultTracer{} }

// StartSpan opens a span whose parent is the span already in ctx, if any.
func (t *DefaultTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	s := &recordedSpan{tracer: t, data: SpanData{
		Name:       name,
		StartTime:  time.Now(),
		Attributes: map[string]interface{}{},
	}}
	if parent, ok := ctx.Value(spanKey{}).(*recordedSpan); ok {
		s.data.Parent = parent.data.Name
	}
	s.ctx = context.WithValue(ctx, spanKey{}, s)
	return s, s.ctx
}

func (t *DefaultTracer) SpanFromContext(ctx context.Context) Span {
	if s, ok := ctx.Value(spanKey{}).(*recordedSpan); ok {
		return s
	}
	return &NoOpSpan{ctx: ctx}
}

// GetSpans returns the finished spans in the order they ended.
func (t *DefaultTracer) GetSpans() []SpanData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanData(nil), t.spans...)
}

// Reset drops recorded spans.
func (t *DefaultTracer) Reset() {
	t.mu.Lock()
	t.spans = nil
	t.mu.Unlock()
}

// recordedSpan ignores every call after End.
type recordedSpan struct {
	tracer *DefaultTracer
	ctx    context.Context

	mu    sync.Mutex
	data  SpanData
	ended bool
}

func (s *recordedSpan) update(fn func(*SpanData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		fn(&s.data)
	}
}

func (s *recordedSpan) SetAttribute(key string, value interface{}) {
	s.update(func(d *SpanData) { d.Attributes[key] = value })
}

func (s *recordedSpan) SetStatus(code StatusCode, message string) {
	s.update(func(d *SpanData) { d.Status, d.Message = code, message })
}

func (s *recordedSpan) AddEvent(name string, attributes map[string]interface{}) {
	s.update(func(d *SpanData) {
		d.Events = append(d.Events, Event{Name: name, Time: time.Now(), Attributes: maps.Clone(attributes)})
	})
}

func (s *recordedSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.data.EndTime = time.Now()
	s.data.Duration = s.data.EndTime.Sub(s.data.StartTime)
	d := s.data
	s.mu.Unlock()

	s.tracer.mu.Lock()
	s.tracer.spans = append(s.tracer.spans, d)
	s.tracer.mu.Unlock()
}

func (s *recordedSpan) Context() context.Context { return s.ctx }

var (
	_ Tracer = (*DefaultTracer)(nil)
	_ Span   = (*recordedSpan)(nil)
)
