// Package tools holds the functions a chat model may call, addressed by
// name. The registry is built once at startup and read concurrently.
package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samzhu/ragkit/llm"
	obs "github.com/samzhu/ragkit/observability"
)

// ErrUnknownFunction is returned when a call names a function that was
// never registered.
var ErrUnknownFunction = errors.New("unknown function")

// Tool is a function the model can invoke. Input and output are JSON text.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input string) (string, error)
	// Schema describes the arguments as a JSON schema object.
	Schema() map[string]interface{}
}

// Registry resolves function names for the chat client.
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	// List returns the registered names, sorted.
	List() []string
	// Definitions describes the named tools, or all of them when names is
	// empty, in request form. Unknown names fail with ErrUnknownFunction.
	Definitions(names ...string) ([]llm.Tool, error)
	Execute(ctx context.Context, name string, input string) (string, error)
}

// DefaultRegistry is a map guarded by a RWMutex.
type DefaultRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns a registry holding tools. Duplicate names fail.
func NewRegistry(tools ...Tool) (*DefaultRegistry, error) {
	r := &DefaultRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *DefaultRegistry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return errors.New("tools: function name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tools: %q is already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *DefaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *DefaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

func (r *DefaultRegistry) Definitions(names ...string) ([]llm.Tool, error) {
	if len(names) == 0 {
		names = r.List()
	}
	defs := make([]llm.Tool, len(names))
	for i, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
		}
		defs[i] = Definition(t)
	}
	return defs, nil
}

// Definition converts a tool to the chat request form.
func Definition(t Tool) llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		},
	}
}

// Execute runs the named tool inside a "tool.execute" span and records
// request, latency and error metrics labelled with the function name.
func (r *DefaultRegistry) Execute(ctx context.Context, name string, input string) (string, error) {
	labels := map[string]string{obs.LabelComponent: "tools", obs.LabelOperation: name}

	t, ok := r.Get(name)
	if !ok {
		obs.MetricsImpl.RecordError("unknown_function", labels)
		return "", fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	span, ctx := obs.StartSpan(ctx, "tool.execute")
	span.SetAttribute(obs.AttrToolName, name)
	start := time.Now()
	out, err := t.Execute(ctx, input)
	elapsed := time.Since(start)
	obs.EndSpan(span, err)

	labels[obs.LabelStatus] = "ok"
	if err != nil {
		labels[obs.LabelStatus] = "error"
		obs.MetricsImpl.RecordError("tool_error", labels)
	}
	obs.MetricsImpl.IncrementRequests(labels)
	obs.MetricsImpl.RecordLatency(elapsed, labels)

	if err != nil {
		return "", fmt.Errorf("function %s: %w", name, err)
	}
	return out, nil
}

var _ Registry = (*DefaultRegistry)(nil)
