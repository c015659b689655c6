// Package chat orchestrates a chat completion: prompt rendering, memory,
// advisors and the function-calling loop.
package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/memory"
	obs "github.com/samzhu/ragkit/observability"
	"github.com/samzhu/ragkit/tools"
)

// DefaultMaxToolRounds bounds the number of function-calling round trips.
const DefaultMaxToolRounds = 5

// ErrToolRoundsExceeded is returned when the model keeps requesting
// functions after MaxToolRounds round trips.
var ErrToolRoundsExceeded = errors.New("function calling rounds exceeded")

// Request describes one user turn.
type Request struct {
	// System overrides the client's default system prompt when set.
	System string
	// User is a prompt template rendered with Params.
	User   string
	Params map[string]any
	// Memory is read before the call and appended to on success.
	Memory *memory.Log
	// Functions names the registered functions offered to the model.
	Functions   []string
	Temperature *float64
	MaxTokens   *int
	Model       string

	// format is appended to the rendered user turn sent to the model but
	// not to the turn recorded in Memory.
	format string
}

// CallOption adjusts the request built by Complete.
type CallOption func(*Request)

// WithSystem sets the system prompt for one call.
func WithSystem(system string) CallOption {
	return func(r *Request) { r.System = system }
}

// WithParams sets the template parameters for one call.
func WithParams(params map[string]any) CallOption {
	return func(r *Request) { r.Params = params }
}

// WithMemory attaches a conversation log to one call.
func WithMemory(log *memory.Log) CallOption {
	return func(r *Request) { r.Memory = log }
}

// WithFunctions offers registered functions to the model for one call.
func WithFunctions(names ...string) CallOption {
	return func(r *Request) { r.Functions = names }
}

// WithTemperature sets the sampling temperature for one call.
func WithTemperature(t float64) CallOption {
	return func(r *Request) { r.Temperature = &t }
}

// Client is a configured chat pipeline around an llm.Client.
type Client struct {
	model         llm.Client
	registry      tools.Registry
	advisors      []Advisor
	processors    []Processor
	system        string
	maxToolRounds int
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry sets the function registry used to resolve tool calls.
func WithRegistry(r tools.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithAdvisors appends advisors; they run in the order given.
func WithAdvisors(a ...Advisor) Option {
	return func(c *Client) { c.advisors = append(c.advisors, a...) }
}

// WithProcessors appends history processors applied to memory before each call.
func WithProcessors(p ...Processor) Option {
	return func(c *Client) { c.processors = append(c.processors, p...) }
}

// WithDefaultSystem sets the system prompt used when a request has none.
func WithDefaultSystem(system string) Option {
	return func(c *Client) { c.system = system }
}

// WithMaxToolRounds bounds the function-calling loop.
func WithMaxToolRounds(n int) Option {
	return func(c *Client) { c.maxToolRounds = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a chat client.
func New(model llm.Client, opts ...Option) *Client {
	c := &Client{
		model:         model,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxToolRounds <= 0 {
		c.maxToolRounds = DefaultMaxToolRounds
	}
	return c
}

// Model returns the underlying chat model.
func (c *Client) Model() llm.Client { return c.model }

// Registry returns the function registry, nil when none is configured.
func (c *Client) Registry() tools.Registry { return c.registry }

// Complete renders prompt as the user turn and returns the final content.
func (c *Client) Complete(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	req := Request{User: prompt}
	for _, opt := range opts {
		opt(&req)
	}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Call runs one user turn through the model, resolving function calls until
// the model answers or the round limit is hit.
func (c *Client) Call(ctx context.Context, req Request) (resp *llm.Response, err error) {
	span, ctx := obs.StartSpan(ctx, "chat.call")
	defer func() { obs.EndSpan(span, err) }()

	user, err := c.renderUser(req)
	if err != nil {
		return nil, err
	}

	chatReq, err := c.buildRequest(ctx, req, user)
	if err != nil {
		return nil, err
	}
	span.SetAttribute(obs.AttrModel, c.model.Model())

	for round := 0; ; round++ {
		for _, a := range c.advisors {
			if err := a.BeforeLLMCall(ctx, chatReq); err != nil {
				return nil, err
			}
		}

		resp, err = c.model.Chat(ctx, chatReq)
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}

		for _, a := range c.advisors {
			if err := a.AfterLLMResponse(ctx, resp); err != nil {
				return nil, err
			}
		}

		if len(resp.ToolCalls) == 0 {
			break
		}
		if round >= c.maxToolRounds {
			return nil, fmt.Errorf("%w: %d", ErrToolRoundsExceeded, c.maxToolRounds)
		}

		chatReq.Messages = append(chatReq.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		results, err := c.callFunctions(ctx, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		chatReq.Messages = append(chatReq.Messages, results...)
	}

	if req.Memory != nil {
		req.Memory.Append(llm.RoleUser, user)
		req.Memory.Append(llm.RoleAssistant, resp.Content)
	}
	return resp, nil
}

func (c *Client) renderUser(req Request) (string, error) {
	return llm.NewPromptTemplate(req.User).Render(req.Params)
}

func (c *Client) buildRequest(ctx context.Context, req Request, user string) (*llm.ChatRequest, error) {
	chatReq := &llm.ChatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	system := req.System
	if system == "" {
		system = c.system
	}
	if system != "" {
		chatReq.Messages = append(chatReq.Messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}

	if req.Memory != nil {
		history := req.Memory.Messages()
		for _, p := range c.processors {
			history = p.Process(ctx, history)
		}
		for _, m := range history {
			chatReq.Messages = append(chatReq.Messages, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	content := user
	if req.format != "" {
		content += "\n\n" + req.format
	}
	chatReq.Messages = append(chatReq.Messages, llm.Message{Role: llm.RoleUser, Content: content})

	if len(req.Functions) > 0 {
		if c.registry == nil {
			return nil, fmt.Errorf("%w: %s", tools.ErrUnknownFunction, req.Functions[0])
		}
		defs, err := c.registry.Definitions(req.Functions...)
		if err != nil {
			return nil, err
		}
		chatReq.Tools = defs
	}
	return chatReq, nil
}

// callFunctions executes each requested function. An unregistered name
// aborts the call; a failing function reports its error back to the model.
func (c *Client) callFunctions(ctx context.Context, calls []llm.ToolCall) ([]llm.Message, error) {
	out := make([]llm.Message, 0, len(calls))
	for _, tc := range calls {
		name := tc.Function.Name
		if c.registry == nil {
			return nil, fmt.Errorf("%w: %s", tools.ErrUnknownFunction, name)
		}
		if _, ok := c.registry.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", tools.ErrUnknownFunction, name)
		}

		for _, a := range c.advisors {
			if err := a.BeforeFunctionCall(ctx, name, tc.Function.Arguments); err != nil {
				return nil, err
			}
		}

		result, execErr := c.registry.Execute(ctx, name, tc.Function.Arguments)

		for _, a := range c.advisors {
			if err := a.AfterFunctionCall(ctx, name, result, execErr); err != nil {
				return nil, err
			}
		}

		if execErr != nil {
			c.logger.Warn("function failed", zap.String("function", name), zap.Error(execErr))
			result = fmt.Sprintf("error: %v", execErr)
		}
		out = append(out, llm.Message{
			Role:       llm.RoleTool,
			Name:       name,
			Content:    result,
			ToolCallID: tc.ID,
		})
	}
	return out, nil
}
