package llm

import (
	"context"
	"time"
)

// Client is a chat model behind one provider. Implementations live in the
// openai and anthropic packages; RouterClient and InstrumentedClient wrap
// other clients.
type Client interface {
	Chat(ctx context.Context, req *ChatRequest) (*Response, error)
	// Completion sends prompt as a single user message.
	Completion(ctx context.Context, prompt string) (*Response, error)
	// Stream sends partial responses to output and closes it when done.
	Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error
	Model() string
	Provider() Provider
	Validate() error
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn sent to a model. Assistant turns may carry ToolCalls;
// the matching RoleTool replies set ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ChatRequest is a provider-neutral request. Nil pointer options fall back
// to the client's configured defaults, and an empty Model uses the
// client's model.
type ChatRequest struct {
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	Tools        []Tool    `json:"tools,omitempty"`
	// ToolChoice is "auto", "none" or a provider-specific value.
	ToolChoice any `json:"tool_choice,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	Stop             []string `json:"stop,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	User           string          `json:"user,omitempty"`
}

// Tool advertises a callable function to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponseFormat asks for "text" or "json_object" output where supported.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Response is a complete reply, or one fragment of a streamed reply.
type Response struct {
	Content      string     `json:"content"`
	Role         string     `json:"role,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`

	Model     string            `json:"model"`
	Provider  Provider          `json:"provider"`
	Usage     *Usage            `json:"usage,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Latency   time.Duration     `json:"latency,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function names the called function. Arguments is the raw JSON text.
type Function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
}
