// Package anthropic adapts the Claude Messages API to llm.Client, including
// tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/llm"
)

// Client implements the llm.Client interface for Anthropic Claude
type Client struct {
	client  *anthropic.Client
	config  Config
	retrier *llm.Retrier
	logger  *zap.Logger
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string          `json:"api_key"`
	Model       string          `json:"model"` // e.g., "claude-3-5-haiku-20241022"
	BaseURL     string          `json:"base_url,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty"`
	Logger      *zap.Logger     `json:"-"`
}

// NewClient creates a new Anthropic client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.ModelClaude35Haiku
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 && config.RetryConfig.InitialDelay == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client:  anthropic.NewClient(config.APIKey, opts...),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig, llm.WithRetryLogger(config.Logger)),
		logger:  config.Logger,
	}, nil
}

// validateConfig validates the Anthropic configuration
func validateConfig(config Config) error {
	errs := &llm.MultiValidationError{}
	if config.APIKey == "" {
		errs.Add("api_key", "", "API key is required")
	}
	if config.Model != "" {
		if err := llm.ValidateModel(config.Model, llm.KindChat); err != nil {
			errs.Add("model", config.Model, err.Error())
		} else if m, _ := llm.GetModel(config.Model); m.Provider != llm.ProviderAnthropic {
			errs.Add("model", config.Model, "not an Anthropic model")
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		errs.Add("temperature", config.Temperature, "must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		errs.Add("max_tokens", config.MaxTokens, "must be non-negative")
	}
	return errs.ErrorOrNil()
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	start := time.Now()
	result, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
		return c.chat(ctx, req)
	})
	if err != nil {
		return nil, llm.AsCollaboratorError(llm.ProviderAnthropic, err)
	}
	result.Latency = time.Since(start)
	result.Timestamp = start
	return result, nil
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	anthReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.CreateMessages(ctx, anthReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Content) == 0 {
		return nil, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeUnknown, "no content returned")
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			content.WriteString(block.GetText())
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			args := string(block.MessageContentToolUse.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.MessageContentToolUse.ID,
				Type: "function",
				Function: llm.Function{
					Name:      block.MessageContentToolUse.Name,
					Arguments: args,
				},
			})
		}
	}

	model := string(anthReq.Model)
	var usage *llm.Usage
	if resp.Usage.OutputTokens > 0 {
		modelInfo, _ := llm.GetModel(model)
		usage = &llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			Cost:         modelInfo.EstimateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		}
	}

	finish := string(resp.StopReason)
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}
	c.logger.Debug("messages call",
		zap.String("model", model),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("tool_calls", len(toolCalls)))

	return &llm.Response{
		Content:      content.String(),
		Role:         llm.RoleAssistant,
		Model:        model,
		Provider:     llm.ProviderAnthropic,
		Usage:        usage,
		FinishReason: finish,
		ToolCalls:    toolCalls,
		Meta:         map[string]string{"id": resp.ID},
	}, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest) (anthropic.MessagesRequest, error) {
	system, messages, err := convertMessages(req)
	if err != nil {
		return anthropic.MessagesRequest{}, err
	}
	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	temp := float32(c.config.Temperature)
	if req.Temperature != nil {
		temp = float32(*req.Temperature)
	}
	out := anthropic.MessagesRequest{
		Model:         anthropic.Model(model),
		System:        system,
		Messages:      messages,
		MaxTokens:     c.config.MaxTokens,
		Temperature:   &temp,
		StopSequences: req.Stop,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		out.TopP = &p
	}
	for _, t := range req.Tools {
		schema := t.Function.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out.Tools = append(out.Tools, anthropic.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

// convertMessages splits system turns out of the conversation and maps tool
// traffic onto tool_use / tool_result blocks. Consecutive tool results are
// grouped into a single user turn as the Messages API requires.
func convertMessages(req *llm.ChatRequest) (string, []anthropic.Message, error) {
	var system []string
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	var out []anthropic.Message
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			var blocks []anthropic.MessageContent
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				if !json.Valid(input) {
					return "", nil, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeInvalidRequest,
						fmt.Sprintf("tool call %s has invalid JSON arguments", tc.ID))
				}
				blocks = append(blocks, anthropic.MessageContent{
					Type: anthropic.MessagesContentTypeToolUse,
					MessageContentToolUse: &anthropic.MessageContentToolUse{
						ID:    tc.ID,
						Name:  tc.Function.Name,
						Input: input,
					},
				})
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: blocks})
		case llm.RoleTool:
			block := anthropic.NewToolResultMessageContent(msg.ToolCallID, msg.Content, false)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.RoleUser && isToolResults(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{block}})
		default:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		}
	}
	return strings.Join(system, "\n\n"), out, nil
}

func isToolResults(m anthropic.Message) bool {
	for _, b := range m.Content {
		if b.Type != anthropic.MessagesContentTypeToolResult {
			return false
		}
	}
	return len(m.Content) > 0
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
}

// Stream implements llm.Client interface. Text deltas are forwarded as they
// arrive; the call is not retried once output has been produced.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	base, err := c.buildRequest(req)
	if err != nil {
		return err
	}
	start := time.Now()
	model := string(base.Model)
	streamReq := anthropic.MessagesStreamRequest{
		MessagesRequest: base,
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if data.Delta.Text == nil || *data.Delta.Text == "" {
				return
			}
			resp := &llm.Response{
				Content:   *data.Delta.Text,
				Role:      llm.RoleAssistant,
				Model:     model,
				Provider:  llm.ProviderAnthropic,
				Latency:   time.Since(start),
				Timestamp: start,
				Meta:      map[string]string{"streaming": "true"},
			}
			select {
			case output <- resp:
			case <-ctx.Done():
			}
		},
	}
	if _, err := c.client.CreateMessagesStream(ctx, streamReq); err != nil {
		return llm.AsCollaboratorError(llm.ProviderAnthropic, convertError(err))
	}
	return nil
}

// convertError converts Anthropic SDK errors to LLM errors
func convertError(err error) error {
	if err == nil {
		return nil
	}

	// Check the status-carrying wrapper first; it may wrap an APIError.
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		llmErr := llm.ParseHTTPError(llm.ProviderAnthropic, reqErr.StatusCode, reqErr.Error())
		llmErr.Cause = err
		return llmErr
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.NewLLMErrorWithCause(llm.ProviderAnthropic, apiErrorType(string(apiErr.Type)), apiErr.Message, err)
		llmErr.Code = string(apiErr.Type)
		return llmErr
	}

	return llm.AsCollaboratorError(llm.ProviderAnthropic, err)
}

func apiErrorType(t string) llm.ErrorType {
	switch t {
	case "invalid_request_error", "request_too_large":
		return llm.ErrorTypeInvalidRequest
	case "authentication_error":
		return llm.ErrorTypeAuthentication
	case "permission_error":
		return llm.ErrorTypePermission
	case "not_found_error":
		return llm.ErrorTypeNotFound
	case "rate_limit_error":
		return llm.ErrorTypeRateLimit
	case "api_error", "overloaded_error":
		return llm.ErrorTypeServerError
	default:
		return llm.ErrorTypeUnknown
	}
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderAnthropic
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}

var _ llm.Client = (*Client)(nil)
