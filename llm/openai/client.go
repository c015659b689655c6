// Package openai adapts the OpenAI chat and embeddings APIs to the llm
// interfaces, with retries and error classification at the boundary.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/llm"
)

// Client implements the llm.Client interface for OpenAI
type Client struct {
	client  *openai.Client
	config  Config
	retrier *llm.Retrier
	logger  *zap.Logger
}

// Config holds OpenAI-specific configuration
type Config struct {
	APIKey       string          `json:"api_key"`
	Model        string          `json:"model"` // e.g., "gpt-4o-mini"
	BaseURL      string          `json:"base_url,omitempty"`
	Temperature  float64         `json:"temperature,omitempty"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
	RetryConfig  llm.RetryConfig `json:"retry_config,omitempty"`
	Organization string          `json:"organization,omitempty"`
	Logger       *zap.Logger     `json:"-"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = llm.ModelGPT4oMini
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryConfig.MaxRetries == 0 && c.RetryConfig.InitialDelay == 0 {
		c.RetryConfig = llm.DefaultRetryConfig()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) sdkClient() *openai.Client {
	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.Organization != "" {
		cfg.OrgID = c.Organization
	}
	cfg.HTTPClient = &http.Client{Timeout: c.Timeout}
	return openai.NewClientWithConfig(cfg)
}

// NewClient creates a new OpenAI chat client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config = config.withDefaults()

	return &Client{
		client:  config.sdkClient(),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig, llm.WithRetryLogger(config.Logger)),
		logger:  config.Logger,
	}, nil
}

// validateConfig validates the OpenAI configuration
func validateConfig(config Config) error {
	errs := &llm.MultiValidationError{}
	if config.APIKey == "" {
		errs.Add("api_key", "", "API key is required")
	}
	if config.Model != "" {
		if err := llm.ValidateModel(config.Model, llm.KindChat); err != nil {
			errs.Add("model", config.Model, err.Error())
		} else if m, _ := llm.GetModel(config.Model); m.Provider != llm.ProviderOpenAI {
			errs.Add("model", config.Model, "not an OpenAI model")
		}
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		errs.Add("temperature", config.Temperature, "must be between 0 and 2")
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
		return nil, llm.AsCollaboratorError(llm.ProviderOpenAI, err)
	}
	result.Latency = time.Since(start)
	result.Timestamp = start
	return result, nil
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	oaiReq := c.buildRequest(req)
	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeUnknown, "no choices returned")
	}

	choice := resp.Choices[0]
	var toolCalls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: llm.Function{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	var usage *llm.Usage
	if resp.Usage.TotalTokens > 0 {
		modelInfo, _ := llm.GetModel(oaiReq.Model)
		usage = &llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Cost:         modelInfo.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		}
	}

	c.logger.Debug("chat completion",
		zap.String("model", oaiReq.Model),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("tool_calls", len(toolCalls)))

	return &llm.Response{
		Content:      choice.Message.Content,
		Role:         llm.RoleAssistant,
		Model:        oaiReq.Model,
		Provider:     llm.ProviderOpenAI,
		Usage:        usage,
		FinishReason: string(choice.FinishReason),
		ToolCalls:    toolCalls,
		Meta: map[string]string{
			"id":      resp.ID,
			"created": fmt.Sprintf("%d", resp.Created),
		},
	}, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest) openai.ChatCompletionRequest {
	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}
	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req),
		Temperature: float32(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
		Stop:        req.Stop,
		Seed:        req.Seed,
		User:        req.User,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		out.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		out.PresencePenalty = float32(*req.PresencePenalty)
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 && req.ToolChoice != nil {
		out.ToolChoice = req.ToolChoice
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func convertMessages(req *llm.ChatRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		switch msg.Role {
		case llm.RoleSystem:
			m.Role = openai.ChatMessageRoleSystem
		case llm.RoleAssistant:
			m.Role = openai.ChatMessageRoleAssistant
		case llm.RoleTool:
			m.Role = openai.ChatMessageRoleTool
		default:
			m.Role = openai.ChatMessageRoleUser
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		messages = append(messages, m)
	}
	return messages
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
}

// Stream implements llm.Client interface. Only opening the stream is
// retried; a failure mid-stream is returned as is.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	oaiReq := c.buildRequest(req)
	oaiReq.Stream = true
	stream, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*openai.ChatCompletionStream, error) {
		s, err := c.client.CreateChatCompletionStream(ctx, oaiReq)
		if err != nil {
			return nil, convertError(err)
		}
		return s, nil
	})
	if err != nil {
		return llm.AsCollaboratorError(llm.ProviderOpenAI, err)
	}
	defer stream.Close()

	start := time.Now()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return convertError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		resp := &llm.Response{
			Content:      choice.Delta.Content,
			Role:         llm.RoleAssistant,
			Model:        oaiReq.Model,
			Provider:     llm.ProviderOpenAI,
			FinishReason: string(choice.FinishReason),
			Latency:      time.Since(start),
			Timestamp:    start,
			Meta:         map[string]string{"id": chunk.ID, "streaming": "true"},
		}
		select {
		case output <- resp:
		case <-ctx.Done():
			return llm.AsCollaboratorError(llm.ProviderOpenAI, ctx.Err())
		}
	}
}

// convertError converts OpenAI SDK errors to LLM errors
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			llmErr.Code = code
		}
		llmErr.Cause = err
		return llmErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, reqErr.HTTPStatusCode, string(reqErr.Body))
		llmErr.Cause = err
		return llmErr
	}

	return llm.AsCollaboratorError(llm.ProviderOpenAI, err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderOpenAI
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}

var _ llm.Client = (*Client)(nil)
