package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/samzhu/ragkit/llm"
)

func TestConvertMessagesToolTraffic(t *testing.T) {
	req := &llm.ChatRequest{
		SystemPrompt: "base",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "context"},
			{Role: llm.RoleUser, Content: "weather in two cities?"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "a", Function: llm.Function{Name: "CurrentWeatherService", Arguments: `{"location":"Taipei"}`}},
				{ID: "b", Function: llm.Function{Name: "CurrentWeatherService", Arguments: ""}},
			}},
			{Role: llm.RoleTool, ToolCallID: "a", Content: `{"temp":30}`},
			{Role: llm.RoleTool, ToolCallID: "b", Content: `{"temp":30}`},
			{Role: llm.RoleAssistant, Content: "both 30"},
		},
	}

	system, msgs, err := convertMessages(req)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if system != "base\n\ncontext" {
		t.Fatalf("system = %q", system)
	}
	if len(msgs) != 4 {
		t.Fatalf("want 4 messages, got %d", len(msgs))
	}
	if msgs[1].Role != anthropic.RoleAssistant || len(msgs[1].Content) != 2 {
		t.Fatalf("assistant tool_use turn wrong: %+v", msgs[1])
	}
	if got := string(msgs[1].Content[1].MessageContentToolUse.Input); got != "{}" {
		t.Fatalf("empty arguments should become {}, got %q", got)
	}
	if msgs[2].Role != anthropic.RoleUser || len(msgs[2].Content) != 2 || !isToolResults(msgs[2]) {
		t.Fatalf("tool results not grouped: %+v", msgs[2])
	}
}

func TestConvertMessagesRejectsInvalidArguments(t *testing.T) {
	_, _, err := convertMessages(&llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "x", Function: llm.Function{Name: "f", Arguments: "{"}}}},
	}})
	if err == nil {
		t.Fatalf("expected error for invalid JSON arguments")
	}
}

func TestAPIErrorType(t *testing.T) {
	tests := map[string]llm.ErrorType{
		"rate_limit_error":      llm.ErrorTypeRateLimit,
		"overloaded_error":      llm.ErrorTypeServerError,
		"authentication_error":  llm.ErrorTypeAuthentication,
		"invalid_request_error": llm.ErrorTypeInvalidRequest,
		"something_new":         llm.ErrorTypeUnknown,
	}
	for in, want := range tests {
		if got := apiErrorType(in); got != want {
			t.Errorf("%s: got %s want %s", in, got, want)
		}
	}
}

func TestChatParsesToolUse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"checking"},{"type":"tool_use","id":"tu_1","name":"CurrentWeatherService","input":{"location":"Taipei"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":12,"output_tokens":8}}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		APIKey:      "k",
		BaseURL:     srv.URL,
		RetryConfig: llm.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "weather?"}},
		Tools:    []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "CurrentWeatherService", Description: "weather"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "checking" || resp.FinishReason != "tool_calls" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tu_1" {
		t.Fatalf("tool calls: %+v", resp.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Function.Arguments), &args); err != nil || args["location"] != "Taipei" {
		t.Fatalf("arguments: %q %v", resp.ToolCalls[0].Function.Arguments, err)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 20 {
		t.Fatalf("usage: %+v", resp.Usage)
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Fatalf("tools not sent: %v", body["tools"])
	}
}

func TestChatMapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Completion(context.Background(), "hi")
	if !errors.Is(err, llm.ErrCollaboratorFailure) {
		t.Fatalf("want collaborator failure, got %v", err)
	}
	if !llm.HasErrorType(err, llm.ErrorTypeAuthentication) {
		t.Fatalf("want authentication error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewClient(Config{APIKey: "k", Model: llm.ModelGPT4o}); err == nil {
		t.Fatalf("expected provider mismatch")
	}
	c, err := NewClient(Config{APIKey: "k"})
	if err != nil || c.Model() != llm.ModelClaude35Haiku {
		t.Fatalf("defaults: %v %v", c, err)
	}
}
