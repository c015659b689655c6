package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzhu/ragkit/llm"
)

var fastRetry = llm.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second, RetryConfig: fastRetry})
	require.NoError(t, err)
	return c
}

func TestChatSendsToolsAndParsesToolCalls(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"CurrentWeatherService","arguments":"{\"location\":\"Taipei\"}"}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	})

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		SystemPrompt: "be brief",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "weather?"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_0", Function: llm.Function{Name: "f", Arguments: "{}"}}}},
			{Role: llm.RoleTool, ToolCallID: "call_0", Content: `{"ok":true}`},
		},
		Tools: []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "CurrentWeatherService"}}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "CurrentWeatherService", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.NotEmpty(t, msgs[2].(map[string]any)["tool_calls"])
	assert.Equal(t, "call_0", msgs[3].(map[string]any)["tool_call_id"])
	assert.Len(t, got["tools"], 1)
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"oops","type":"server_error"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	})

	resp, err := c.Completion(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatClassifiesErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	})

	_, err := c.Completion(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrCollaboratorFailure))
	assert.True(t, llm.HasErrorType(err, llm.ErrorTypeAuthentication))
}

func TestChatTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	// runs before the server's Close so a stuck handler cannot block it
	t.Cleanup(func() { close(release) })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Completion(ctx, "hello")
	assert.True(t, errors.Is(err, llm.ErrCollaboratorTimeout), "got %v", err)
}

func TestValidateConfig(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	_, err = NewClient(Config{APIKey: "k", Model: llm.ModelClaude35Haiku})
	assert.Error(t, err)
	_, err = NewClient(Config{APIKey: "k", Temperature: 3})
	assert.Error(t, err)
	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, llm.ModelGPT4oMini, c.Model())
	assert.Equal(t, llm.ProviderOpenAI, c.Provider())
}

func TestEmbedderBatchesAndOrders(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, llm.ModelTextEmbedding3Small, req.Model)
		batches = append(batches, req.Input)

		// Reply in reverse index order; the client must reorder.
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Index: i, Embedding: []float32{float32(len(req.Input[i])), 0}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{
		Config:    Config{APIKey: "k", BaseURL: srv.URL, RetryConfig: fastRetry},
		BatchSize: 2,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedMany(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {2, 0}, {3, 0}}, vecs)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, batches)

	v, err := e.Embed(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 0}, v)
}

func TestEmbedderRejectsChatModel(t *testing.T) {
	_, err := NewEmbedder(EmbedderConfig{Config: Config{APIKey: "k", Model: llm.ModelGPT4o}})
	assert.Error(t, err)
}
