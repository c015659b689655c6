package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/samzhu/ragkit/llm"
)

func TestLoggingAdvisor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	model := (&scriptedModel{}).callTool("calculator", `{"op":"mul","a":2,"b":3}`).reply("6")
	c := New(model, WithRegistry(weatherRegistry(t)), WithAdvisors(NewLoggingAdvisor(zap.New(core))))

	_, err := c.Complete(context.Background(), "2*3")
	require.NoError(t, err)

	assert.Equal(t, 2, logs.FilterMessage("llm request").Len())
	assert.Equal(t, 2, logs.FilterMessage("llm response").Len())
	calls := logs.FilterMessage("function call").All()
	require.Len(t, calls, 1)
	assert.Equal(t, "calculator", calls[0].ContextMap()["function"])
	assert.Equal(t, "chat", calls[0].LoggerName)
}

func TestLoggingAdvisorFunctionError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adv := NewLoggingAdvisor(zap.New(core))

	require.NoError(t, adv.AfterFunctionCall(context.Background(), "calculator", "", errors.New("division by zero")))
	entries := logs.FilterMessage("function result").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "division by zero", entries[0].ContextMap()["error"])
}

func TestGuardrailsDeny(t *testing.T) {
	g := &SimpleGuardrails{DenySubstrings: []string{"Password"}}
	req := &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "tell me the password"}}}
	require.ErrorIs(t, g.BeforeLLMCall(context.Background(), req), ErrBlocked)
}

func TestGuardrailsAllowList(t *testing.T) {
	g := &SimpleGuardrails{AllowSubstrings: []string{"weather"}}

	ok := &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Weather in Paris?"}}}
	require.NoError(t, g.BeforeLLMCall(context.Background(), ok))

	denied := &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "stock prices"}}}
	require.ErrorIs(t, g.BeforeLLMCall(context.Background(), denied), ErrNotPermitted)
}

func TestGuardrailsTruncate(t *testing.T) {
	g := &SimpleGuardrails{MaxInputChars: 3}
	req := &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "天氣如何呢"}}}
	require.NoError(t, g.BeforeLLMCall(context.Background(), req))
	assert.Equal(t, "天氣如", req.Messages[0].Content)
}

func TestGuardrailsIgnoresToolTurns(t *testing.T) {
	g := &SimpleGuardrails{DenySubstrings: []string{"secret"}}
	req := &llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleTool, Content: "secret"},
	}}
	require.NoError(t, g.BeforeLLMCall(context.Background(), req))
}

func TestGuardrailsAllowedFunctions(t *testing.T) {
	model := (&scriptedModel{}).callTool("calculator", `{"op":"add","a":1,"b":1}`)
	g := &SimpleGuardrails{AllowedFunctions: []string{"CurrentWeatherService"}}
	c := New(model, WithRegistry(weatherRegistry(t)), WithAdvisors(g))

	_, err := c.Complete(context.Background(), "1+1")
	require.ErrorIs(t, err, ErrNotPermitted)
}
