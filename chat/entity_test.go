package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/memory"
)

func TestEntityUserRequest(t *testing.T) {
	model := (&scriptedModel{}).reply("```json\n{\"message\":\"請問今天天氣如何?\",\"type\":\"OTHER\"}\n```")
	log := memory.NewLog(0)
	c := New(model)

	out, err := Entity[UserRequest](context.Background(), c, Request{
		User:   "Classify the request:\n{text}",
		Params: map[string]any{"text": "請問今天天氣如何?"},
		Memory: log,
	})
	require.NoError(t, err)
	assert.Equal(t, RequestOther, out.Data.Type)
	assert.Equal(t, "請問今天天氣如何?", out.Data.Message)
	assert.True(t, out.Validation.Valid)
	require.NotNil(t, out.RawResponse)

	sent := model.lastRequest(t).Messages[0].Content
	assert.Contains(t, sent, "Classify the request:\n請問今天天氣如何?")
	assert.Contains(t, sent, "PRODUCT_INQUIRY")

	// memory keeps the user's words without the format instruction
	assert.Equal(t, "Classify the request:\n請問今天天氣如何?", log.Messages()[0].Content)
}

func TestEntityInvalidType(t *testing.T) {
	model := (&scriptedModel{}).reply(`{"message":"hi","type":"REFUND"}`)
	c := New(model)

	out, err := Entity[UserRequest](context.Background(), c, Request{User: "hi"})
	require.Error(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Validation.Valid)
}

func TestEntityNotJSON(t *testing.T) {
	model := (&scriptedModel{}).reply("I cannot help with that")
	c := New(model)

	_, err := Entity[UserRequest](context.Background(), c, Request{User: "hi"})
	require.Error(t, err)
}

type pointerEntity struct {
	Name string `json:"name"`
}

func (p *pointerEntity) Validate() error { return nil }
func (p *pointerEntity) JSONSchema() map[string]interface{} {
	return llm.GenerateSchema(p)
}

func TestEntityPointerType(t *testing.T) {
	model := (&scriptedModel{}).reply(`{"name":"ragkit"}`)
	c := New(model)

	out, err := Entity[*pointerEntity](context.Background(), c, Request{User: "name?"})
	require.NoError(t, err)
	assert.Equal(t, "ragkit", out.Data.Name)
}

func TestUserRequestSchema(t *testing.T) {
	schema := UserRequest{}.JSONSchema()
	props := schema["properties"].(map[string]interface{})
	typ := props["type"].(map[string]interface{})
	assert.Equal(t, []string{"PRODUCT_INQUIRY", "SHIPPING_ISSUE", "OTHER"}, typ["enum"])
}
