package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samzhu/ragkit/llm"
)

// Function adapts a typed Go function to Tool. Arguments are decoded from
// JSON into Req and the result is encoded back to JSON.
type Function[Req, Resp any] struct {
	name        string
	description string
	fn          func(context.Context, Req) (Resp, error)
	schema      map[string]interface{}
}

// NewFunction wraps fn. The argument schema is derived from Req's fields
// and tags (json, description, enum).
func NewFunction[Req, Resp any](name, description string, fn func(context.Context, Req) (Resp, error)) *Function[Req, Resp] {
	var zero Req
	return &Function[Req, Resp]{
		name:        name,
		description: description,
		fn:          fn,
		schema:      llm.GenerateSchema(zero),
	}
}

func (f *Function[Req, Resp]) Name() string                   { return f.name }
func (f *Function[Req, Resp]) Description() string            { return f.description }
func (f *Function[Req, Resp]) Schema() map[string]interface{} { return f.schema }

// ResponseSchema describes the JSON the function returns.
func (f *Function[Req, Resp]) ResponseSchema() map[string]interface{} {
	var zero Resp
	return llm.GenerateSchema(zero)
}

// Execute decodes input, calls the function and encodes its result. An
// empty input decodes as the zero request.
func (f *Function[Req, Resp]) Execute(ctx context.Context, input string) (string, error) {
	var req Req
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &req); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	resp, err := f.fn(ctx, req)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}
