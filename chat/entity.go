package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/samzhu/ragkit/llm"
)

// Entity runs req and decodes the model's answer into T. The JSON schema of
// T is appended to the user turn and the decoded value must pass Validate.
func Entity[T llm.Structured](ctx context.Context, c *Client, req Request) (*llm.StructuredResponse[T], error) {
	template := newStructured[T]()
	schema, err := json.Marshal(template.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	req.format = "Respond with a single JSON object that conforms to this JSON schema. " +
		"Do not include any explanation or markdown.\n" + string(schema)

	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	out, err := llm.ParseStructured(resp.Content, template)
	if out != nil {
		out.RawResponse = resp
		out.Usage = resp.Usage
	}
	return out, err
}

// newStructured returns a usable zero T, allocating when T is a pointer.
func newStructured[T llm.Structured]() T {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Ptr {
		return reflect.New(t.Elem()).Interface().(T)
	}
	return zero
}

// RequestType classifies a customer message.
type RequestType string

const (
	RequestProductInquiry RequestType = "PRODUCT_INQUIRY"
	RequestShippingIssue  RequestType = "SHIPPING_ISSUE"
	RequestOther          RequestType = "OTHER"
)

// UserRequest is a customer message together with its classification.
type UserRequest struct {
	Message string      `json:"message" description:"the customer's message"`
	Type    RequestType `json:"type" description:"request category" enum:"PRODUCT_INQUIRY|SHIPPING_ISSUE|OTHER"`
}

func (u UserRequest) Validate() error {
	switch u.Type {
	case RequestProductInquiry, RequestShippingIssue, RequestOther:
		return nil
	}
	return fmt.Errorf("unknown request type %q", u.Type)
}

func (u UserRequest) JSONSchema() map[string]interface{} {
	return llm.GenerateSchema(u)
}
