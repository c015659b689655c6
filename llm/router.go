package llm

import (
	"context"
	"errors"
)

// ErrNoRoute is returned when no client is configured for a request.
var ErrNoRoute = errors.New("no client configured for request")

// RoutePolicy picks the client for a request. A non-empty model is written
// onto the request before it is forwarded.
type RoutePolicy interface {
	Select(req *ChatRequest) (Client, string, error)
}

// StaticPolicy routes by req.Model: an explicit ByModel entry wins, then the
// client registered for the model's provider in the catalogue, then Default.
// Requests without a model go to Default.
type StaticPolicy struct {
	Default    Client
	ByModel    map[string]Client
	ByProvider map[Provider]Client
}

func (p StaticPolicy) Select(req *ChatRequest) (Client, string, error) {
	var model string
	if req != nil {
		model = req.Model
	}
	if model != "" {
		if c := p.ByModel[model]; c != nil {
			return c, model, nil
		}
		if m, err := GetModel(model); err == nil {
			if c := p.ByProvider[m.Provider]; c != nil {
				return c, model, nil
			}
		}
	}
	if p.Default == nil {
		return nil, "", ErrNoRoute
	}
	return p.Default, model, nil
}

// RouterClient is a Client that forwards each call to the client its
// policy selects, so one chat.Client can serve several providers.
type RouterClient struct {
	policy RoutePolicy
}

func NewRouterClient(policy RoutePolicy) *RouterClient { return &RouterClient{policy: policy} }

func (r *RouterClient) route(req *ChatRequest) (Client, *ChatRequest, error) {
	c, model, err := r.policy.Select(req)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		req = &ChatRequest{}
	}
	if model != "" && model != req.Model {
		cp := *req
		cp.Model = model
		req = &cp
	}
	return c, req, nil
}

func (r *RouterClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	c, req, err := r.route(req)
	if err != nil {
		return nil, err
	}
	return c.Chat(ctx, req)
}

func (r *RouterClient) Completion(ctx context.Context, prompt string) (*Response, error) {
	c, _, err := r.route(nil)
	if err != nil {
		return nil, err
	}
	return c.Completion(ctx, prompt)
}

func (r *RouterClient) Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error {
	c, req, err := r.route(req)
	if err != nil {
		return err
	}
	return c.Stream(ctx, req, output)
}

// Model reports the default route's model.
func (r *RouterClient) Model() string {
	if c, _, err := r.route(nil); err == nil {
		return c.Model()
	}
	return "router"
}

// Provider reports the default route's provider.
func (r *RouterClient) Provider() Provider {
	if c, _, err := r.route(nil); err == nil {
		return c.Provider()
	}
	return Provider("router")
}

func (r *RouterClient) Validate() error {
	if r.policy == nil {
		return errors.New("nil route policy")
	}
	return nil
}
