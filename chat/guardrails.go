package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/samzhu/ragkit/llm"
)

var (
	// ErrBlocked is returned when user input contains a denied substring.
	ErrBlocked = errors.New("request blocked by guardrails")

	// ErrNotPermitted is returned when an allow list is set and the input
	// matches none of it.
	ErrNotPermitted = errors.New("request not permitted by guardrails")
)

// SimpleGuardrails filters the latest user turn before it reaches the model.
type SimpleGuardrails struct {
	BaseAdvisor

	// Deny if any of these substrings appear in the user input
	DenySubstrings []string
	// Allow only if at least one of these substrings appears; if empty, allow all
	AllowSubstrings []string
	// Truncate the user input to this many characters (0 = no limit)
	MaxInputChars int
	// Deny if any function outside this list is requested (empty = allow all)
	AllowedFunctions []string
}

func (g *SimpleGuardrails) BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return nil
	}
	last := &req.Messages[len(req.Messages)-1]
	if last.Role != llm.RoleUser {
		return nil
	}

	if g.MaxInputChars > 0 {
		if runes := []rune(last.Content); len(runes) > g.MaxInputChars {
			last.Content = string(runes[:g.MaxInputChars])
		}
	}

	content := strings.ToLower(last.Content)
	for _, s := range g.DenySubstrings {
		if s != "" && strings.Contains(content, strings.ToLower(s)) {
			return ErrBlocked
		}
	}
	if len(g.AllowSubstrings) == 0 {
		return nil
	}
	for _, s := range g.AllowSubstrings {
		if s != "" && strings.Contains(content, strings.ToLower(s)) {
			return nil
		}
	}
	return ErrNotPermitted
}

func (g *SimpleGuardrails) BeforeFunctionCall(ctx context.Context, name, arguments string) error {
	if len(g.AllowedFunctions) == 0 {
		return nil
	}
	for _, f := range g.AllowedFunctions {
		if f == name {
			return nil
		}
	}
	return ErrNotPermitted
}
