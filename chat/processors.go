package chat

import (
	"context"
	"unicode/utf8"

	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/memory"
)

// Processor transforms conversation history before it is sent to the model.
// Implementations must not modify the input slice.
type Processor interface {
	Process(ctx context.Context, msgs []memory.Message) []memory.Message
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, msgs []memory.Message) []memory.Message

func (f ProcessorFunc) Process(ctx context.Context, msgs []memory.Message) []memory.Message {
	return f(ctx, msgs)
}

// MessageWindow keeps the most recent Size messages.
type MessageWindow struct {
	Size int
}

func (w MessageWindow) Process(_ context.Context, msgs []memory.Message) []memory.Message {
	if w.Size <= 0 || len(msgs) <= w.Size {
		return msgs
	}
	return msgs[len(msgs)-w.Size:]
}

// TokenLimiter keeps the most recent messages whose combined content fits
// in MaxChars characters. A zero MaxChars disables the limit.
type TokenLimiter struct {
	MaxChars int
}

func (l TokenLimiter) Process(_ context.Context, msgs []memory.Message) []memory.Message {
	if l.MaxChars <= 0 {
		return msgs
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(msgs[i].Content)
		if total+n > l.MaxChars {
			break
		}
		total += n
		start = i
	}
	return msgs[start:]
}

// ToolCallFilter drops tool turns from the history.
type ToolCallFilter struct{}

func (ToolCallFilter) Process(_ context.Context, msgs []memory.Message) []memory.Message {
	out := make([]memory.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleTool {
			continue
		}
		out = append(out, m)
	}
	return out
}
