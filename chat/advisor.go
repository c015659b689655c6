package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/samzhu/ragkit/llm"
)

// Advisor intercepts a call at its model and function boundaries. Any
// returned error aborts the call. BeforeLLMCall may rewrite the request.
type Advisor interface {
	BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error
	AfterLLMResponse(ctx context.Context, resp *llm.Response) error
	BeforeFunctionCall(ctx context.Context, name, arguments string) error
	AfterFunctionCall(ctx context.Context, name, result string, callErr error) error
}

// BaseAdvisor implements every hook as a no-op so advisors can embed it and
// override only what they need.
type BaseAdvisor struct{}

func (BaseAdvisor) BeforeLLMCall(context.Context, *llm.ChatRequest) error { return nil }
func (BaseAdvisor) AfterLLMResponse(context.Context, *llm.Response) error { return nil }
func (BaseAdvisor) BeforeFunctionCall(context.Context, string, string) error {
	return nil
}
func (BaseAdvisor) AfterFunctionCall(context.Context, string, string, error) error {
	return nil
}

// LoggingAdvisor logs every boundary crossing at debug level.
type LoggingAdvisor struct {
	logger *zap.Logger
	start  time.Time
}

// NewLoggingAdvisor creates an advisor writing to logger.
func NewLoggingAdvisor(logger *zap.Logger) *LoggingAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingAdvisor{logger: logger.Named("chat")}
}

func (a *LoggingAdvisor) BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error {
	a.start = time.Now()
	a.logger.Debug("llm request",
		zap.Int("messages", len(req.Messages)),
		zap.Int("functions", len(req.Tools)),
	)
	return nil
}

func (a *LoggingAdvisor) AfterLLMResponse(ctx context.Context, resp *llm.Response) error {
	fields := []zap.Field{
		zap.String("model", resp.Model),
		zap.String("finish_reason", resp.FinishReason),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Duration("elapsed", time.Since(a.start)),
	}
	if resp.Usage != nil {
		fields = append(fields, zap.Int("tokens", resp.Usage.TotalTokens))
	}
	a.logger.Debug("llm response", fields...)
	return nil
}

func (a *LoggingAdvisor) BeforeFunctionCall(ctx context.Context, name, arguments string) error {
	a.logger.Debug("function call", zap.String("function", name), zap.String("arguments", arguments))
	return nil
}

func (a *LoggingAdvisor) AfterFunctionCall(ctx context.Context, name, result string, callErr error) error {
	if callErr != nil {
		a.logger.Debug("function result", zap.String("function", name), zap.Error(callErr))
		return nil
	}
	a.logger.Debug("function result", zap.String("function", name), zap.Int("bytes", len(result)))
	return nil
}
