package llm

import (
	"context"
	"fmt"
	"maps"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls backoff at the provider boundary. RetryableErrors
// lists substrings that make an error retryable when it is not an
// *LLMError.
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" koanf:"max_retries"`
	InitialDelay    time.Duration `json:"initial_delay" koanf:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay" koanf:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" koanf:"backoff_factor"`
	RetryableErrors []string      `json:"retryable_errors" koanf:"retryable_errors"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2,
		RetryableErrors: []string{"rate_limit_exceeded", "server_error", "timeout", "connection_error"},
	}
}

// RetryStats are cumulative counters since creation or the last ResetStats.
type RetryStats struct {
	TotalAttempts int            `json:"total_attempts"`
	Successful    int            `json:"successful"`
	Failed        int            `json:"failed"`
	TotalDelay    time.Duration  `json:"total_delay"`
	LastError     string         `json:"last_error,omitempty"`
	ErrorTypes    map[string]int `json:"error_types,omitempty"`
}

// Retrier runs provider calls with jittered exponential backoff. One
// Retrier is shared by all calls of a client.
type Retrier struct {
	cfg    RetryConfig
	logger *zap.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	stats RetryStats
}

type RetrierOption func(*Retrier)

// WithRetryLogger logs each retry at debug level.
func WithRetryLogger(logger *zap.Logger) RetrierOption {
	return func(r *Retrier) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		cfg:    cfg,
		logger: zap.NewNop(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:  RetryStats{ErrorTypes: map[string]int{}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetryOperation is one attempt; attempt counts from 0.
type RetryOperation[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs op until it succeeds, fails with a non-retryable error, the
// retries are used up or ctx ends. Exhaustion wraps the last error.
func Execute[T any](r *Retrier, ctx context.Context, op RetryOperation[T]) (T, error) {
	var zero T
	start := time.Now()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			r.finish(start, err)
			return zero, err
		}

		out, err := op(ctx, attempt)
		r.attempted(err)
		if err == nil {
			r.finish(start, nil)
			return out, nil
		}

		if attempt >= r.cfg.MaxRetries {
			r.finish(start, err)
			if attempt == 0 {
				return zero, err
			}
			return zero, fmt.Errorf("operation failed after %d attempts: %w", attempt+1, err)
		}
		if !r.retryable(err) {
			r.finish(start, err)
			return zero, err
		}

		wait := r.calculateDelay(attempt, err)
		r.logger.Debug("retrying provider call",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.finish(start, ctx.Err())
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// ExecuteSimple is Execute for operations without a result.
func (r *Retrier) ExecuteSimple(ctx context.Context, op func(context.Context, int) error) error {
	_, err := Execute(r, ctx, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return err
}

func (r *Retrier) retryable(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		return isRetryableError(llmErr.Type)
	}
	msg := strings.ToLower(err.Error())
	for _, s := range r.cfg.RetryableErrors {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// calculateDelay honors a provider Retry-After, otherwise backs off by
// BackoffFactor per attempt with 25% jitter, clamped to
// [InitialDelay, MaxDelay].
func (r *Retrier) calculateDelay(attempt int, err error) time.Duration {
	if llmErr, ok := IsLLMError(err); ok && llmErr.RetryAfter > 0 {
		return time.Duration(llmErr.RetryAfter) * time.Second
	}

	r.mu.Lock()
	spread := r.rng.Float64()*2 - 1
	r.mu.Unlock()

	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt))
	d *= 1 + 0.25*spread
	d = math.Min(d, float64(r.cfg.MaxDelay))
	d = math.Max(d, float64(r.cfg.InitialDelay))
	return time.Duration(d)
}

func (r *Retrier) attempted(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalAttempts++
	if err == nil {
		return
	}
	r.stats.LastError = err.Error()
	kind := "unknown"
	if llmErr, ok := IsLLMError(err); ok {
		kind = string(llmErr.Type)
	}
	r.stats.ErrorTypes[kind]++
}

func (r *Retrier) finish(start time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalDelay += time.Since(start)
	if err == nil {
		r.stats.Successful++
		return
	}
	r.stats.Failed++
	r.stats.LastError = err.Error()
}

// Stats returns a copy of the counters.
func (r *Retrier) Stats() RetryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.ErrorTypes = maps.Clone(r.stats.ErrorTypes)
	return s
}

func (r *Retrier) ResetStats() {
	r.mu.Lock()
	r.stats = RetryStats{ErrorTypes: map[string]int{}}
	r.mu.Unlock()
}
