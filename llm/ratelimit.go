package llm

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to an embedding provider with a token
// bucket. Each text costs one token, so a batch waits for len(texts) tokens.
type RateLimitedEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows perSecond texts per second with the given
// burst. Batches larger than burst are admitted in burst-sized slices.
func NewRateLimitedEmbedder(next Embedder, perSecond float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, waitError(ctx, err)
	}
	return r.next.Embed(ctx, text)
}

func (r *RateLimitedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	burst := r.limiter.Burst()
	for remaining := len(texts); remaining > 0; remaining -= burst {
		n := remaining
		if n > burst {
			n = burst
		}
		if err := r.limiter.WaitN(ctx, n); err != nil {
			return nil, waitError(ctx, err)
		}
	}
	return r.next.EmbedMany(ctx, texts)
}

// waitError classifies a failed limiter wait. The limiter refuses early,
// without wrapping context.DeadlineExceeded, when the reservation would
// outlast the caller's deadline.
func waitError(ctx context.Context, err error) error {
	if _, ok := ctx.Deadline(); ok && !errors.Is(ctx.Err(), context.Canceled) {
		return NewLLMErrorWithCause(providerRateLimiter, ErrorTypeTimeout, "rate limit wait exceeds deadline", err)
	}
	return AsCollaboratorError(providerRateLimiter, err)
}

const providerRateLimiter Provider = "ratelimit"

var _ Embedder = (*RateLimitedEmbedder)(nil)
