package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"agentd/pkg/llm/llmerrors"
	"agentd/pkg/logx"
)

// WithRetry returns a middleware applying error-taxonomy-aware retries with
// exponential backoff and jitter. Retries happen against the same provider;
// moving to the next provider is the failover layer's job.
func WithRetry() Middleware {
	logger := logx.NewLogger("llm-retry")

	return func(next Client) Client {
		complete := func(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
			var lastErr error

			for attempt := 0; ; attempt++ {
				resp, err := next.Complete(ctx, in)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				classified := llmerrors.Classify(err)
				cfg := classified.GetRetryConfig()
				if !classified.IsRetryable() || attempt >= cfg.MaxRetries {
					break
				}

				delay := backoffDelay(cfg, attempt)
				logger.Warn("model %s attempt %d failed (%s), retrying in %s: %v",
					next.ModelName(), attempt+1, classified.Type, delay, err)

				select {
				case <-ctx.Done():
					return CompletionResponse{}, llmerrors.Classify(ctx.Err())
				case <-time.After(delay):
				}
			}

			return CompletionResponse{}, fmt.Errorf("model %s exhausted retries: %w", next.ModelName(), lastErr)
		}

		stream := func(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
			// Streams are not resumable mid-flight; only connection errors retry.
			ch, err := next.Stream(ctx, in)
			if err == nil {
				return ch, nil
			}
			classified := llmerrors.Classify(err)
			if !classified.IsRetryable() {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, llmerrors.Classify(ctx.Err())
			case <-time.After(backoffDelay(classified.GetRetryConfig(), 0)):
			}
			return next.Stream(ctx, in)
		}

		return WrapClient(complete, stream, next.ModelName)
	}
}

// backoffDelay computes the delay before retry attempt (0-based) under cfg.
func backoffDelay(cfg llmerrors.RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && delay > max {
		delay = max
	}
	if cfg.Jitter && delay > 0 {
		// Up to 25% jitter to avoid thundering herd.
		delay += delay * 0.25 * rand.Float64() //nolint:gosec // Jitter needs no crypto rand
	}
	return time.Duration(delay)
}
