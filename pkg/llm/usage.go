package llm

import (
	"context"
	"time"

	"agentd/pkg/config"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
)

// UsageRecorder persists per-call usage rows; pkg/persistence implements it.
type UsageRecorder interface {
	RecordUsage(traceID, model string, promptTokens, completionTokens int64, costUSD float64) error
}

// WithUsageAccounting returns a middleware recording token counts, estimated
// cost, and latency for every completion against the given trace.
func WithUsageAccounting(traceID string, model *config.Model, m *metrics.Metrics, rec UsageRecorder) Middleware {
	logger := logx.NewLogger("llm-usage")

	return func(next Client) Client {
		complete := func(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
			start := time.Now()
			resp, err := next.Complete(ctx, in)
			elapsed := time.Since(start)

			if m != nil {
				m.ModelLatency.WithLabelValues(model.Name).Observe(elapsed.Seconds())
			}
			if err != nil {
				return resp, err
			}

			cost := float64(resp.Usage.PromptTokens)/1e6*model.PromptCostPerMTok +
				float64(resp.Usage.CompletionTokens)/1e6*model.CompletionCostPerMTok

			if m != nil {
				m.PromptTokens.WithLabelValues(model.Name).Add(float64(resp.Usage.PromptTokens))
				m.CompletionTokens.WithLabelValues(model.Name).Add(float64(resp.Usage.CompletionTokens))
				m.CostUSD.WithLabelValues(model.Name).Add(cost)
			}
			if rec != nil {
				if recErr := rec.RecordUsage(traceID, model.Name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost); recErr != nil {
					logger.Warn("failed to record usage: %v", recErr)
				}
			}
			return resp, nil
		}

		return WrapClient(complete, next.Stream, next.ModelName)
	}
}
