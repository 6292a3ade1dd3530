package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TurnUsage is an aggregated usage rollup for a finished turn, queried from
// an external Prometheus server when one is configured.
type TurnUsage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// QueryService queries aggregated runtime metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// TotalUsage sums token and cost counters across all models.
func (s *QueryService) TotalUsage(ctx context.Context) (*TurnUsage, error) {
	usage := &TurnUsage{}

	prompt, err := s.scalarQuery(ctx, `sum(agentd_prompt_tokens_total)`)
	if err != nil {
		return nil, err
	}
	completion, err := s.scalarQuery(ctx, `sum(agentd_completion_tokens_total)`)
	if err != nil {
		return nil, err
	}
	cost, err := s.scalarQuery(ctx, `sum(agentd_cost_usd_total)`)
	if err != nil {
		return nil, err
	}

	usage.PromptTokens = int64(prompt)
	usage.CompletionTokens = int64(completion)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	usage.TotalCostUSD = cost
	return usage, nil
}

func (s *QueryService) scalarQuery(ctx context.Context, query string) (float64, error) {
	result, warnings, err := s.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("prometheus query %q failed: %w", query, err)
	}
	if len(warnings) > 0 {
		// Warnings are non-fatal; the value is still usable.
		_ = warnings
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return 0, nil
	}
	return float64(vector[0].Value), nil
}
