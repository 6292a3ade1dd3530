// Package metrics provides Prometheus instrumentation for the runtime and a
// query service for aggregating per-turn usage from a Prometheus server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus collectors. One instance is created
// per process and injected where needed.
type Metrics struct {
	PromptTokens     *prometheus.CounterVec
	CompletionTokens *prometheus.CounterVec
	CostUSD          *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ToolErrors       *prometheus.CounterVec
	Failovers        *prometheus.CounterVec
	Compactions      prometheus.Counter
	TurnsFinished    *prometheus.CounterVec
	ModelLatency     *prometheus.HistogramVec
}

// New creates the collector set and registers it on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PromptTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_prompt_tokens_total",
			Help: "Prompt tokens consumed, by model.",
		}, []string{"model"}),
		CompletionTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_completion_tokens_total",
			Help: "Completion tokens consumed, by model.",
		}, []string{"model"}),
		CostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_cost_usd_total",
			Help: "Estimated spend in USD, by model.",
		}, []string{"model"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_tool_calls_total",
			Help: "Tool dispatches, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_tool_errors_total",
			Help: "Tool errors, by tool name and error code.",
		}, []string{"tool", "code"}),
		Failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_provider_failovers_total",
			Help: "Failovers from one provider to the next, by source model.",
		}, []string{"from_model"}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentd_context_compactions_total",
			Help: "Context compaction passes performed.",
		}),
		TurnsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_turns_finished_total",
			Help: "Finished turns, by stop reason.",
		}, []string{"stop_reason"}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentd_model_request_seconds",
			Help:    "Latency of model completions, by model.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"model"}),
	}

	reg.MustRegister(
		m.PromptTokens,
		m.CompletionTokens,
		m.CostUSD,
		m.ToolCalls,
		m.ToolErrors,
		m.Failovers,
		m.Compactions,
		m.TurnsFinished,
		m.ModelLatency,
	)
	return m
}

// NewForTesting creates an unregistered collector set for tests.
func NewForTesting() *Metrics {
	return New(prometheus.NewRegistry())
}
