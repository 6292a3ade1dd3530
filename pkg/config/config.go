// Package config provides YAML configuration loading with defaults,
// validation, and environment-variable API key resolution.
package config

import (
	"fmt"
	"os"
	"time"
)

// Model describes a single LLM model available to the runtime.
type Model struct {
	Name             string  `yaml:"name"`
	Provider         string  `yaml:"provider"` // anthropic | openai | ollama | google
	APIKeyEnv        string  `yaml:"api_key_env"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
	MaxReplyTokens   int     `yaml:"max_reply_tokens"`
	Temperature      float32 `yaml:"temperature"`
	// Cost per million tokens, used by the usage accounting middleware.
	PromptCostPerMTok     float64 `yaml:"prompt_cost_per_mtok"`
	CompletionCostPerMTok float64 `yaml:"completion_cost_per_mtok"`
}

// APIKey resolves the model's API key from the configured environment
// variable. Returns empty string for providers that need no key (ollama).
func (m *Model) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// Limits holds the iteration ceilings that bound a turn. Exceeding any
// ceiling is a defined terminal stop, never an unbounded loop.
type Limits struct {
	MaxStepToolCalls  int `yaml:"max_step_tool_calls"`
	MaxReplans        int `yaml:"max_replans"`
	MaxReactIters     int `yaml:"max_react_iters"`
	MaxPlanSteps      int `yaml:"max_plan_steps"`
	PlanRetryBudget   int `yaml:"plan_retry_budget"`
	ParseRetryBudget  int `yaml:"parse_retry_budget"`
	RunawayBraceLimit int `yaml:"runaway_brace_limit"`
}

// Context holds context-window management settings.
type Context struct {
	// CompactAtFraction of the model window at which compaction triggers.
	CompactAtFraction float64 `yaml:"compact_at_fraction"`
	// CompletionReserve tokens held back for the model reply.
	CompletionReserve int `yaml:"completion_reserve"`
	// KeepRecentTurns kept verbatim during compaction.
	KeepRecentTurns int `yaml:"keep_recent_turns"`
}

// Policy holds tool-policy settings: allow/deny lists and command safety.
type Policy struct {
	AllowTools     []string `yaml:"allow_tools"`
	DenyTools      []string `yaml:"deny_tools"`
	DenyCommands   []string `yaml:"deny_commands"`
	AutoConfirm    bool     `yaml:"auto_confirm"`
	RequireConfirm bool     `yaml:"require_confirm"`
}

// Verify holds verifier settings.
type Verify struct {
	Command    string        `yaml:"command"`
	MaxErrors  int           `yaml:"max_errors"`
	Timeout    time.Duration `yaml:"timeout"`
	Extensions []string      `yaml:"extensions"`
}

// Index holds background indexing worker settings.
type Index struct {
	Enabled     bool     `yaml:"enabled"`
	Workers     int      `yaml:"workers"`
	MaxFileKB   int      `yaml:"max_file_kb"`
	Extensions  []string `yaml:"extensions"`
	IgnoreDirs  []string `yaml:"ignore_dirs"`
	StorePath   string   `yaml:"store_path"`
	Collection  string   `yaml:"collection"`
}

// IntentRule maps keyword patterns to a category with routing metadata.
type IntentRule struct {
	Category     string   `yaml:"category"`
	Keywords     []string `yaml:"keywords"`
	Risk         string   `yaml:"risk"`
	AllowedTools []string `yaml:"allowed_tools"`
	NeedsPlan    bool     `yaml:"needs_plan"`
}

// Config is the root configuration for the runtime.
type Config struct {
	Workspace      string        `yaml:"workspace"`
	StateDir       string        `yaml:"state_dir"`
	Models         []Model       `yaml:"models"`
	ProviderChain  []string      `yaml:"provider_chain"` // model names in failover order
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Limits         Limits        `yaml:"limits"`
	Context        Context       `yaml:"context"`
	Policy         Policy        `yaml:"policy"`
	Verify         Verify        `yaml:"verify"`
	Index          Index         `yaml:"index"`
	IntentRules    []IntentRule  `yaml:"intent_rules"`
	PrometheusURL  string        `yaml:"prometheus_url"`
}

// ModelByName returns the model entry with the given name.
func (c *Config) ModelByName(name string) (*Model, error) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("model %q not found in config", name)
}

// Validate checks invariants the rest of the runtime relies on.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace must be set")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	if len(c.ProviderChain) == 0 {
		return fmt.Errorf("provider_chain must list at least one model")
	}
	for _, name := range c.ProviderChain {
		if _, err := c.ModelByName(name); err != nil {
			return fmt.Errorf("provider_chain: %w", err)
		}
	}
	for i := range c.Models {
		m := &c.Models[i]
		if m.MaxContextTokens <= 0 {
			return fmt.Errorf("model %q: max_context_tokens must be positive", m.Name)
		}
		if m.MaxReplyTokens <= 0 {
			return fmt.Errorf("model %q: max_reply_tokens must be positive", m.Name)
		}
		if m.MaxReplyTokens >= m.MaxContextTokens {
			return fmt.Errorf("model %q: max_reply_tokens must be below max_context_tokens", m.Name)
		}
	}
	if c.Limits.MaxStepToolCalls <= 0 {
		return fmt.Errorf("limits.max_step_tool_calls must be positive")
	}
	if c.Limits.MaxReplans < 0 {
		return fmt.Errorf("limits.max_replans must not be negative")
	}
	if c.Context.CompactAtFraction <= 0 || c.Context.CompactAtFraction > 1 {
		return fmt.Errorf("context.compact_at_fraction must be in (0, 1]")
	}
	return nil
}
