package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default ceilings. These bound every loop in the runtime; config may lower
// or raise them but never remove them.
const (
	DefaultMaxStepToolCalls  = 12
	DefaultMaxReplans        = 2
	DefaultMaxReactIters     = 25
	DefaultMaxPlanSteps      = 15
	DefaultPlanRetryBudget   = 3
	DefaultParseRetryBudget  = 3
	DefaultRunawayBraceLimit = 64
)

// DefaultConfig returns a configuration with workable defaults for a local
// workspace. Callers still need to set Workspace before Validate.
func DefaultConfig() *Config {
	return &Config{
		StateDir:       ".agentd",
		RequestTimeout: 120 * time.Second,
		Models: []Model{
			{
				Name:                  "claude-sonnet-4-5",
				Provider:              "anthropic",
				APIKeyEnv:             "ANTHROPIC_API_KEY",
				MaxContextTokens:      200000,
				MaxReplyTokens:        8192,
				Temperature:           0.2,
				PromptCostPerMTok:     3.0,
				CompletionCostPerMTok: 15.0,
			},
			{
				Name:                  "gpt-4o",
				Provider:              "openai",
				APIKeyEnv:             "OPENAI_API_KEY",
				MaxContextTokens:      128000,
				MaxReplyTokens:        8192,
				Temperature:           0.2,
				PromptCostPerMTok:     2.5,
				CompletionCostPerMTok: 10.0,
			},
		},
		ProviderChain: []string{"claude-sonnet-4-5", "gpt-4o"},
		Limits: Limits{
			MaxStepToolCalls:  DefaultMaxStepToolCalls,
			MaxReplans:        DefaultMaxReplans,
			MaxReactIters:     DefaultMaxReactIters,
			MaxPlanSteps:      DefaultMaxPlanSteps,
			PlanRetryBudget:   DefaultPlanRetryBudget,
			ParseRetryBudget:  DefaultParseRetryBudget,
			RunawayBraceLimit: DefaultRunawayBraceLimit,
		},
		Context: Context{
			CompactAtFraction: 0.7,
			CompletionReserve: 8192,
			KeepRecentTurns:   3,
		},
		Policy: Policy{
			RequireConfirm: true,
			DenyCommands: []string{
				`rm\s+-rf\s+/`,
				`:\(\)\s*\{.*\};\s*:`,
				`mkfs`,
				`dd\s+if=.*of=/dev/`,
				`>\s*/dev/sd`,
				`chmod\s+-R\s+777\s+/`,
				`curl[^|]*\|\s*(ba)?sh`,
				`wget[^|]*\|\s*(ba)?sh`,
				`git\s+push\s+.*--force`,
				`shutdown|reboot|halt`,
			},
		},
		Verify: Verify{
			Command:   "go vet ./...",
			MaxErrors: 10,
			Timeout:   60 * time.Second,
		},
		Index: Index{
			Enabled:    false,
			Workers:    4,
			MaxFileKB:  256,
			Extensions: []string{".go", ".md", ".py", ".ts", ".js"},
			IgnoreDirs: []string{".git", "node_modules", "vendor", ".agentd"},
			Collection: "workspace",
		},
	}
}

// Load reads the YAML config at path, layered over defaults, and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the config at path if it exists, otherwise returns
// defaults with the given workspace.
func LoadOrDefault(path, workspace string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	cfg := DefaultConfig()
	cfg.Workspace = workspace
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return cfg, nil
}
