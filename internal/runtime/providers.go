package runtime

import (
	"fmt"
	"os"

	"agentd/pkg/config"
	"agentd/pkg/executor"
	"agentd/pkg/llm"
	"agentd/pkg/llm/anthropic"
	"agentd/pkg/llm/google"
	"agentd/pkg/llm/ollama"
	"agentd/pkg/llm/openai"
)

// newProviderClient constructs the raw client for one model entry.
// Middleware is applied by the caller.
func newProviderClient(model *config.Model) (llm.Client, error) {
	switch model.Provider {
	case "anthropic":
		return anthropic.New(model.APIKey(), model.Name), nil
	case "openai":
		return openai.New(model.APIKey(), model.Name), nil
	case "google":
		return google.New(model.APIKey(), model.Name), nil
	case "ollama":
		return ollama.New(os.Getenv("OLLAMA_HOST"), model.Name), nil
	default:
		return nil, fmt.Errorf("unknown provider %q for model %s", model.Provider, model.Name)
	}
}

// recordResult bumps the turns-finished metric on the way out.
func (r *Runtime) recordResult(result *executor.TurnResult, err error) (*executor.TurnResult, error) {
	if err != nil {
		return nil, err
	}
	r.metrics.TurnsFinished.WithLabelValues(string(result.StopReason)).Inc()
	return result, nil
}
