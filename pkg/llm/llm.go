// Package llm defines the model-call capability contract consumed by the
// planner and executor, plus the middleware chain, retry, usage accounting,
// and provider failover that wrap the concrete provider clients.
package llm

import (
	"context"

	"agentd/pkg/tools"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem provides instructions or context.
	RoleSystem Role = "system"
	// RoleUser is the human (or tool-result feedback rendered as user input).
	RoleUser Role = "user"
	// RoleAssistant is the model.
	RoleAssistant Role = "assistant"
)

// Message is a single message in a completion request.
type Message struct {
	Role    Role
	Content string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Parameters map[string]any `json:"parameters"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	Messages    []Message
	Tools       []tools.Definition
	ToolChoice  string // "", "auto", or "any"
	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the result of a completion request.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// Client is the model-call capability. Implementations must return
// llmerrors-classified errors so the retry and failover layers can
// distinguish timeouts from generic failures.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the model this client targets.
	ModelName() string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SingleShotStream adapts Complete into the streaming contract for providers
// without a native stream implementation.
func SingleShotStream(ctx context.Context, c Client, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- StreamChunk{Error: err}
			return
		}
		ch <- StreamChunk{Content: resp.Content}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}
