// Package anthropic implements the model-call contract against the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentd/pkg/llm"
	"agentd/pkg/llm/llmerrors"
)

const defaultMaxTokens = 8192

// Client wraps the Anthropic SDK behind llm.Client.
type Client struct {
	client sdk.Client
	model  sdk.Model
}

func New(apiKey, model string) *Client {
	return &Client{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  sdk.Model(model),
	}
}

// prepareMessages extracts system messages into the top-level system
// parameter and merges consecutive same-role messages so the result strictly
// alternates user/assistant, ending with user, as the API requires.
func prepareMessages(messages []llm.Message) (systemPrompt string, out []sdk.MessageParam, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var merged []llm.Message
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		role := llm.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		if n := len(merged); n > 0 && merged[n-1].Role == role {
			merged[n-1].Content += "\n\n" + msg.Content
			continue
		}
		merged = append(merged, llm.Message{Role: role, Content: msg.Content})
	}

	if len(merged) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if merged[0].Role != llm.RoleUser {
		merged = append([]llm.Message{{Role: llm.RoleUser, Content: "(continue)"}}, merged...)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		merged = append(merged, llm.Message{Role: llm.RoleUser, Content: "(continue)"})
	}

	out = make([]sdk.MessageParam, 0, len(merged))
	for _, msg := range merged {
		out = append(out, sdk.MessageParam{
			Role:    sdk.MessageParamRole(msg.Role),
			Content: []sdk.ContentBlockParamUnion{sdk.NewTextBlock(msg.Content)},
		})
	}
	return strings.Join(systemParts, "\n\n"), out, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, messages, err := prepareMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, err.Error())
	}

	maxTokens := int64(in.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if in.Temperature > 0 {
		params.Temperature = sdk.Float(float64(in.Temperature))
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	if len(in.Tools) > 0 {
		toolParams := make([]sdk.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			def := &in.Tools[i]
			props := make(map[string]any, len(def.InputSchema.Properties))
			for name, prop := range def.InputSchema.Properties {
				p := map[string]any{"type": prop.Type}
				if prop.Description != "" {
					p["description"] = prop.Description
				}
				if len(prop.Enum) > 0 {
					p["enum"] = prop.Enum
				}
				props[name] = p
			}
			schema := sdk.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   def.InputSchema.Required,
			}
			toolParams = append(toolParams, sdk.ToolUnionParamOfTool(schema, def.Name))
		}
		params.Tools = toolParams

		if in.ToolChoice == "any" {
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
		} else {
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAuto: &sdk.ToolChoiceAutoParam{}}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Anthropic API")
	}

	var content string
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(tu.Input, &args); err != nil {
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "failed to parse tool input")
			}
			toolCalls = append(toolCalls, llm.ToolCall{ID: tu.ID, Name: tu.Name, Parameters: args})
		}
	}

	return llm.CompletionResponse{
		Content:    content,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// Stream implements llm.Client as a single-shot wrapper.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.SingleShotStream(ctx, c, in)
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return string(c.model)
}

func classifyError(err error) *llmerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request timeout")
	}
	return llmerrors.Classify(err)
}
