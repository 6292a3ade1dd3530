// Package planner turns a goal into a validated plan and regenerates plans
// when execution fails.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentd/pkg/config"
	"agentd/pkg/eventlog"
	"agentd/pkg/llm"
	"agentd/pkg/logx"
	"agentd/pkg/plan"
	"agentd/pkg/proto"
)

// Planner generates and regenerates plans through the model-call capability.
type Planner struct {
	client llm.Client
	limits config.Limits
	events *eventlog.Stream
	logger *logx.Logger
}

func New(client llm.Client, limits config.Limits, events *eventlog.Stream) *Planner {
	return &Planner{
		client: client,
		limits: limits,
		events: events,
		logger: logx.NewLogger("planner"),
	}
}

// Generate produces a plan for the goal, retrying on parse failures up to the
// configured budget. A reply that is itself a disguised tool call is
// converted into a single-step plan instead of counting as a failure.
// Exhausting the budget returns an error the caller must treat as the
// plan_parse_failed terminal stop.
func (p *Planner) Generate(ctx context.Context, goal string, toolDefs string) (*plan.Plan, error) {
	prompt := buildPlanPrompt(goal, toolDefs, p.limits.MaxPlanSteps)

	var lastErr error
	for attempt := 1; attempt <= p.limits.PlanRetryBudget; attempt++ {
		resp, err := p.client.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{
				llm.NewSystemMessage(planSystemPrompt),
				llm.NewUserMessage(prompt),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("planning model call failed: %w", err)
		}

		if converted := p.convertDisguisedToolCall(goal, &resp); converted != nil {
			return converted, nil
		}

		parsed, parseErr := plan.Parse(resp.Content, p.limits.MaxPlanSteps)
		if parseErr == nil {
			if parsed.Truncated {
				p.logger.Warn("plan truncated to %d steps", p.limits.MaxPlanSteps)
			}
			p.logger.Info("generated plan %q with %d steps (attempt %d)", parsed.Title, len(parsed.Steps), attempt)
			return parsed, nil
		}

		lastErr = parseErr
		p.logger.Warn("plan parse failed (attempt %d/%d): %v", attempt, p.limits.PlanRetryBudget, parseErr)
		// Show the model its own mistake on the next attempt.
		prompt = fmt.Sprintf("%s\n\nYour previous reply could not be parsed as a plan: %v\nReply with ONLY the JSON plan object.", prompt, parseErr)
	}

	return nil, fmt.Errorf("plan generation failed after %d attempts: %w", p.limits.PlanRetryBudget, lastErr)
}

// Replan produces a fresh plan after a step failure. It returns (nil, nil)
// once the replan budget is spent; the caller must stop the turn with
// max_replans_reached rather than continue.
func (p *Planner) Replan(ctx context.Context, goal string, failed *plan.Step, failure string, replansUsed int) (*plan.Plan, error) {
	if replansUsed >= p.limits.MaxReplans {
		p.logger.Info("replan budget exhausted (%d/%d)", replansUsed, p.limits.MaxReplans)
		return nil, nil
	}

	prompt := buildReplanPrompt(goal, failed, failure, p.limits.MaxPlanSteps)

	var lastErr error
	for attempt := 1; attempt <= p.limits.ParseRetryBudget; attempt++ {
		resp, err := p.client.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{
				llm.NewSystemMessage(planSystemPrompt),
				llm.NewUserMessage(prompt),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("replanning model call failed: %w", err)
		}

		parsed, parseErr := plan.Parse(resp.Content, p.limits.MaxPlanSteps)
		if parseErr == nil {
			p.logger.Info("replan %d produced %q with %d steps", replansUsed+1, parsed.Title, len(parsed.Steps))
			return parsed, nil
		}
		lastErr = parseErr
		prompt = fmt.Sprintf("%s\n\nYour previous reply could not be parsed as a plan: %v\nReply with ONLY the JSON plan object.", prompt, parseErr)
	}

	return nil, fmt.Errorf("replan generation failed after %d attempts: %w", p.limits.ParseRetryBudget, lastErr)
}

// disguisedCall matches the shape a model emits when it answers a planning
// prompt with a tool invocation instead of a plan.
type disguisedCall struct {
	Tool      string         `json:"tool"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Args      map[string]any `json:"args"`
}

// convertDisguisedToolCall recovers when the planning reply is a tool call:
// a native tool-call block or a JSON object with tool/arguments keys becomes
// a single-step plan. Best effort only; anything ambiguous returns nil and
// goes through normal plan parsing.
func (p *Planner) convertDisguisedToolCall(goal string, resp *llm.CompletionResponse) *plan.Plan {
	var toolName string

	if len(resp.ToolCalls) > 0 {
		toolName = resp.ToolCalls[0].Name
	} else {
		jsonText := plan.ExtractJSON(resp.Content)
		if jsonText == "" {
			return nil
		}
		var dc disguisedCall
		if err := json.Unmarshal([]byte(jsonText), &dc); err != nil {
			return nil
		}
		switch {
		case dc.Tool != "" && (dc.Arguments != nil || dc.Args != nil):
			toolName = dc.Tool
		case dc.Name != "" && (dc.Arguments != nil || dc.Args != nil):
			toolName = dc.Name
		default:
			return nil
		}
	}

	if p.events != nil {
		p.events.Emit(proto.EventPlanLeniency, map[string]any{
			"tool": toolName,
			"goal": goal,
		})
	}
	p.logger.Warn("planning reply was a disguised %s call; converting to single-step plan", toolName)
	return plan.SingleStep("direct action", goal, []string{toolName})
}

const planSystemPrompt = `You are a planning assistant for a coding agent. Break the goal into a short ordered plan.

Reply with ONLY a JSON object:
{
  "title": "short plan title",
  "steps": [
    {"id": "step-1", "description": "...", "dependencies": [], "tools_expected": ["read_file"]}
  ]
}

Rules:
- Step ids must be unique.
- dependencies lists ids of steps that must finish first.
- tools_expected is a hint, not a commitment.
- Prefer few, concrete steps over many vague ones.`

func buildPlanPrompt(goal, toolDefs string, maxSteps int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	if toolDefs != "" {
		fmt.Fprintf(&b, "Available tools:\n%s\n\n", toolDefs)
	}
	fmt.Fprintf(&b, "Produce at most %d steps.", maxSteps)
	return b.String()
}

func buildReplanPrompt(goal string, failed *plan.Step, failure string, maxSteps int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "The previous plan failed at step %q (%s).\nFailure: %s\n\n", failed.ID, failed.Description, failure)
	fmt.Fprintf(&b, "Produce a fresh plan of at most %d steps that routes around the failure. Do not repeat the failed approach unchanged.", maxSteps)
	return b.String()
}
