package executor

import (
	"encoding/json"
	"strings"

	"agentd/pkg/llm"
	"agentd/pkg/plan"
	"agentd/pkg/tools"
)

// DecisionKind tags the decoded form of one model reply.
type DecisionKind int

const (
	// DecisionToolCall is a single tool invocation to dispatch.
	DecisionToolCall DecisionKind = iota
	// DecisionStepDone signals the current step is complete.
	DecisionStepDone
	// DecisionReplan requests a fresh plan.
	DecisionReplan
	// DecisionFinalAnswer delivers the user-facing answer and ends the turn.
	DecisionFinalAnswer
	// DecisionText is a plain text reply with no recognizable structure.
	DecisionText
	// DecisionUnparseable means the reply looked structured but could not be
	// decoded; the caller appends a corrective instruction and retries.
	DecisionUnparseable
	// DecisionRunaway means the reply was degenerate repeated punctuation
	// and has been discarded.
	DecisionRunaway
)

// Decision is the tagged union the state machine branches on. Exactly one of
// the payload fields is meaningful for a given Kind.
type Decision struct {
	Kind    DecisionKind
	Tool    string
	Args    map[string]any
	Summary string
	Reason  string
	Answer  string
	Text    string
}

// rawDecision covers the JSON shapes models emit for tool calls when native
// tool calling is unavailable.
type rawDecision struct {
	Tool      string         `json:"tool"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Args      map[string]any `json:"args"`
	Summary   string         `json:"summary"`
	Reason    string         `json:"reason"`
	Answer    string         `json:"answer"`
}

// DecodeDecision classifies one completion into exactly one decision.
// Native tool-call blocks win over content. Signal tools decode into their
// dedicated kinds so dispatch never sees them. braceLimit guards against
// runaway degenerate output.
func DecodeDecision(resp *llm.CompletionResponse, braceLimit int) *Decision {
	if runawayOutput(resp.Content, braceLimit) {
		return &Decision{Kind: DecisionRunaway}
	}

	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		return decisionFromCall(tc.Name, tc.Parameters)
	}

	jsonText := plan.ExtractJSON(resp.Content)
	if jsonText == "" {
		return &Decision{Kind: DecisionText, Text: resp.Content}
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return &Decision{Kind: DecisionUnparseable, Text: resp.Content}
	}

	name := raw.Tool
	if name == "" {
		name = raw.Name
	}
	args := raw.Arguments
	if args == nil {
		args = raw.Args
	}

	if name == "" {
		// JSON without a tool name: signal fields may still be present.
		switch {
		case raw.Summary != "":
			return &Decision{Kind: DecisionStepDone, Summary: raw.Summary}
		case raw.Answer != "":
			return &Decision{Kind: DecisionFinalAnswer, Answer: raw.Answer}
		default:
			return &Decision{Kind: DecisionUnparseable, Text: resp.Content}
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return decisionFromCall(name, args)
}

func decisionFromCall(name string, args map[string]any) *Decision {
	switch name {
	case tools.ToolStepDone:
		return &Decision{Kind: DecisionStepDone, Summary: stringField(args, "summary")}
	case tools.ToolReplan:
		return &Decision{Kind: DecisionReplan, Reason: stringField(args, "reason")}
	case tools.ToolFinalAnswer:
		return &Decision{Kind: DecisionFinalAnswer, Answer: stringField(args, "answer")}
	default:
		return &Decision{Kind: DecisionToolCall, Tool: name, Args: args}
	}
}

func stringField(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// runawayOutput detects degenerate generation: a run of the same bracket or
// brace character longer than the limit. Such output is discarded instead of
// being fed back into context.
func runawayOutput(content string, limit int) bool {
	if limit <= 0 {
		return false
	}
	run := 0
	var prev rune
	for _, r := range content {
		if r == prev && strings.ContainsRune("{}[]()", r) {
			run++
			if run >= limit {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}
