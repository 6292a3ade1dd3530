package executor

import (
	"context"
	"errors"
	"fmt"

	"agentd/pkg/llm"
	"agentd/pkg/proto"
)

// RunReact drives a planless turn: a single-level tool-call/result loop
// bounded by a hard iteration ceiling. Used when the intent classifier
// decides planning is unnecessary.
func (e *Executor) RunReact(ctx context.Context, goal string) (*TurnResult, error) {
	e.goal = goal
	if err := e.Transition(proto.StateExecuting); err != nil {
		return nil, err
	}

	e.ctxmgr.AppendUser(goal + "\nAnswer directly, or work with tool calls and finish with final_answer.")

	for iter := 0; iter < e.limits.MaxReactIters; iter++ {
		if ctx.Err() != nil {
			return e.finish(&TurnResult{StopReason: proto.StopCancelled}, nil)
		}

		decision, err := e.decide(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return e.finish(&TurnResult{StopReason: proto.StopCancelled}, nil)
			}
			if errors.Is(err, llm.ErrChainExhausted) {
				return e.finish(&TurnResult{StopReason: proto.StopProviderExhausted}, nil)
			}
			return nil, fmt.Errorf("model decision failed: %w", err)
		}

		switch decision.Kind {
		case DecisionToolCall:
			e.execute(ctx, decision)

		case DecisionFinalAnswer:
			return e.finish(&TurnResult{StopReason: proto.StopDone, FinalAnswer: decision.Answer}, nil)

		case DecisionText:
			// Plain prose with no tool activity is the answer.
			return e.finish(&TurnResult{StopReason: proto.StopDone, FinalAnswer: decision.Text}, nil)

		case DecisionStepDone:
			// No plan steps exist here; treat the summary as the answer.
			return e.finish(&TurnResult{StopReason: proto.StopDone, FinalAnswer: decision.Summary}, nil)

		case DecisionReplan:
			e.ctxmgr.AppendUser("There is no plan to replace in this mode. Continue with tool calls or give a final_answer.")

		case DecisionUnparseable:
			e.ctxmgr.AppendAssistant(decision.Text)
			e.ctxmgr.AppendUser("Your reply could not be parsed. Reply with one tool call or a final_answer.")

		case DecisionRunaway:
			e.ctxmgr.AppendUser("Your previous output was discarded as degenerate repeated punctuation. Reply with one well-formed tool call or a final_answer.")
		}
	}

	e.logger.Warn("react loop hit iteration ceiling (%d)", e.limits.MaxReactIters)
	return e.finish(&TurnResult{StopReason: proto.StopIterationLimit}, nil)
}
