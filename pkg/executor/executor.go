// Package executor drives a plan to completion or a terminal stop. It owns
// the turn state machine: per step it requests one model decision, decodes
// it, dispatches tools, feeds results back into context, and enforces every
// iteration ceiling.
package executor

import (
	"context"
	"errors"
	"fmt"

	"agentd/pkg/config"
	"agentd/pkg/contextmgr"
	"agentd/pkg/eventlog"
	"agentd/pkg/llm"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/persistence"
	"agentd/pkg/plan"
	"agentd/pkg/planner"
	"agentd/pkg/proto"
	"agentd/pkg/tools"
	"agentd/pkg/verify"
)

// TurnResult is the reason-coded outcome of one turn.
type TurnResult struct {
	StopReason  proto.StopReason
	FinalAnswer string
	State       proto.AgentState
	Replans     int
}

// Executor runs one turn at a time. The conversation buffer is mutated only
// here, through the context manager; tool handlers are the only thing that
// touches the workspace.
type Executor struct {
	client     llm.Client
	ctxmgr     *contextmgr.Manager
	dispatcher *tools.Dispatcher
	planner    *planner.Planner
	verifier   *verify.Verifier
	touched    *tools.TouchedSet
	events     *eventlog.Stream
	store      *persistence.Store
	metrics    *metrics.Metrics
	limits     config.Limits
	toolDefs   []tools.Definition
	logger     *logx.Logger

	state         proto.AgentState
	traceID       string
	goal          string
	replans       int
	pendingReplan *plan.Plan
}

// Deps bundles the executor's collaborators.
type Deps struct {
	Client     llm.Client
	ContextMgr *contextmgr.Manager
	Dispatcher *tools.Dispatcher
	Planner    *planner.Planner
	Verifier   *verify.Verifier
	Touched    *tools.TouchedSet
	Events     *eventlog.Stream
	Store      *persistence.Store
	Metrics    *metrics.Metrics
	Limits     config.Limits
	ToolDefs   []tools.Definition
}

func New(d Deps) *Executor {
	return &Executor{
		client:     d.Client,
		ctxmgr:     d.ContextMgr,
		dispatcher: d.Dispatcher,
		planner:    d.Planner,
		verifier:   d.Verifier,
		touched:    d.Touched,
		events:     d.Events,
		store:      d.Store,
		metrics:    d.Metrics,
		limits:     d.Limits,
		toolDefs:   d.ToolDefs,
		logger:     logx.NewLogger("executor"),
		state:      proto.StateIntake,
		traceID:    d.Events.TraceID(),
	}
}

// State returns the current turn state.
func (e *Executor) State() proto.AgentState {
	return e.state
}

// Abort ends the turn with the given stop reason without running any steps.
// Used by the caller when planning or the approval gate terminates the turn.
func (e *Executor) Abort(goal string, reason proto.StopReason) *TurnResult {
	e.goal = goal
	result, _ := e.finish(&TurnResult{StopReason: reason, Replans: e.replans}, nil)
	return result
}

// Transition moves the state machine, persisting the new state and emitting
// the audit event. Invalid transitions are programming errors and fail loud.
func (e *Executor) Transition(to proto.AgentState) error {
	if err := proto.ValidateTransition(e.state, to); err != nil {
		return err
	}
	from := e.state
	e.state = to
	e.events.Emit(proto.EventStateChange, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	if e.store != nil {
		if err := e.store.SaveTurn(&persistence.TurnRecord{
			TraceID: e.traceID,
			State:   string(to),
			Goal:    e.goal,
		}); err != nil {
			e.logger.Warn("failed to persist turn state: %v", err)
		}
	}
	return nil
}

// RunPlan drives a plan through the outer dependency-gated loop. Steps run
// in plan order; a step with unmet dependencies is marked blocked and
// revisited on the next full pass. When every incomplete step is blocked the
// turn stops with dependency_deadlock within one extra pass.
func (e *Executor) RunPlan(ctx context.Context, goal string, p *plan.Plan) (*TurnResult, error) {
	e.goal = goal
	if err := e.Transition(proto.StateExecuting); err != nil {
		return nil, err
	}

	current := p
	for {
		progressed, result, err := e.runPass(ctx, goal, current)
		if err != nil || result != nil {
			return e.finish(result, err)
		}
		if np := e.pendingReplan; np != nil {
			// A replan discards the old plan entirely.
			current = np
			e.pendingReplan = nil
			continue
		}
		if len(current.Incomplete()) == 0 {
			break
		}
		if !progressed {
			// A pass that ran nothing leaves every incomplete step blocked.
			e.logger.Warn("dependency deadlock: %d steps blocked", len(current.Incomplete()))
			return e.finish(&TurnResult{StopReason: proto.StopDependencyDeadlock, Replans: e.replans}, nil)
		}
		// Blocked steps become eligible again on the next pass.
		for _, s := range current.Incomplete() {
			if s.Status == plan.StatusBlocked {
				_ = s.SetStatus(plan.StatusPending)
			}
		}
	}

	return e.completeTurn(ctx)
}

// runPass walks the plan once in order. It reports whether any step made
// progress this pass; a non-nil result or error ends the turn.
func (e *Executor) runPass(ctx context.Context, goal string, p *plan.Plan) (bool, *TurnResult, error) {
	progressed := false
	for _, step := range p.Steps {
		if step.Status != plan.StatusPending {
			continue
		}
		if ctx.Err() != nil {
			return progressed, &TurnResult{StopReason: proto.StopCancelled}, nil
		}

		if !p.DependenciesMet(step) {
			_ = step.SetStatus(plan.StatusBlocked)
			e.logger.Debug("step %s blocked on dependencies", step.ID)
			continue
		}

		if err := step.SetStatus(plan.StatusInProgress); err != nil {
			return progressed, nil, err
		}
		e.events.Emit(proto.EventStepStarted, map[string]any{"step": step.ID})

		result, newPlan, err := e.runStep(ctx, goal, p, step)
		if err != nil {
			return progressed, nil, err
		}
		if result != nil {
			return progressed, result, nil
		}
		progressed = true
		if newPlan != nil {
			e.pendingReplan = newPlan
			return true, nil, nil
		}
	}
	return progressed, nil, nil
}

// runStep drives the inner loop for one step, bounded by MaxStepToolCalls.
// It returns a non-nil TurnResult to end the turn, a non-nil plan to replace
// the current plan, or (nil, nil, nil) when the step finished.
func (e *Executor) runStep(ctx context.Context, goal string, p *plan.Plan, step *plan.Step) (*TurnResult, *plan.Plan, error) {
	e.ctxmgr.AppendUser(stepPrompt(step))

	for iter := 0; iter < e.limits.MaxStepToolCalls; iter++ {
		decision, err := e.decide(ctx)
		if err != nil {
			return e.modelFailure(step, err)
		}

		switch decision.Kind {
		case DecisionToolCall:
			e.execute(ctx, decision)

		case DecisionStepDone:
			_ = step.SetStatus(plan.StatusDone)
			e.ctxmgr.AppendAssistant(fmt.Sprintf("Step %s done: %s", step.ID, decision.Summary))
			e.events.Emit(proto.EventStepFinished, map[string]any{
				"step":    step.ID,
				"status":  string(plan.StatusDone),
				"summary": decision.Summary,
			})
			return nil, nil, nil

		case DecisionReplan:
			return e.failStep(ctx, goal, step, decision.Reason)

		case DecisionFinalAnswer:
			// The model skipped step bookkeeping; accept the answer.
			_ = step.SetStatus(plan.StatusDone)
			return &TurnResult{StopReason: proto.StopDone, FinalAnswer: decision.Answer, Replans: e.replans}, nil, nil

		case DecisionText:
			// Plain prose mid-step reads as progress narration.
			e.ctxmgr.AppendAssistant(decision.Text)
			e.ctxmgr.AppendUser("Continue with the step. Call a tool, or call step_done when the step is complete.")

		case DecisionUnparseable:
			e.ctxmgr.AppendAssistant(decision.Text)
			e.ctxmgr.AppendUser("Your reply could not be parsed. Reply with exactly one tool call, or call step_done / replan.")

		case DecisionRunaway:
			e.ctxmgr.AppendUser("Your previous output was discarded as degenerate repeated punctuation. Reply with exactly one well-formed tool call.")
		}
	}

	return e.failStep(ctx, goal, step, fmt.Sprintf("step exceeded %d tool-call iterations", e.limits.MaxStepToolCalls))
}

// failStep marks the step failed and replans. A nil replan from an exhausted
// budget terminates the turn with max_replans_reached.
func (e *Executor) failStep(ctx context.Context, goal string, step *plan.Step, reason string) (*TurnResult, *plan.Plan, error) {
	_ = step.SetStatus(plan.StatusFailed)
	e.events.Emit(proto.EventStepFinished, map[string]any{
		"step":   step.ID,
		"status": string(plan.StatusFailed),
		"reason": reason,
	})

	if err := e.Transition(proto.StateRecovering); err != nil {
		return nil, nil, err
	}

	newPlan, err := e.planner.Replan(ctx, goal, step, reason, e.replans)
	if err != nil {
		e.logger.Warn("replan failed: %v", err)
		return &TurnResult{StopReason: proto.StopReplanParseFailed, Replans: e.replans}, nil, nil
	}
	if newPlan == nil {
		return &TurnResult{StopReason: proto.StopMaxReplans, Replans: e.replans}, nil, nil
	}

	e.replans++
	e.events.Emit(proto.EventReplan, map[string]any{
		"replans_used": e.replans,
		"failed_step":  step.ID,
	})
	if err := e.Transition(proto.StateExecuting); err != nil {
		return nil, nil, err
	}
	return nil, newPlan, nil
}

// decide requests one model decision over the current context, compacting
// first when the buffer crosses the threshold.
func (e *Executor) decide(ctx context.Context) (*Decision, error) {
	if e.ctxmgr.ShouldCompact() {
		result := e.ctxmgr.Compact()
		if e.metrics != nil {
			e.metrics.Compactions.Inc()
		}
		e.events.Emit(proto.EventCompaction, map[string]any{
			"tokens_before": result.TokensBefore,
			"tokens_after":  result.TokensAfter,
			"strategy":      result.Strategy.String(),
		})
	}

	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages:   e.messages(),
		Tools:      e.toolDefs,
		ToolChoice: "auto",
	})
	if err != nil {
		return nil, err
	}
	return DecodeDecision(&resp, e.limits.RunawayBraceLimit), nil
}

// messages projects the context buffer into the provider message list.
func (e *Executor) messages() []llm.Message {
	items := e.ctxmgr.Items()
	msgs := make([]llm.Message, 0, len(items))
	for _, item := range items {
		switch item.Category {
		case contextmgr.CategorySystem:
			msgs = append(msgs, llm.NewSystemMessage(item.Content))
		case contextmgr.CategoryAssistant:
			msgs = append(msgs, llm.NewAssistantMessage(item.Content))
		default:
			msgs = append(msgs, llm.NewUserMessage(item.Content))
		}
	}
	return msgs
}

// execute dispatches one tool call and feeds the structured result back into
// context. Mutating calls trigger a verification pass whose failures also go
// back into context; verification never stops the turn.
func (e *Executor) execute(ctx context.Context, d *Decision) {
	e.events.Emit(proto.EventToolCall, map[string]any{
		"tool": d.Tool,
		"args": d.Args,
	})
	result := e.dispatcher.Dispatch(ctx, d.Tool, d.Args)
	resultData := map[string]any{"tool": d.Tool, "ok": result.OK}
	if result.Err != nil {
		resultData["code"] = result.Err.Code
	}
	e.events.Emit(proto.EventToolResult, resultData)
	e.ctxmgr.AppendToolResult(fmt.Sprintf("%s -> %s", d.Tool, result.Render()))

	if !result.OK {
		return
	}
	spec, ok := e.dispatcher.Registry().Get(d.Tool)
	if !ok || !(spec.HasEffect(tools.EffectWrite) || spec.HasEffect(tools.EffectExec)) {
		return
	}

	report := e.verifier.Check(ctx, e.touched.Paths())
	e.events.Emit(proto.EventVerification, map[string]any{
		"passed": report.Passed,
		"files":  len(report.Checked),
	})
	if !report.Passed {
		e.ctxmgr.AppendToolResult(report.Summary())
	}
}

// modelFailure maps a model-call error during a step to a terminal stop.
func (e *Executor) modelFailure(step *plan.Step, err error) (*TurnResult, *plan.Plan, error) {
	_ = step.SetStatus(plan.StatusFailed)
	if errors.Is(err, context.Canceled) {
		return &TurnResult{StopReason: proto.StopCancelled, Replans: e.replans}, nil, nil
	}
	if errors.Is(err, llm.ErrChainExhausted) {
		e.logger.Error("provider chain exhausted: %v", err)
		return &TurnResult{StopReason: proto.StopProviderExhausted, Replans: e.replans}, nil, nil
	}
	return nil, nil, fmt.Errorf("model decision failed at step %s: %w", step.ID, err)
}

// completeTurn runs the final verification pass and asks the model for the
// closing answer.
func (e *Executor) completeTurn(ctx context.Context) (*TurnResult, error) {
	if err := e.Transition(proto.StateVerifying); err != nil {
		return nil, err
	}

	if e.touched.Len() > 0 {
		report := e.verifier.Check(ctx, e.touched.Paths())
		e.events.Emit(proto.EventVerification, map[string]any{
			"passed": report.Passed,
			"files":  len(report.Checked),
			"final":  true,
		})
		if !report.Passed {
			e.ctxmgr.AppendToolResult(report.Summary())
		}
	}

	e.ctxmgr.AppendUser("All plan steps are complete. Summarize the outcome for the user in plain language.")
	resp, err := e.client.Complete(ctx, llm.CompletionRequest{Messages: e.messages()})
	if err != nil {
		if errors.Is(err, llm.ErrChainExhausted) {
			return e.finish(&TurnResult{StopReason: proto.StopProviderExhausted, Replans: e.replans}, nil)
		}
		return nil, fmt.Errorf("final summary failed: %w", err)
	}

	return e.finish(&TurnResult{
		StopReason:  proto.StopDone,
		FinalAnswer: resp.Content,
		Replans:     e.replans,
	}, nil)
}

// finish transitions to DONE and stamps the result with the final state.
func (e *Executor) finish(result *TurnResult, err error) (*TurnResult, error) {
	if err != nil {
		return nil, err
	}
	if e.state != proto.StateDone {
		if terr := e.Transition(proto.StateDone); terr != nil {
			e.logger.Warn("final transition failed: %v", terr)
			e.state = proto.StateDone
		}
	}
	result.State = e.state
	e.events.Emit(proto.EventTurnFinished, map[string]any{
		"stop_reason": string(result.StopReason),
		"replans":     result.Replans,
	})
	if e.store != nil {
		if err := e.store.SaveTurn(&persistence.TurnRecord{
			TraceID:    e.traceID,
			State:      string(e.state),
			StopReason: string(result.StopReason),
			Goal:       e.goal,
		}); err != nil {
			e.logger.Warn("failed to persist turn result: %v", err)
		}
	}
	return result, nil
}

func stepPrompt(step *plan.Step) string {
	prompt := fmt.Sprintf("Current step %s: %s", step.ID, step.Description)
	if len(step.ToolsExpected) > 0 {
		prompt += fmt.Sprintf("\nLikely useful tools: %v", step.ToolsExpected)
	}
	prompt += "\nWork the step with tool calls. Call step_done with a summary when finished, or replan if the step cannot proceed."
	return prompt
}
