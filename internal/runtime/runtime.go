// Package runtime assembles the full turn pipeline: intent classification,
// planning, the approval gate, sandboxing, and the step executor, wired over
// one workspace.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"agentd/pkg/config"
	"agentd/pkg/contextmgr"
	"agentd/pkg/eventlog"
	"agentd/pkg/executor"
	"agentd/pkg/gate"
	"agentd/pkg/intent"
	"agentd/pkg/llm"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/persistence"
	"agentd/pkg/plan"
	"agentd/pkg/planner"
	"agentd/pkg/proto"
	"agentd/pkg/sandbox"
	"agentd/pkg/tools"
	"agentd/pkg/undo"
	"agentd/pkg/verify"
)

// Runtime holds the process-wide collaborators. One Runtime serves one
// workspace; turns run strictly one at a time.
type Runtime struct {
	cfg       *config.Config
	store     *persistence.Store
	metrics   *metrics.Metrics
	writer    *eventlog.Writer
	confirmer tools.Confirmer
	logger    *logx.Logger
}

// New opens the durable state under the config's state directory.
func New(cfg *config.Config, m *metrics.Metrics, confirmer tools.Confirmer) (*Runtime, error) {
	store, err := persistence.Open(filepath.Join(cfg.StateDir, "agentd.db"))
	if err != nil {
		return nil, err
	}
	writer, err := eventlog.NewWriter(filepath.Join(cfg.StateDir, "events"))
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Runtime{
		cfg:       cfg,
		store:     store,
		metrics:   m,
		writer:    writer,
		confirmer: confirmer,
		logger:    logx.NewLogger("runtime"),
	}, nil
}

// Close releases the store and event log.
func (r *Runtime) Close() {
	if err := r.writer.Close(); err != nil {
		r.logger.Warn("failed to close event log: %v", err)
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close store: %v", err)
	}
}

// Store exposes the persistence layer for out-of-band operations (approval
// decisions, undo).
func (r *Runtime) Store() *persistence.Store {
	return r.store
}

// RunTurn executes one full user-request-to-answer cycle.
func (r *Runtime) RunTurn(ctx context.Context, userText string) (*executor.TurnResult, error) {
	traceID := uuid.New().String()
	stream := eventlog.NewStream(traceID, r.writer)
	defer stream.Close()

	client, primary, err := r.buildClient(traceID, stream)
	if err != nil {
		return nil, err
	}

	classifier := intent.New(r.cfg.IntentRules, client)
	cls, err := classifier.Classify(ctx, userText)
	if err != nil {
		return nil, fmt.Errorf("intent classification failed: %w", err)
	}
	stream.Emit(proto.EventIntentClassified, map[string]any{
		"category": cls.Category,
		"risk":     cls.Risk.String(),
		"planning": cls.PlanningRequired,
	})

	turn, err := r.buildTurn(traceID, r.cfg.Workspace, client, primary, cls, stream)
	if err != nil {
		return nil, err
	}

	if cls.Conversational() || !cls.PlanningRequired {
		return r.recordResult(turn.exec.RunReact(ctx, userText))
	}

	if err := turn.exec.Transition(proto.StatePlanning); err != nil {
		return nil, err
	}
	generated, err := turn.planner.Generate(ctx, userText, describeTools(turn.defs))
	if err != nil {
		r.logger.Error("planning failed: %v", err)
		return r.recordResult(turn.exec.Abort(userText, proto.StopPlanParseFailed), nil)
	}
	stream.Emit(proto.EventPlanGenerated, map[string]any{
		"title": generated.Title,
		"steps": len(generated.Steps),
	})

	g := gate.New(r.store, turn.registry, stream)
	risk := g.Assess(cls.Risk, generated)
	if risk.RequiresApproval() {
		if err := turn.exec.Transition(proto.StateWaitingApproval); err != nil {
			return nil, err
		}
		requestID, err := g.Request(cls.Category, risk, generated)
		if err != nil {
			return nil, err
		}
		if err := g.AwaitDecision(ctx, requestID); err != nil {
			switch {
			case errors.Is(err, gate.ErrPending):
				r.logger.Info("turn suspended awaiting approval; resume with request id %s", requestID)
				return r.recordResult(turn.exec.Abort(userText, proto.StopApprovalPending), nil)
			case errors.Is(err, gate.ErrRejected):
				return r.recordResult(turn.exec.Abort(userText, proto.StopApprovalRejected), nil)
			default:
				return nil, err
			}
		}
	}

	if risk.RequiresSandbox() {
		return r.runSandboxed(ctx, traceID, userText, client, primary, cls, stream, generated)
	}
	return r.recordResult(turn.exec.RunPlan(ctx, userText, generated))
}

// Resume continues a turn whose approval was granted out-of-band.
func (r *Runtime) Resume(ctx context.Context, requestID string) (*executor.TurnResult, error) {
	traceID := uuid.New().String()
	stream := eventlog.NewStream(traceID, r.writer)
	defer stream.Close()

	g := gate.New(r.store, nil, stream)
	approved, err := g.Resume(requestID)
	if err != nil {
		return nil, err
	}
	rec, err := r.store.GetApproval(requestID)
	if err != nil {
		return nil, err
	}

	client, primary, err := r.buildClient(traceID, stream)
	if err != nil {
		return nil, err
	}
	cls := &intent.Classification{
		Category:         rec.Intent,
		Risk:             proto.ParseRiskLevel(rec.Risk),
		PlanningRequired: true,
	}

	goal := "Resume the approved plan: " + approved.Title
	if cls.Risk.RequiresSandbox() {
		return r.runSandboxed(ctx, traceID, goal, client, primary, cls, stream, approved)
	}
	turn, err := r.buildTurn(traceID, r.cfg.Workspace, client, primary, cls, stream)
	if err != nil {
		return nil, err
	}
	return r.recordResult(turn.exec.RunPlan(ctx, goal, approved))
}

// runSandboxed executes the whole plan against an isolated workspace copy.
// Only on a fully verified success are the touched files merged back; any
// failure discards the sandbox and leaves the real workspace untouched.
func (r *Runtime) runSandboxed(
	ctx context.Context,
	traceID, goal string,
	client llm.Client,
	primary *config.Model,
	cls *intent.Classification,
	stream *eventlog.Stream,
	generated *plan.Plan,
) (*executor.TurnResult, error) {
	sb, err := sandbox.New(r.cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	stream.Emit(proto.EventSandbox, map[string]any{"action": "created", "root": sb.Root})

	turn, err := r.buildTurn(traceID, sb.Root, client, primary, cls, stream)
	if err != nil {
		sb.Discard()
		return nil, err
	}

	result, err := turn.exec.RunPlan(ctx, goal, generated)
	if err != nil {
		sb.Discard()
		stream.Emit(proto.EventSandbox, map[string]any{"action": "discarded", "cause": "error"})
		return nil, err
	}

	if result.StopReason != proto.StopDone {
		sb.Discard()
		stream.Emit(proto.EventSandbox, map[string]any{"action": "discarded", "cause": string(result.StopReason)})
		return r.recordResult(result, nil)
	}

	report := turn.verifier.Check(ctx, turn.ws.Touched.Paths())
	if !report.Passed {
		sb.Discard()
		stream.Emit(proto.EventSandbox, map[string]any{"action": "discarded", "cause": "verification_failed"})
		result.FinalAnswer += "\n\nNote: the sandboxed changes failed verification and were discarded; the workspace is unchanged."
		return r.recordResult(result, nil)
	}

	if err := sb.Merge(turn.ws.Touched.Paths()); err != nil {
		sb.Discard()
		stream.Emit(proto.EventSandbox, map[string]any{"action": "discarded", "cause": "merge_failed"})
		return nil, fmt.Errorf("sandbox merge failed: %w", err)
	}
	sb.Discard()
	stream.Emit(proto.EventSandbox, map[string]any{
		"action": "merged",
		"files":  turn.ws.Touched.Len(),
	})
	return r.recordResult(result, nil)
}

// turnParts are the per-turn collaborators bound to one workspace root.
type turnParts struct {
	ws       *tools.Workspace
	registry *tools.Registry
	defs     []tools.Definition
	planner  *planner.Planner
	verifier *verify.Verifier
	exec     *executor.Executor
}

func (r *Runtime) buildTurn(
	traceID, root string,
	client llm.Client,
	primary *config.Model,
	cls *intent.Classification,
	stream *eventlog.Stream,
) (*turnParts, error) {
	ws := tools.NewWorkspace(root)
	ws.Undo = undo.NewRecorder(r.store, root, filepath.Join(r.cfg.StateDir, "undo"), traceID)

	registry, err := tools.NewRegistry(tools.DefaultSpecs(ws)...)
	if err != nil {
		return nil, err
	}
	policy, err := tools.NewPolicy(r.cfg.Policy, r.confirmer)
	if err != nil {
		return nil, err
	}
	if len(cls.AllowedTools) > 0 {
		policy.RestrictToIntent(cls.AllowedTools)
	}

	dispatcher := tools.NewDispatcher(registry, policy, r.metrics, func(event proto.EventName, data map[string]any) {
		stream.Emit(event, data)
	})

	var allowed []string
	if len(cls.AllowedTools) > 0 {
		allowed = cls.AllowedTools
	} else {
		allowed = registry.Names()
	}
	defs := registry.Definitions(allowed)

	cm := contextmgr.NewManager(r.cfg.Context, primary.MaxContextTokens, contextmgr.NewTokenCounter())
	cm.SetSystem(systemPrompt)

	verifier := verify.New(r.cfg.Verify, root)
	pl := planner.New(client, r.cfg.Limits, stream)

	exec := executor.New(executor.Deps{
		Client:     client,
		ContextMgr: cm,
		Dispatcher: dispatcher,
		Planner:    pl,
		Verifier:   verifier,
		Touched:    ws.Touched,
		Events:     stream,
		Store:      r.store,
		Metrics:    r.metrics,
		Limits:     r.cfg.Limits,
		ToolDefs:   defs,
	})

	return &turnParts{
		ws:       ws,
		registry: registry,
		defs:     defs,
		planner:  pl,
		verifier: verifier,
		exec:     exec,
	}, nil
}

// buildClient assembles the provider failover chain. Each provider gets the
// retry and usage-accounting middleware; the failover wrapper sequences them
// with per-provider timeouts and circuit breaking.
func (r *Runtime) buildClient(traceID string, stream *eventlog.Stream) (llm.Client, *config.Model, error) {
	if len(r.cfg.ProviderChain) == 0 {
		return nil, nil, fmt.Errorf("provider chain is empty")
	}

	var clients []llm.Client
	var primary *config.Model
	for _, name := range r.cfg.ProviderChain {
		model, err := r.cfg.ModelByName(name)
		if err != nil {
			return nil, nil, err
		}
		if primary == nil {
			primary = model
		}
		base, err := newProviderClient(model)
		if err != nil {
			return nil, nil, err
		}
		clients = append(clients, llm.Chain(base,
			llm.WithRetry(),
			llm.WithUsageAccounting(traceID, model, r.metrics, r.store),
		))
	}

	failover, err := llm.NewFailover(clients, r.cfg.RequestTimeout, func(ev llm.FailoverEvent) {
		r.metrics.Failovers.WithLabelValues(ev.FromModel).Inc()
		stream.Emit(proto.EventFailover, map[string]any{
			"from":   ev.FromModel,
			"reason": ev.Reason,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return failover, primary, nil
}

func describeTools(defs []tools.Definition) string {
	out := ""
	for _, d := range defs {
		out += fmt.Sprintf("- %s: %s\n", d.Name, d.Description)
	}
	return out
}

const systemPrompt = `You are a coding agent operating on a workspace through tools.

Rules:
- Use exactly one tool call per reply.
- Read before you write; keep edits minimal and focused.
- When a plan step is complete, call step_done with a short summary.
- If the current plan cannot work, call replan with the reason.
- When the task is finished, call final_answer with the response for the user.`
