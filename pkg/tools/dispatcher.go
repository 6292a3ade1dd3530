package tools

import (
	"context"
	"fmt"
	"strings"

	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/proto"
)

// AuditHook receives policy decisions and dispatch outcomes for the audit
// stream. It must not block.
type AuditHook func(event proto.EventName, data map[string]any)

// Dispatcher routes validated tool calls to their handlers. It is the
// primary defense against malformed model output reaching real file or
// process mutation: validation failures never reach a handler.
type Dispatcher struct {
	registry *Registry
	policy   *Policy
	metrics  *metrics.Metrics
	audit    AuditHook
	logger   *logx.Logger
}

// NewDispatcher creates a dispatcher over the given registry and policy.
// metrics and audit may be nil.
func NewDispatcher(registry *Registry, policy *Policy, m *metrics.Metrics, audit AuditHook) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		policy:   policy,
		metrics:  m,
		audit:    audit,
		logger:   logx.NewLogger("dispatch"),
	}
}

// Registry exposes the underlying registry for definition listing.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Policy exposes the policy layer so the router can scope the turn.
func (d *Dispatcher) Policy() *Policy {
	return d.policy
}

// Dispatch runs one tool call through the full gate: name lookup,
// callability, policy, argument validation, confirmation, command safety,
// and finally the handler with panic recovery.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, rawArgs map[string]any) *Result {
	result := d.dispatch(ctx, name, rawArgs)
	d.record(name, result)
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, rawArgs map[string]any) *Result {
	spec, ok := d.registry.Get(name)
	if !ok {
		return Fail(CodeNoTool, "unknown tool %q", name)
	}
	if !spec.Callable {
		// Not callable by the model; indistinguishable from unknown on purpose.
		return Fail(CodeNoTool, "unknown tool %q", name)
	}

	// Policy checks run before validation so denials carry no argument echo.
	if !d.policy.AllowedForTurn(name) {
		d.deny(name, "outside intent allow-list", nil)
		return Fail(CodePolicy, "tool %q is not allowed for this request", name)
	}
	if !d.policy.AllowedGlobally(name) {
		d.deny(name, "globally denied", nil)
		return Fail(CodePolicy, "tool %q is disabled by policy", name)
	}

	args, fieldErrs := spec.Schema.Validate(rawArgs)
	if len(fieldErrs) > 0 {
		reasons := make([]string, len(fieldErrs))
		details := make(map[string]any, len(fieldErrs))
		for i, fe := range fieldErrs {
			reasons[i] = fe.String()
			details[fe.Field] = fe.Reason
		}
		return FailWithDetails(CodeInvalidArgs,
			fmt.Sprintf("invalid arguments for %s: %s", name, strings.Join(reasons, "; ")),
			details)
	}

	if spec.HasEffect(EffectExec) {
		if command := StringArg(args, "command"); command != "" {
			if pattern := d.policy.EvaluateCommand(command); pattern != "" {
				d.deny(name, "unsafe command", map[string]any{"pattern": pattern})
				return Fail(CodeUnsafeCommand, "command rejected by safety policy (matched %q)", pattern)
			}
		}
	}

	if spec.HasEffect(EffectWrite) || spec.HasEffect(EffectExec) {
		if !d.policy.ConfirmMutation(ctx, name, describeCall(spec, args)) {
			d.deny(name, "confirmation declined", nil)
			return Fail(CodeDenied, "action declined by user confirmation")
		}
	}

	return d.invoke(ctx, spec, args)
}

// invoke runs the handler, converting panics into E_TOOL results.
func (d *Dispatcher) invoke(ctx context.Context, spec *Spec, args map[string]any) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool %s panicked: %v", spec.Name, r)
			result = Fail(CodeTool, "tool %s failed: %v", spec.Name, r)
		}
	}()

	result = spec.Handler(ctx, args)
	if result == nil {
		result = Fail(CodeTool, "tool %s returned no result", spec.Name)
	}
	return result
}

func (d *Dispatcher) record(name string, result *Result) {
	outcome := "ok"
	if !result.OK {
		outcome = "error"
		if d.metrics != nil && result.Err != nil {
			d.metrics.ToolErrors.WithLabelValues(name, result.Err.Code).Inc()
		}
	}
	if d.metrics != nil {
		d.metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
	}
}

// deny reports a blocked call on the audit stream. Every denial, whatever
// the gate that caught it, goes out as one policy_decision event.
func (d *Dispatcher) deny(tool, reason string, extra map[string]any) {
	if d.audit == nil {
		return
	}
	data := map[string]any{"tool": tool, "decision": "denied", "reason": reason}
	for k, v := range extra {
		data[k] = v
	}
	d.audit(proto.EventPolicyDecision, data)
}

func describeCall(spec *Spec, args map[string]any) string {
	switch {
	case spec.HasEffect(EffectExec):
		return fmt.Sprintf("%s: %s", spec.Name, StringArg(args, "command"))
	case spec.HasEffect(EffectWrite):
		return fmt.Sprintf("%s: %s", spec.Name, StringArg(args, "path"))
	default:
		return spec.Name
	}
}
