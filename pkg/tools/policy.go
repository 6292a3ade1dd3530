package tools

import (
	"context"

	"agentd/pkg/config"
)

// Confirmer is the externally-supplied confirmation predicate for write and
// exec side effects. The default implementation prompts; a denial is
// surfaced as a structured E_DENIED result, never a silent skip.
type Confirmer interface {
	// Confirm returns true to allow the action. description is a short
	// human-readable summary of what the tool is about to do.
	Confirm(ctx context.Context, toolName, description string) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, toolName, description string) bool

// Confirm calls f.
func (f ConfirmerFunc) Confirm(ctx context.Context, toolName, description string) bool {
	return f(ctx, toolName, description)
}

// AutoConfirm allows every action without prompting.
//
//nolint:gochecknoglobals // Stateless predicate value
var AutoConfirm = ConfirmerFunc(func(context.Context, string, string) bool { return true })

// DenyAll declines every action; the non-interactive default.
//
//nolint:gochecknoglobals // Stateless predicate value
var DenyAll = ConfirmerFunc(func(context.Context, string, string) bool { return false })

// Policy is the gate checked before argument validation: an intent-scoped
// allow-list (when present), the global allow/deny lists, the confirmation
// predicate, and the exec command evaluator.
type Policy struct {
	globalAllow map[string]bool // nil means everything allowed
	globalDeny  map[string]bool
	turnAllow   map[string]bool // nil means no intent restriction
	confirmer   Confirmer
	evaluator   *CommandEvaluator
	confirm     bool
}

// NewPolicy builds the policy layer from config. confirmer may be nil, in
// which case write/exec effects are denied outside auto-confirm mode.
func NewPolicy(cfg config.Policy, confirmer Confirmer) (*Policy, error) {
	evaluator, err := NewCommandEvaluator(cfg.DenyCommands)
	if err != nil {
		return nil, err
	}

	p := &Policy{
		confirmer: confirmer,
		evaluator: evaluator,
		confirm:   cfg.RequireConfirm && !cfg.AutoConfirm,
	}
	if len(cfg.AllowTools) > 0 {
		p.globalAllow = toSet(cfg.AllowTools)
	}
	if len(cfg.DenyTools) > 0 {
		p.globalDeny = toSet(cfg.DenyTools)
	}
	if p.confirmer == nil {
		p.confirmer = DenyAll
	}
	if !p.confirm {
		p.confirmer = AutoConfirm
	}
	return p, nil
}

// RestrictToIntent narrows the callable set for the remainder of the turn.
// An empty list clears the restriction.
func (p *Policy) RestrictToIntent(allowed []string) {
	if len(allowed) == 0 {
		p.turnAllow = nil
		return
	}
	p.turnAllow = toSet(allowed)
}

// AllowedForTurn reports whether the intent scope permits the tool.
func (p *Policy) AllowedForTurn(name string) bool {
	if p.turnAllow == nil {
		return true
	}
	return p.turnAllow[name]
}

// AllowedGlobally reports whether the global lists permit the tool.
func (p *Policy) AllowedGlobally(name string) bool {
	if p.globalDeny[name] {
		return false
	}
	if p.globalAllow != nil {
		return p.globalAllow[name]
	}
	return true
}

// ConfirmMutation runs the confirmation predicate for a write/exec action.
func (p *Policy) ConfirmMutation(ctx context.Context, toolName, description string) bool {
	return p.confirmer.Confirm(ctx, toolName, description)
}

// EvaluateCommand screens an exec command; returns the matched deny pattern
// or "" when safe.
func (p *Policy) EvaluateCommand(command string) string {
	return p.evaluator.Evaluate(command)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
