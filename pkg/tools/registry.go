package tools

import (
	"context"
	"fmt"
	"sort"
)

// Effect is one element of a tool's side-effect set.
type Effect string

const (
	// EffectRead reads workspace or system state.
	EffectRead Effect = "read"
	// EffectWrite mutates workspace files.
	EffectWrite Effect = "write"
	// EffectExec runs external processes.
	EffectExec Effect = "exec"
	// EffectNetwork performs network requests.
	EffectNetwork Effect = "network"
)

// Handler executes a tool with already-validated arguments. Handlers must
// communicate with the state machine only through the returned Result.
type Handler func(ctx context.Context, args map[string]any) *Result

// Spec is one immutable registry entry describing a callable capability.
type Spec struct {
	Name           string
	Description    string
	Schema         Schema
	Example        map[string]any
	Effects        []Effect
	VisibleToModel bool
	Callable       bool
	Handler        Handler
}

// HasEffect reports whether the spec declares the given side effect.
func (s *Spec) HasEffect(e Effect) bool {
	for _, effect := range s.Effects {
		if effect == e {
			return true
		}
	}
	return false
}

// Definition returns the model-facing description of the tool.
func (s *Spec) Definition() Definition {
	return Definition{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: s.Schema.InputSchema(),
	}
}

// Registry is the process-wide tool table, built once at startup and
// immutable thereafter. It is injected explicitly rather than held in a
// package-level global.
type Registry struct {
	specs map[string]*Spec
	names []string
}

// NewRegistry builds a registry from the given specs. Duplicate names and
// callable specs without a handler are construction errors.
func NewRegistry(specs ...*Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*Spec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("tool spec with empty name")
		}
		if _, exists := r.specs[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate tool registration: %s", spec.Name)
		}
		if spec.Callable && spec.Handler == nil {
			return nil, fmt.Errorf("callable tool %s has no handler", spec.Name)
		}
		r.specs[spec.Name] = spec
		r.names = append(r.names, spec.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the spec for name.
func (r *Registry) Get(name string) (*Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Definitions returns model-facing definitions for visible tools,
// optionally restricted to an allow-list (nil means no restriction).
func (r *Registry) Definitions(allowed []string) []Definition {
	var allowSet map[string]bool
	if allowed != nil {
		allowSet = make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowSet[name] = true
		}
	}

	defs := make([]Definition, 0, len(r.names))
	for _, name := range r.names {
		spec := r.specs[name]
		if !spec.VisibleToModel {
			continue
		}
		if allowSet != nil && !allowSet[name] {
			continue
		}
		defs = append(defs, spec.Definition())
	}
	return defs
}
