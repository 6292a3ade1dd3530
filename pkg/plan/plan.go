// Package plan defines the dependency-ordered task breakdown produced by the
// planner and the status lifecycle of its steps.
package plan

import (
	"fmt"
	"strings"
)

// StepStatus is the lifecycle state of a single plan step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusDone       StepStatus = "done"
	StatusFailed     StepStatus = "failed"
	StatusBlocked    StepStatus = "blocked"
)

// validStepTransitions defines which status changes a step may take.
// Done is never re-entered; blocked steps return to pending when their
// dependencies resolve on a later pass.
var validStepTransitions = map[StepStatus][]StepStatus{
	StatusPending:    {StatusInProgress, StatusBlocked},
	StatusInProgress: {StatusDone, StatusFailed},
	StatusBlocked:    {StatusPending, StatusInProgress},
	StatusDone:       {},
	StatusFailed:     {},
}

// CanTransition reports whether a step may move from one status to another.
func CanTransition(from, to StepStatus) bool {
	for _, allowed := range validStepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Step is one unit of work in a plan. ToolsExpected is a hint for the
// executor's prompt, not a restriction.
type Step struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	Dependencies  []string   `json:"dependencies,omitempty"`
	ToolsExpected []string   `json:"tools_expected,omitempty"`
	Status        StepStatus `json:"status"`
}

// SetStatus applies a status transition, rejecting moves the lifecycle does
// not allow.
func (s *Step) SetStatus(to StepStatus) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("step %s: invalid status transition %s -> %s", s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

// Plan is a single planning pass's output. A replan produces a brand-new
// Plan; plans are never patched in place.
type Plan struct {
	Title              string  `json:"title"`
	Steps              []*Step `json:"steps"`
	VerificationPolicy string  `json:"verification_policy,omitempty"`
	Truncated          bool    `json:"-"`
}

// StepByID returns the step with the given id, or nil.
func (p *Plan) StepByID(id string) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// DependenciesMet reports whether every dependency of the step is done.
func (p *Plan) DependenciesMet(s *Step) bool {
	for _, dep := range s.Dependencies {
		d := p.StepByID(dep)
		if d == nil || d.Status != StatusDone {
			return false
		}
	}
	return true
}

// Incomplete returns the steps that are neither done nor failed.
func (p *Plan) Incomplete() []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if s.Status != StatusDone && s.Status != StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Deadlocked reports whether every incomplete step is blocked. The executor
// uses this to stop instead of spinning on an unsatisfiable dependency graph.
func (p *Plan) Deadlocked() bool {
	incomplete := p.Incomplete()
	if len(incomplete) == 0 {
		return false
	}
	for _, s := range incomplete {
		if s.Status != StatusBlocked {
			return false
		}
	}
	return true
}

// Summary renders a short human-readable overview for approval prompts and
// audit records.
func (p *Plan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d steps)", p.Title, len(p.Steps))
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "\n  %s: %s", s.ID, s.Description)
		if len(s.Dependencies) > 0 {
			fmt.Fprintf(&b, " [after %s]", strings.Join(s.Dependencies, ", "))
		}
	}
	return b.String()
}
