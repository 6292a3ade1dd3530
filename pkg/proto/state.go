// Package proto defines the shared protocol types for the agent runtime:
// turn states, risk levels, stop reasons, and the audit event envelope.
package proto

import "fmt"

// AgentState represents the state of a turn in the executor state machine.
type AgentState string

const (
	// StateIntake is the initial state while the user request is classified.
	StateIntake AgentState = "INTAKE"
	// StatePlanning indicates the planner is generating or regenerating a plan.
	StatePlanning AgentState = "PLANNING"
	// StateExecuting indicates the executor is driving plan steps.
	StateExecuting AgentState = "EXECUTING"
	// StateVerifying indicates workspace self-checks are running.
	StateVerifying AgentState = "VERIFYING"
	// StateRecovering indicates a failed step is being replanned.
	StateRecovering AgentState = "RECOVERING"
	// StateWaitingApproval indicates the turn is blocked on a human decision.
	StateWaitingApproval AgentState = "WAITING_FOR_APPROVAL"
	// StateDone is the terminal state for a turn.
	StateDone AgentState = "DONE"
)

// String returns the string form of the state.
func (s AgentState) String() string {
	return string(s)
}

// IsTerminal returns true if the state is terminal.
func (s AgentState) IsTerminal() bool {
	return s == StateDone
}

// ValidTransitions defines the allowed state transitions for a turn.
// A single active state per turn; transitions outside this table are rejected.
//
//nolint:gochecknoglobals // Immutable transition table shared by all turns
var ValidTransitions = map[AgentState][]AgentState{
	StateIntake:          {StatePlanning, StateExecuting, StateDone},
	StatePlanning:        {StateWaitingApproval, StateExecuting, StateDone},
	StateExecuting:       {StateVerifying, StateRecovering, StateDone},
	StateVerifying:       {StateExecuting, StateDone},
	StateRecovering:      {StatePlanning, StateExecuting, StateDone},
	StateWaitingApproval: {StateExecuting, StateDone},
	StateDone:            {},
}

// CanTransition reports whether the transition from -> to is allowed.
func CanTransition(from, to AgentState) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an invalid transition.
func ValidateTransition(from, to AgentState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid state transition %s -> %s", from, to)
	}
	return nil
}
