package proto

// StopReason is the reason-coded outcome of a turn. Every terminal stop is
// one of these values; user-visible failures always carry one, never a bare
// stack trace.
type StopReason string

const (
	// StopDone indicates the turn completed normally.
	StopDone StopReason = "stop_done"
	// StopPlanParseFailed indicates the planner exhausted its parse retry budget.
	StopPlanParseFailed StopReason = "plan_parse_failed"
	// StopReplanParseFailed indicates a replanning pass could not be parsed.
	StopReplanParseFailed StopReason = "replan_parse_failed"
	// StopMaxReplans indicates the replan budget was exhausted.
	StopMaxReplans StopReason = "max_replans_reached"
	// StopDependencyDeadlock indicates every incomplete step is blocked.
	StopDependencyDeadlock StopReason = "dependency_deadlock"
	// StopIterationLimit indicates a hard iteration ceiling was reached.
	StopIterationLimit StopReason = "iteration_limit"
	// StopApprovalPending indicates the turn ended awaiting a human decision.
	StopApprovalPending StopReason = "approval_pending"
	// StopApprovalRejected indicates the human decision was a rejection.
	StopApprovalRejected StopReason = "approval_rejected"
	// StopProviderExhausted indicates the provider failover chain was exhausted.
	StopProviderExhausted StopReason = "provider_exhausted"
	// StopCancelled indicates the turn context was cancelled.
	StopCancelled StopReason = "turn_cancelled"
)

// Terminal reports whether the stop reason ends the turn for good.
// StopApprovalPending is resumable; everything else is final.
func (r StopReason) Terminal() bool {
	return r != StopApprovalPending
}
