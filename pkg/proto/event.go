package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName identifies a kind of audit event on the trace stream.
type EventName string

const (
	EventStateChange      EventName = "state_change"
	EventIntentClassified EventName = "intent_classified"
	EventPlanGenerated    EventName = "plan_generated"
	EventPlanLeniency     EventName = "plan_leniency"
	EventReplan           EventName = "replan"
	EventStepStarted      EventName = "step_started"
	EventStepFinished     EventName = "step_finished"
	EventToolCall         EventName = "tool_call"
	EventToolResult       EventName = "tool_result"
	EventPolicyDecision   EventName = "policy_decision"
	EventApprovalRequest  EventName = "approval_requested"
	EventApprovalDecision EventName = "approval_decided"
	EventVerification     EventName = "verification"
	EventCompaction       EventName = "compaction"
	EventFailover         EventName = "provider_failover"
	EventSandbox          EventName = "sandbox"
	EventTurnFinished     EventName = "turn_finished"
)

// Event is the structured audit record emitted for every state transition,
// tool call, tool result, policy decision, and approval event. It is the only
// channel observers should rely on to replay a turn.
type Event struct {
	TraceID   string         `json:"trace_id"`
	Seq       int64          `json:"seq"`
	Name      EventName      `json:"event"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

// ToJSON serializes the event to a single JSON line.
func (e *Event) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// EventFromJSON parses a single JSON event line.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}
