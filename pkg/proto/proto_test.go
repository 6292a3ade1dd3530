package proto

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from AgentState
		to   AgentState
		want bool
	}{
		{StateIntake, StatePlanning, true},
		{StateIntake, StateExecuting, true},
		{StateIntake, StateVerifying, false},
		{StatePlanning, StateWaitingApproval, true},
		{StatePlanning, StateRecovering, false},
		{StateExecuting, StateVerifying, true},
		{StateExecuting, StateRecovering, true},
		{StateVerifying, StateExecuting, true},
		{StateVerifying, StatePlanning, false},
		{StateRecovering, StatePlanning, true},
		{StateWaitingApproval, StateExecuting, true},
		{StateWaitingApproval, StatePlanning, false},
		{StateDone, StateIntake, false},
		{StateDone, StateDone, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEveryStateCanReachDone(t *testing.T) {
	for from := range ValidTransitions {
		if from == StateDone {
			continue
		}
		if !CanTransition(from, StateDone) {
			t.Errorf("%s cannot reach DONE", from)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StateIntake, StatePlanning); err != nil {
		t.Errorf("valid transition rejected: %v", err)
	}
	if err := ValidateTransition(StateDone, StateExecuting); err == nil {
		t.Error("transition out of DONE accepted")
	}
}

func TestIsTerminal(t *testing.T) {
	if !StateDone.IsTerminal() {
		t.Error("DONE must be terminal")
	}
	if StateExecuting.IsTerminal() {
		t.Error("EXECUTING must not be terminal")
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		in   string
		want RiskLevel
	}{
		{"LOW", RiskLow},
		{"low", RiskLow},
		{"MEDIUM", RiskMedium},
		{"high", RiskHigh},
		{"CRITICAL", RiskCritical},
		{"", RiskMedium},
		{"bogus", RiskMedium},
	}
	for _, tt := range tests {
		if got := ParseRiskLevel(tt.in); got != tt.want {
			t.Errorf("ParseRiskLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRiskMax(t *testing.T) {
	if got := RiskLow.Max(RiskHigh); got != RiskHigh {
		t.Errorf("Max = %s", got)
	}
	if got := RiskCritical.Max(RiskMedium); got != RiskCritical {
		t.Errorf("Max = %s", got)
	}
}

func TestRiskGates(t *testing.T) {
	tests := []struct {
		risk         RiskLevel
		wantApproval bool
		wantSandbox  bool
	}{
		{RiskLow, false, false},
		{RiskMedium, false, false},
		{RiskHigh, true, false},
		{RiskCritical, true, true},
	}
	for _, tt := range tests {
		if got := tt.risk.RequiresApproval(); got != tt.wantApproval {
			t.Errorf("%s.RequiresApproval() = %v", tt.risk, got)
		}
		if got := tt.risk.RequiresSandbox(); got != tt.wantSandbox {
			t.Errorf("%s.RequiresSandbox() = %v", tt.risk, got)
		}
	}
}

func TestStopReasonTerminal(t *testing.T) {
	if StopApprovalPending.Terminal() {
		t.Error("approval_pending must be resumable")
	}
	for _, r := range []StopReason{StopDone, StopMaxReplans, StopCancelled, StopProviderExhausted} {
		if !r.Terminal() {
			t.Errorf("%s must be terminal", r)
		}
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := &Event{
		TraceID: "t-1",
		Seq:     7,
		Name:    EventToolCall,
		Data:    map[string]any{"tool": "shell"},
	}
	data, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := EventFromJSON(data)
	if err != nil {
		t.Fatalf("EventFromJSON: %v", err)
	}
	if back.TraceID != "t-1" || back.Seq != 7 || back.Name != EventToolCall {
		t.Errorf("round trip = %+v", back)
	}
	if back.Data["tool"] != "shell" {
		t.Errorf("Data = %v", back.Data)
	}
}
