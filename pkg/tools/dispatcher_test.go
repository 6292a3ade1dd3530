package tools

import (
	"context"
	"testing"

	"agentd/pkg/config"
	"agentd/pkg/proto"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	registry, err := NewRegistry(
		&Spec{
			Name:           "echo",
			Description:    "echo text",
			Schema:         Schema{"text": {Type: "string", Required: true}},
			Effects:        []Effect{EffectRead},
			VisibleToModel: true,
			Callable:       true,
			Handler: func(_ context.Context, args map[string]any) *Result {
				return Ok(map[string]any{"echo": args["text"]})
			},
		},
		&Spec{
			Name:           "run",
			Description:    "run a command",
			Schema:         Schema{"command": {Type: "string", Required: true}},
			Effects:        []Effect{EffectExec},
			VisibleToModel: true,
			Callable:       true,
			Handler: func(_ context.Context, _ map[string]any) *Result {
				return Ok(map[string]any{"ran": true})
			},
		},
		&Spec{
			Name:           "boom",
			Description:    "always panics",
			Schema:         Schema{},
			Effects:        []Effect{EffectRead},
			VisibleToModel: true,
			Callable:       true,
			Handler: func(_ context.Context, _ map[string]any) *Result {
				panic("handler exploded")
			},
		},
		&Spec{
			Name:           "step_done",
			Description:    "signal",
			Schema:         Schema{"summary": {Type: "string"}},
			VisibleToModel: true,
			Callable:       false,
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func testDispatcher(t *testing.T, cfg config.Policy, confirmer Confirmer) *Dispatcher {
	t.Helper()
	policy, err := NewPolicy(cfg, confirmer)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return NewDispatcher(testRegistry(t), policy, nil, nil)
}

func TestDispatchSuccess(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true}, nil)

	result := d.Dispatch(context.Background(), "echo", map[string]any{"text": "hello"})
	if !result.OK {
		t.Fatalf("dispatch failed: %v", result.Err)
	}
	if result.Payload["echo"] != "hello" {
		t.Errorf("payload = %v", result.Payload)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true}, nil)

	result := d.Dispatch(context.Background(), "no_such_tool", nil)
	if result.OK {
		t.Fatal("dispatch of unknown tool succeeded")
	}
	if result.Err.Code != CodeNoTool {
		t.Errorf("code = %s, want %s", result.Err.Code, CodeNoTool)
	}
}

func TestDispatchSignalToolLooksUnknown(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true}, nil)

	result := d.Dispatch(context.Background(), "step_done", map[string]any{"summary": "x"})
	if result.OK {
		t.Fatal("signal tool should not be dispatchable")
	}
	if result.Err.Code != CodeNoTool {
		t.Errorf("code = %s, want %s", result.Err.Code, CodeNoTool)
	}
}

func TestDispatchValidationGate(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true}, nil)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{}},
		{"wrong type", map[string]any{"text": 42}},
		{"unknown field", map[string]any{"text": "x", "bogus": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := d.Dispatch(context.Background(), "echo", tt.args)
			if result.OK {
				t.Fatal("invalid arguments reached the handler")
			}
			if result.Err.Code != CodeInvalidArgs {
				t.Errorf("code = %s, want %s", result.Err.Code, CodeInvalidArgs)
			}
		})
	}
}

func TestDispatchGlobalDeny(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true, DenyTools: []string{"echo"}}, nil)

	result := d.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})
	if result.OK || result.Err.Code != CodePolicy {
		t.Errorf("got %+v, want %s", result.Err, CodePolicy)
	}
}

func TestDispatchIntentScope(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true}, nil)
	d.Policy().RestrictToIntent([]string{"run"})

	result := d.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})
	if result.OK || result.Err.Code != CodePolicy {
		t.Errorf("got %+v, want %s", result.Err, CodePolicy)
	}

	d.Policy().RestrictToIntent(nil)
	result = d.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})
	if !result.OK {
		t.Errorf("clearing the restriction should allow echo again: %v", result.Err)
	}
}

func TestDispatchUnsafeCommand(t *testing.T) {
	d := testDispatcher(t, config.Policy{
		AutoConfirm:  true,
		DenyCommands: []string{`rm\s+-rf\s+/`},
	}, nil)

	result := d.Dispatch(context.Background(), "run", map[string]any{"command": "rm -rf /"})
	if result.OK || result.Err.Code != CodeUnsafeCommand {
		t.Errorf("got %+v, want %s", result.Err, CodeUnsafeCommand)
	}

	result = d.Dispatch(context.Background(), "run", map[string]any{"command": "ls -la"})
	if !result.OK {
		t.Errorf("safe command rejected: %v", result.Err)
	}
}

func TestDispatchConfirmationDenied(t *testing.T) {
	denied := false
	confirmer := ConfirmerFunc(func(_ context.Context, toolName, _ string) bool {
		denied = toolName == "run"
		return false
	})
	d := testDispatcher(t, config.Policy{RequireConfirm: true}, confirmer)

	result := d.Dispatch(context.Background(), "run", map[string]any{"command": "ls"})
	if result.OK || result.Err.Code != CodeDenied {
		t.Errorf("got %+v, want %s", result.Err, CodeDenied)
	}
	if !denied {
		t.Error("confirmer was never consulted")
	}
}

func TestDispatchReadNeedsNoConfirmation(t *testing.T) {
	d := testDispatcher(t, config.Policy{RequireConfirm: true}, DenyAll)

	result := d.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})
	if !result.OK {
		t.Errorf("read-effect tool blocked by confirmation: %v", result.Err)
	}
}

func TestDispatchDenialsAuditAsPolicyDecisions(t *testing.T) {
	type audited struct {
		name proto.EventName
		data map[string]any
	}
	var seen []audited
	hook := func(event proto.EventName, data map[string]any) {
		seen = append(seen, audited{event, data})
	}

	policy, err := NewPolicy(config.Policy{
		AutoConfirm:  true,
		DenyTools:    []string{"echo"},
		DenyCommands: []string{`rm\s+-rf`},
	}, nil)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	d := NewDispatcher(testRegistry(t), policy, nil, hook)

	d.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})
	d.Dispatch(context.Background(), "run", map[string]any{"command": "rm -rf /"})

	if len(seen) != 2 {
		t.Fatalf("audited %d events, want 2", len(seen))
	}
	for i, ev := range seen {
		if ev.name != proto.EventPolicyDecision {
			t.Errorf("event %d = %s, want %s", i, ev.name, proto.EventPolicyDecision)
		}
		if ev.data["decision"] != "denied" {
			t.Errorf("event %d decision = %v, want denied", i, ev.data["decision"])
		}
	}
	if seen[0].data["tool"] != "echo" || seen[0].data["reason"] != "globally denied" {
		t.Errorf("global deny audit = %v", seen[0].data)
	}
	if seen[1].data["pattern"] != `rm\s+-rf` {
		t.Errorf("unsafe command audit = %v", seen[1].data)
	}
}

func TestDispatchPanicRecovery(t *testing.T) {
	d := testDispatcher(t, config.Policy{AutoConfirm: true}, nil)

	result := d.Dispatch(context.Background(), "boom", map[string]any{})
	if result.OK {
		t.Fatal("panicking handler reported success")
	}
	if result.Err.Code != CodeTool {
		t.Errorf("code = %s, want %s", result.Err.Code, CodeTool)
	}
}

func TestRegistryRejectsBadSpecs(t *testing.T) {
	if _, err := NewRegistry(&Spec{Name: ""}); err == nil {
		t.Error("empty name accepted")
	}

	dup := &Spec{Name: "x", Callable: false}
	if _, err := NewRegistry(dup, &Spec{Name: "x"}); err == nil {
		t.Error("duplicate name accepted")
	}

	if _, err := NewRegistry(&Spec{Name: "y", Callable: true}); err == nil {
		t.Error("callable spec without handler accepted")
	}
}

func TestRegistryDefinitions(t *testing.T) {
	registry := testRegistry(t)

	all := registry.Definitions(nil)
	if len(all) != 4 {
		t.Errorf("got %d definitions, want 4 visible tools", len(all))
	}

	scoped := registry.Definitions([]string{"echo"})
	if len(scoped) != 1 || scoped[0].Name != "echo" {
		t.Errorf("scoped definitions = %v", scoped)
	}
}

func TestCommandEvaluator(t *testing.T) {
	e, err := NewCommandEvaluator([]string{`rm\s+-rf`, `mkfs`})
	if err != nil {
		t.Fatalf("NewCommandEvaluator: %v", err)
	}

	if got := e.Evaluate("rm -rf build"); got != `rm\s+-rf` {
		t.Errorf("Evaluate = %q", got)
	}
	if got := e.Evaluate("go test ./..."); got != "" {
		t.Errorf("safe command matched %q", got)
	}

	if _, err := NewCommandEvaluator([]string{"("}); err == nil {
		t.Error("invalid pattern accepted")
	}
}
