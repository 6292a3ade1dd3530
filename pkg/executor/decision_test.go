package executor

import (
	"strings"
	"testing"

	"agentd/pkg/llm"
)

func TestDecodeNativeToolCall(t *testing.T) {
	resp := &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "read_file", Parameters: map[string]any{"path": "main.go"}},
		},
	}

	d := DecodeDecision(resp, 50)
	if d.Kind != DecisionToolCall {
		t.Fatalf("Kind = %v, want DecisionToolCall", d.Kind)
	}
	if d.Tool != "read_file" || d.Args["path"] != "main.go" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestDecodeNativeCallWinsOverContent(t *testing.T) {
	resp := &llm.CompletionResponse{
		Content: `{"tool": "write_file", "args": {"path": "x"}}`,
		ToolCalls: []llm.ToolCall{
			{Name: "read_file", Parameters: map[string]any{"path": "y"}},
		},
	}

	d := DecodeDecision(resp, 50)
	if d.Tool != "read_file" {
		t.Errorf("Tool = %q, want the native call to win", d.Tool)
	}
}

func TestDecodeJSONToolCall(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantTool string
		wantArg  string
	}{
		{
			name:     "tool and arguments keys",
			content:  `{"tool": "shell", "arguments": {"command": "ls"}}`,
			wantTool: "shell",
			wantArg:  "ls",
		},
		{
			name:     "name and args keys",
			content:  `{"name": "shell", "args": {"command": "ls"}}`,
			wantTool: "shell",
			wantArg:  "ls",
		},
		{
			name:     "fenced with prose",
			content:  "I'll list the files.\n```json\n{\"tool\": \"shell\", \"arguments\": {\"command\": \"ls\"}}\n```",
			wantTool: "shell",
			wantArg:  "ls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecodeDecision(&llm.CompletionResponse{Content: tt.content}, 50)
			if d.Kind != DecisionToolCall {
				t.Fatalf("Kind = %v, want DecisionToolCall", d.Kind)
			}
			if d.Tool != tt.wantTool {
				t.Errorf("Tool = %q, want %q", d.Tool, tt.wantTool)
			}
			if d.Args["command"] != tt.wantArg {
				t.Errorf("Args = %v", d.Args)
			}
		})
	}
}

func TestDecodeSignals(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    DecisionKind
	}{
		{"step done as tool", `{"tool": "step_done", "arguments": {"summary": "patched"}}`, DecisionStepDone},
		{"replan as tool", `{"tool": "replan", "arguments": {"reason": "file moved"}}`, DecisionReplan},
		{"final answer as tool", `{"tool": "final_answer", "arguments": {"answer": "all set"}}`, DecisionFinalAnswer},
		{"bare summary field", `{"summary": "patched"}`, DecisionStepDone},
		{"bare answer field", `{"answer": "all set"}`, DecisionFinalAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecodeDecision(&llm.CompletionResponse{Content: tt.content}, 50)
			if d.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", d.Kind, tt.want)
			}
		})
	}
}

func TestDecodeSignalsAsNativeCalls(t *testing.T) {
	resp := &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{
			{Name: "step_done", Parameters: map[string]any{"summary": "done with step"}},
		},
	}

	d := DecodeDecision(resp, 50)
	if d.Kind != DecisionStepDone {
		t.Fatalf("Kind = %v, want DecisionStepDone", d.Kind)
	}
	if d.Summary != "done with step" {
		t.Errorf("Summary = %q", d.Summary)
	}
}

func TestDecodePlainText(t *testing.T) {
	d := DecodeDecision(&llm.CompletionResponse{Content: "Let me think about this."}, 50)
	if d.Kind != DecisionText {
		t.Fatalf("Kind = %v, want DecisionText", d.Kind)
	}
	if d.Text != "Let me think about this." {
		t.Errorf("Text = %q", d.Text)
	}
}

func TestDecodeUnparseable(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"json without tool or signal", `{"mood": "confused"}`},
		{"invalid json object", `{"tool": shell}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecodeDecision(&llm.CompletionResponse{Content: tt.content}, 50)
			if d.Kind != DecisionUnparseable {
				t.Errorf("Kind = %v, want DecisionUnparseable", d.Kind)
			}
		})
	}
}

func TestDecodeRunaway(t *testing.T) {
	d := DecodeDecision(&llm.CompletionResponse{Content: strings.Repeat("{", 60)}, 50)
	if d.Kind != DecisionRunaway {
		t.Fatalf("Kind = %v, want DecisionRunaway", d.Kind)
	}
}

func TestRunawayOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"long brace run", strings.Repeat("}", 50), true},
		{"short brace run", strings.Repeat("{", 10), false},
		{"long letter run is fine", strings.Repeat("a", 200), false},
		{"alternating brackets reset the run", strings.Repeat("{}", 100), false},
		{"run embedded in text", "result: " + strings.Repeat("]", 50), true},
		{"normal json", `{"a": {"b": [1, 2, 3]}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runawayOutput(tt.content, 50); got != tt.want {
				t.Errorf("runawayOutput() = %v, want %v", got, tt.want)
			}
		})
	}
}
