package planner

import (
	"context"
	"errors"
	"testing"

	"agentd/pkg/config"
	"agentd/pkg/eventlog"
	"agentd/pkg/llm"
	"agentd/pkg/plan"
	"agentd/pkg/proto"
)

type fakeClient struct {
	responses []llm.CompletionResponse
	err       error
	calls     int
}

func (c *fakeClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	if c.err != nil {
		return llm.CompletionResponse{}, c.err
	}
	c.calls++
	if len(c.responses) == 0 {
		return llm.CompletionResponse{}, nil
	}
	i := c.calls - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

func (c *fakeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.SingleShotStream(ctx, c, in)
}

func (c *fakeClient) ModelName() string { return "fake" }

func limits() config.Limits {
	return config.Limits{
		MaxPlanSteps:     10,
		MaxReplans:       2,
		PlanRetryBudget:  3,
		ParseRetryBudget: 2,
	}
}

func TestGenerate(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResponse{
		{Content: `{"title": "fix bug", "steps": [{"id": "s1", "description": "find it"}, {"id": "s2", "description": "fix it", "dependencies": ["s1"]}]}`},
	}}
	p := New(client, limits(), eventlog.NewStream("t", nil))

	got, err := p.Generate(context.Background(), "fix the bug", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Title != "fix bug" || len(got.Steps) != 2 {
		t.Errorf("plan = %+v", got)
	}
}

func TestGenerateRetriesOnParseFailure(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResponse{
		{Content: "I think we should start by reading the code."},
		{Content: `{"title": "ok", "steps": [{"id": "s1", "description": "read"}]}`},
	}}
	p := New(client, limits(), eventlog.NewStream("t", nil))

	got, err := p.Generate(context.Background(), "goal", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got.Steps) != 1 {
		t.Errorf("plan = %+v", got)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestGenerateBudgetExhausted(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResponse{
		{Content: "still not a plan"},
	}}
	p := New(client, limits(), eventlog.NewStream("t", nil))

	_, err := p.Generate(context.Background(), "goal", "")
	if err == nil {
		t.Fatal("Generate succeeded with unparseable replies")
	}
	if client.calls != limits().PlanRetryBudget {
		t.Errorf("calls = %d, want %d", client.calls, limits().PlanRetryBudget)
	}
}

func TestGenerateModelError(t *testing.T) {
	wantErr := errors.New("connection refused")
	p := New(&fakeClient{err: wantErr}, limits(), eventlog.NewStream("t", nil))

	_, err := p.Generate(context.Background(), "goal", "")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v", err)
	}
}

func TestGenerateDisguisedToolCall(t *testing.T) {
	tests := []struct {
		name string
		resp llm.CompletionResponse
	}{
		{
			name: "native tool call",
			resp: llm.CompletionResponse{ToolCalls: []llm.ToolCall{
				{Name: "read_file", Parameters: map[string]any{"path": "x"}},
			}},
		},
		{
			name: "json tool shape",
			resp: llm.CompletionResponse{Content: `{"tool": "read_file", "arguments": {"path": "x"}}`},
		},
		{
			name: "json name and args shape",
			resp: llm.CompletionResponse{Content: `{"name": "read_file", "args": {"path": "x"}}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := eventlog.NewStream("t", nil)
			sub := events.Subscribe()
			p := New(&fakeClient{responses: []llm.CompletionResponse{tt.resp}}, limits(), events)

			got, err := p.Generate(context.Background(), "read that file", "")
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if len(got.Steps) != 1 || got.Steps[0].ID != "step-1" {
				t.Errorf("plan = %+v", got)
			}
			if got.Steps[0].ToolsExpected[0] != "read_file" {
				t.Errorf("ToolsExpected = %v", got.Steps[0].ToolsExpected)
			}

			select {
			case e := <-sub:
				if e.Name != proto.EventPlanLeniency {
					t.Errorf("event = %s, want %s", e.Name, proto.EventPlanLeniency)
				}
			default:
				t.Error("no leniency event emitted")
			}
		})
	}
}

func TestReplan(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResponse{
		{Content: `{"title": "retry", "steps": [{"id": "r1", "description": "other approach"}]}`},
	}}
	p := New(client, limits(), eventlog.NewStream("t", nil))

	failed := &plan.Step{ID: "s1", Description: "broken step"}
	got, err := p.Replan(context.Background(), "goal", failed, "command not found", 0)
	if err != nil {
		t.Fatalf("Replan: %v", err)
	}
	if got == nil || got.Title != "retry" {
		t.Errorf("plan = %+v", got)
	}
}

func TestReplanBudgetSpent(t *testing.T) {
	client := &fakeClient{}
	p := New(client, limits(), eventlog.NewStream("t", nil))

	got, err := p.Replan(context.Background(), "goal", &plan.Step{ID: "s1"}, "reason", limits().MaxReplans)
	if err != nil {
		t.Fatalf("Replan: %v", err)
	}
	if got != nil {
		t.Error("Replan returned a plan past the budget")
	}
	if client.calls != 0 {
		t.Errorf("model called %d times past the budget", client.calls)
	}
}
