package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"agentd/pkg/llm/llmerrors"
)

type scriptedProvider struct {
	name  string
	err   error
	resp  CompletionResponse
	calls int
	delay time.Duration
}

func (p *scriptedProvider) Complete(ctx context.Context, _ CompletionRequest) (CompletionResponse, error) {
	p.calls++
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return CompletionResponse{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return CompletionResponse{}, p.err
	}
	return p.resp, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	return SingleShotStream(ctx, p, in)
}

func (p *scriptedProvider) ModelName() string { return p.name }

func TestFailoverPrimarySucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "primary", resp: CompletionResponse{Content: "ok"}}
	backup := &scriptedProvider{name: "backup"}

	f, err := NewFailover([]Client{primary, backup}, 0, nil)
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	resp, err := f.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times, want 0", backup.calls)
	}
	if f.ModelName() != "primary" {
		t.Errorf("ModelName = %q", f.ModelName())
	}
}

func TestFailoverFallsThroughToNextProvider(t *testing.T) {
	var events []FailoverEvent
	primary := &scriptedProvider{
		name: "primary",
		err:  llmerrors.NewError(llmerrors.ErrorTypeTransient, "upstream 503"),
	}
	backup := &scriptedProvider{name: "backup", resp: CompletionResponse{Content: "from backup"}}

	f, err := NewFailover([]Client{primary, backup}, 0, func(e FailoverEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	resp, err := f.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from backup" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(events) != 1 || events[0].FromModel != "primary" || events[0].Reason != "transient" {
		t.Errorf("events = %+v", events)
	}
}

func TestFailoverChainExhausted(t *testing.T) {
	a := &scriptedProvider{name: "a", err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "down")}
	b := &scriptedProvider{name: "b", err: llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "quota")}

	f, err := NewFailover([]Client{a, b}, 0, nil)
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	_, err = f.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("err = %v, want ErrChainExhausted", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d, %d", a.calls, b.calls)
	}
}

func TestFailoverBadPromptDoesNotFailOver(t *testing.T) {
	primary := &scriptedProvider{
		name: "primary",
		err:  llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "context length exceeded"),
	}
	backup := &scriptedProvider{name: "backup", resp: CompletionResponse{Content: "unused"}}

	f, err := NewFailover([]Client{primary, backup}, 0, nil)
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	_, err = f.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("want error")
	}
	if errors.Is(err, ErrChainExhausted) {
		t.Error("bad prompt must not exhaust the chain")
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times, want 0", backup.calls)
	}
}

func TestFailoverRequestTimeout(t *testing.T) {
	slow := &scriptedProvider{name: "slow", delay: 200 * time.Millisecond, resp: CompletionResponse{Content: "late"}}
	fast := &scriptedProvider{name: "fast", resp: CompletionResponse{Content: "fast"}}

	f, err := NewFailover([]Client{slow, fast}, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	resp, err := f.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "fast" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestFailoverCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failing := &scriptedProvider{name: "a", err: fmt.Errorf("boom")}
	backup := &scriptedProvider{name: "b", resp: CompletionResponse{Content: "unused"}}

	f, err := NewFailover([]Client{failing, backup}, 0, nil)
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	_, err = f.Complete(ctx, CompletionRequest{})
	if err == nil {
		t.Fatal("want error")
	}
	if backup.calls != 0 {
		t.Errorf("backup called after cancellation")
	}
}

func TestFailoverEmptyChain(t *testing.T) {
	if _, err := NewFailover(nil, 0, nil); err == nil {
		t.Error("empty chain must be rejected")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := &breaker{}
	if !b.allow() {
		t.Fatal("fresh breaker must allow")
	}
	for i := 0; i < breakerThreshold; i++ {
		b.recordFailure()
	}
	if b.allow() {
		t.Error("breaker must open after threshold failures")
	}
}

func TestBreakerResetOnSuccess(t *testing.T) {
	b := &breaker{}
	b.recordFailure()
	b.recordFailure()
	b.recordSuccess()
	b.recordFailure()
	if !b.allow() {
		t.Error("success must reset the failure count")
	}
}

func TestChainComposesOutsideIn(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(next Client) Client {
			complete := func(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
				order = append(order, tag)
				return next.Complete(ctx, in)
			}
			return WrapClient(complete, next.Stream, next.ModelName)
		}
	}

	base := &scriptedProvider{name: "base", resp: CompletionResponse{Content: "done"}}
	client := Chain(base, mw("outer"), mw("inner"))

	resp, err := client.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("order = %v", order)
	}
	if client.ModelName() != "base" {
		t.Errorf("ModelName = %q", client.ModelName())
	}
}

func TestWithRetryRetriesTransient(t *testing.T) {
	attempts := 0
	base := WrapClient(
		func(context.Context, CompletionRequest) (CompletionResponse, error) {
			attempts++
			if attempts < 2 {
				return CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no content")
			}
			return CompletionResponse{Content: "second time"}, nil
		},
		func(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
			return nil, fmt.Errorf("unused")
		},
		func() string { return "flaky" },
	)

	client := Chain(base, WithRetry())
	resp, err := client.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "second time" {
		t.Errorf("Content = %q", resp.Content)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestWithRetryGivesUpOnAuth(t *testing.T) {
	attempts := 0
	base := WrapClient(
		func(context.Context, CompletionRequest) (CompletionResponse, error) {
			attempts++
			return CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
		},
		func(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
			return nil, fmt.Errorf("unused")
		},
		func() string { return "locked" },
	)

	client := Chain(base, WithRetry())
	_, err := client.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("want error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want llmerrors.ErrorType
	}{
		{"deadline", context.DeadlineExceeded, llmerrors.ErrorTypeTimeout},
		{"rate limit text", fmt.Errorf("got 429 too many requests"), llmerrors.ErrorTypeRateLimit},
		{"auth text", fmt.Errorf("invalid api key"), llmerrors.ErrorTypeAuth},
		{"server error", fmt.Errorf("upstream returned 503"), llmerrors.ErrorTypeTransient},
		{"prompt too long", fmt.Errorf("prompt exceeds context length"), llmerrors.ErrorTypeBadPrompt},
		{"mystery", fmt.Errorf("gremlins"), llmerrors.ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llmerrors.Classify(tt.err)
			if got.Type != tt.want {
				t.Errorf("Classify(%v).Type = %s, want %s", tt.err, got.Type, tt.want)
			}
		})
	}
}

func TestSingleShotStream(t *testing.T) {
	p := &scriptedProvider{name: "p", resp: CompletionResponse{Content: "hello"}}
	ch, err := SingleShotStream(context.Background(), p, CompletionRequest{})
	if err != nil {
		t.Fatalf("SingleShotStream: %v", err)
	}

	var content string
	var done bool
	for chunk := range ch {
		if chunk.Error != nil {
			t.Fatalf("chunk error: %v", chunk.Error)
		}
		content += chunk.Content
		done = done || chunk.Done
	}
	if content != "hello" || !done {
		t.Errorf("content = %q done = %v", content, done)
	}
}
