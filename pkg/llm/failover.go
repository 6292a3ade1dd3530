package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentd/pkg/llm/llmerrors"
	"agentd/pkg/logx"
)

// ErrChainExhausted is returned when every provider in the failover chain
// has failed for one request.
var ErrChainExhausted = errors.New("provider failover chain exhausted")

// ErrTimeout wraps per-provider request timeouts so callers can distinguish
// them from generic failures.
var ErrTimeout = errors.New("model request timed out")

const (
	breakerThreshold = 3
	breakerCooldown  = 60 * time.Second
)

// breaker is a consecutive-failure circuit breaker for one provider.
type breaker struct {
	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= breakerThreshold {
		b.openUntil = time.Now().Add(breakerCooldown)
		b.failures = 0
	}
}

type providerEntry struct {
	name    string
	client  Client
	breaker *breaker
}

// FailoverEvent describes one hop from a failed provider to the next.
type FailoverEvent struct {
	FromModel string
	Reason    string
}

// Failover tries an ordered chain of provider clients. Providers are tried
// sequentially, never as a concurrent fan-out; each gets a bounded request
// timeout, and a provider that keeps failing is skipped while its breaker
// cools down.
type Failover struct {
	entries        []providerEntry
	requestTimeout time.Duration
	onFailover     func(FailoverEvent)
	logger         *logx.Logger
}

// NewFailover builds a failover chain over the given clients, in order.
// onFailover may be nil.
func NewFailover(clients []Client, requestTimeout time.Duration, onFailover func(FailoverEvent)) (*Failover, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("failover chain must contain at least one client")
	}
	entries := make([]providerEntry, len(clients))
	for i, c := range clients {
		entries[i] = providerEntry{name: c.ModelName(), client: c, breaker: &breaker{}}
	}
	return &Failover{
		entries:        entries,
		requestTimeout: requestTimeout,
		onFailover:     onFailover,
		logger:         logx.NewLogger("llm-failover"),
	}, nil
}

// ModelName returns the name of the primary provider.
func (f *Failover) ModelName() string {
	return f.entries[0].name
}

// Complete tries each provider in order until one succeeds.
func (f *Failover) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for i := range f.entries {
		entry := &f.entries[i]
		if !entry.breaker.allow() {
			f.logger.Debug("skipping %s: circuit breaker open", entry.name)
			continue
		}

		resp, err := f.completeOne(ctx, entry, in)
		if err == nil {
			entry.breaker.recordSuccess()
			return resp, nil
		}
		lastErr = err
		entry.breaker.recordFailure()

		// Non-retryable prompt errors will fail identically everywhere.
		if llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt) {
			return CompletionResponse{}, err
		}
		if ctx.Err() != nil {
			return CompletionResponse{}, llmerrors.Classify(ctx.Err())
		}

		f.logger.Warn("provider %s failed, failing over: %v", entry.name, err)
		if f.onFailover != nil {
			f.onFailover(FailoverEvent{FromModel: entry.name, Reason: llmerrors.TypeOf(err).String()})
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all providers skipped by open circuit breakers")
	}
	return CompletionResponse{}, fmt.Errorf("%w: %w", ErrChainExhausted, lastErr)
}

func (f *Failover) completeOne(ctx context.Context, entry *providerEntry, in CompletionRequest) (CompletionResponse, error) {
	callCtx := ctx
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	resp, err := entry.client.Complete(callCtx, in)
	if err != nil && callCtx.Err() != nil && ctx.Err() == nil {
		return CompletionResponse{}, fmt.Errorf("%w: provider %s", ErrTimeout, entry.name)
	}
	return resp, err
}

// Stream streams from the first healthy provider; mid-stream failures are
// surfaced to the caller rather than restarted on another provider.
func (f *Failover) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]
		if !entry.breaker.allow() {
			continue
		}
		ch, err := entry.client.Stream(ctx, in)
		if err == nil {
			entry.breaker.recordSuccess()
			return ch, nil
		}
		lastErr = err
		entry.breaker.recordFailure()
		if f.onFailover != nil {
			f.onFailover(FailoverEvent{FromModel: entry.name, Reason: llmerrors.TypeOf(err).String()})
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all providers skipped by open circuit breakers")
	}
	return nil, fmt.Errorf("%w: %w", ErrChainExhausted, lastErr)
}
