package llm

import "context"

// Middleware wraps a Client with additional behavior. Middlewares are
// composed with Chain to build the processing pipeline.
type Middleware func(next Client) Client

// clientFunc adapts plain functions to the Client interface.
type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream    func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, in)
}

func (f clientFunc) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, in)
}

func (f clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient creates a Client from function implementations. Middleware
// implementations use this to wrap behavior around an inner client.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	modelName func() string,
) Client {
	return clientFunc{complete: complete, stream: stream, modelName: modelName}
}

// Chain composes middlewares around a base client. Chain(c, mw1, mw2)
// produces the call stack mw1 -> mw2 -> c, so earlier middlewares are
// outermost and may short-circuit.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
