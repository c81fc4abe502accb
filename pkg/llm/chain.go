package llm

import "context"

// Middleware represents a function that wraps a CompletionClient with
// additional behavior. Middlewares are composed using Chain() to create a
// processing pipeline.
type Middleware func(next CompletionClient) CompletionClient

// clientFunc is an adapter that allows plain functions to implement the
// CompletionClient interface.
type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient creates a new CompletionClient from the provided function
// implementations. This is a helper for middleware implementations.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	modelName func() string,
) CompletionClient {
	return clientFunc{complete: complete, modelName: modelName}
}

// Chain composes multiple middlewares around a base client.
// Middlewares are applied in order, with earlier middlewares being outermost:
//
//	Chain(client, mw1, mw2) creates the call stack mw1 -> mw2 -> client.
func Chain(base CompletionClient, middlewares ...Middleware) CompletionClient {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
