package llm

import (
	"context"
	"testing"
)

// tagMiddleware appends its tag to the request's first message so tests can
// observe middleware ordering.
func tagMiddleware(tag string) Middleware {
	return func(next CompletionClient) CompletionClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				msgs := append([]CompletionMessage(nil), req.Messages...)
				msgs[0].Content += "|" + tag
				req.Messages = msgs
				return next.Complete(ctx, req)
			},
			next.ModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "ok"}}, nil)
	client := Chain(mock, tagMiddleware("outer"), tagMiddleware("inner"))

	_, err := client.Complete(context.Background(), NewCompletionRequest(
		[]CompletionMessage{NewUserMessage("base")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := mock.Requests()[0].Messages[0].Content
	want := "base|outer|inner"
	if got != want {
		t.Errorf("middleware order: got %q, want %q", got, want)
	}
}

func TestChainNoMiddleware(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "ok"}}, nil)
	client := Chain(mock)

	resp, err := client.Complete(context.Background(), NewCompletionRequest(
		[]CompletionMessage{NewUserMessage("hi")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want ok", resp.Content)
	}
	if client.ModelName() != "mock" {
		t.Errorf("model name passthrough broken: %q", client.ModelName())
	}
}
