// Package ollama provides a completion client backed by a local Ollama
// runtime, for running open-source models without an API key.
package ollama

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/llm/llmerrors"
)

// DefaultHost is the default Ollama server URL.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.CompletionClient.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a client for the given Ollama host and model.
func NewClient(hostURL, model string) llm.CompletionClient {
	if hostURL == "" {
		hostURL = DefaultHost
	}
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements the llm.CompletionClient interface.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		messages = append(messages, api.Message{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Content,
		})
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": maxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}

	return llm.CompletionResponse{
		Content: response.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// ModelName returns the model this client targets.
func (c *Client) ModelName() string {
	return c.model
}
