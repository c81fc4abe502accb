// Package openai provides the OpenAI completion client implementation using
// the official OpenAI Go package.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/llm/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Client wraps the official OpenAI Go client to implement llm.CompletionClient.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a raw OpenAI client; middleware is applied at a higher level.
func NewClient(apiKey, model string) llm.CompletionClient {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the llm.CompletionClient interface.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(float64(in.Temperature)),
	})
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(fmt.Errorf("openai chat completion failed: %w", err))
	}

	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from OpenAI")
	}

	return llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// ModelName returns the model this client targets.
func (c *Client) ModelName() string {
	return c.model
}
