// Package openai adapts OpenAI's chat completion API to the llm.Provider
// contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/parley-ai/parley/llm"
	openai "github.com/sashabaranov/go-openai"
)

// The OpenAI SDK does not expose retry-after headers on rate limit errors,
// so a fixed hint is attached instead.
const defaultRetryAfter = 60 * time.Second

// Client implements llm.Provider for OpenAI's API.
type Client struct {
	client *openai.Client
	model  string // default model when the request does not name one
}

// New creates an OpenAI-backed provider. apiKey is required; baseURL and
// organization are optional overrides for compatible endpoints.
func New(apiKey, baseURL, model, organization string) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewAuthenticationError("openai api key is required", nil)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (c *Client) buildRequest(req *llm.Request, stream bool) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, llm.NewValidationError("model is required", nil)
	}

	msgs, err := toMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
	}
	if stream {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if topP, ok := req.Options["top_p"].(float64); ok {
		chatReq.TopP = float32(topP)
	}
	return chatReq, nil
}

// Chat implements llm.Provider.Chat.
func (c *Client) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewValidationError("request is required", nil)
	}

	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewAPIError("no choices in response", 0, nil)
	}

	choice := chatResp.Choices[0]
	resp := &llm.Response{
		Model:        chatResp.Model,
		ToolCalls:    fromToolCalls(choice.Message.ToolCalls),
		Usage:        fromUsage(&chatResp.Usage),
		FinishReason: fromFinishReason(choice.FinishReason),
	}
	if choice.Message.Content != "" {
		resp.Content = llm.String(choice.Message.Content)
	}
	return resp, nil
}

// Stream implements llm.Provider.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewValidationError("request is required", nil)
	}

	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	defer func() { _ = stream.Close() }()

	return consumeStream(stream, onFragment)
}

// FormatTools implements llm.Provider.FormatTools.
func (c *Client) FormatTools(tools []llm.ToolSpec) any {
	return toTools(tools)
}

// convertError classifies OpenAI SDK errors into the llm taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewNetworkError("openai request failed", err)
	}

	if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("openai rate limit: %s", apiErr.Message),
			&retryAfter,
			err,
		)
	}
	return llm.ClassifyStatus(apiErr.HTTPStatusCode, fmt.Sprintf("openai: %s", apiErr.Message), err)
}

var _ llm.Provider = (*Client)(nil)
