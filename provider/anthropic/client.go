// Package anthropic adapts Anthropic's Messages API to the llm.Provider
// contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

// The Messages API requires max_tokens; this cap applies when the request
// does not set one.
const defaultMaxTokens = 4096

// Client implements llm.Provider for Anthropic's API.
type Client struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// New creates an Anthropic-backed provider.
func New(apiKey string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewAuthenticationError("anthropic api key is required", nil)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

func buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	if req.Model == "" {
		return anthropic.MessageNewParams{}, llm.NewValidationError("model is required", nil)
	}

	msgs, system := toMessageParams(req.Messages)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
		Tools:     toToolUnionParams(req.Tools),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params, nil
}

// Chat implements llm.Provider.Chat.
func (c *Client) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewValidationError("request is required", nil)
	}

	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}
	return fromMessage(message), nil
}

// Stream implements llm.Provider.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewValidationError("request is required", nil)
	}

	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	return consumeStream(stream, onFragment)
}

// FormatTools implements llm.Provider.FormatTools.
func (c *Client) FormatTools(tools []llm.ToolSpec) any {
	return toToolUnionParams(tools)
}

// convertError classifies Anthropic SDK errors into the llm taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewNetworkError("anthropic request failed", err)
	}

	if apiErr.StatusCode == http.StatusTooManyRequests {
		return llm.NewRateLimitError(
			fmt.Sprintf("anthropic rate limit: %s", apiErr.Error()),
			retryAfterHint(apiErr.Response),
			err,
		)
	}
	return llm.ClassifyStatus(apiErr.StatusCode, fmt.Sprintf("anthropic: %s", apiErr.Error()), err)
}

// retryAfterHint reads the Retry-After header when the API sends one.
func retryAfterHint(resp *http.Response) *time.Duration {
	if resp == nil {
		return nil
	}
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return nil
	}
	return llm.Duration(time.Duration(seconds) * time.Second)
}

var _ llm.Provider = (*Client)(nil)
