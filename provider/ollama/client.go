// Package ollama adapts a local Ollama server to the llm.Provider contract.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/parley-ai/parley/llm"
)

// Client implements llm.Provider for Ollama's chat API.
type Client struct {
	client *api.Client
	model  string // default model when the request does not name one
}

// New creates an Ollama-backed provider. An empty host falls back to the
// OLLAMA_HOST environment variable or http://localhost:11434.
func New(host, model string) (*Client, error) {
	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, llm.NewValidationError("invalid ollama host", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, llm.NewValidationError("failed to create ollama client", err)
		}
	}

	return &Client{client: client, model: model}, nil
}

func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

func (c *Client) buildRequest(req *llm.Request, stream bool) (*api.ChatRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, llm.NewValidationError("model is required", nil)
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: toMessages(req.Messages),
		Stream:   &stream,
		Tools:    toTools(req.Tools),
		Options:  make(map[string]any),
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	for k, v := range req.Options {
		chatReq.Options[k] = v
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

	var chatResp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}
	return fromChatResponse(chatResp), nil
}

// Stream implements llm.Provider.Stream. Ollama delivers chunks through a
// callback already, so each chunk maps directly onto one fragment; tool
// calls arrive complete within a chunk.
func (c *Client) Stream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewValidationError("request is required", nil)
	}

	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}

	acc := llm.Accumulator{}
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		frag := llm.Fragment{
			Text:      resp.Message.Content,
			ToolCalls: fromToolCalls(resp.Message.ToolCalls),
			Model:     resp.Model,
		}
		if resp.Done {
			frag.Usage = fromMetrics(resp)
			frag.FinishReason = fromDoneReason(resp)
		}
		acc = acc.Add(frag)
		if onFragment != nil {
			return onFragment(frag)
		}
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}
	return acc.Response(), nil
}

// FormatTools implements llm.Provider.FormatTools.
func (c *Client) FormatTools(tools []llm.ToolSpec) any {
	return toTools(tools)
}

// convertError classifies Ollama client errors into the llm taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if !errors.As(err, &statusErr) {
		return llm.NewNetworkError("ollama request failed", err)
	}
	msg := statusErr.ErrorMessage
	if msg == "" {
		msg = statusErr.Status
	}
	return llm.ClassifyStatus(statusErr.StatusCode, "ollama: "+msg, err)
}

var _ llm.Provider = (*Client)(nil)
