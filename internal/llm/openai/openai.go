// Package openai implements llm.Client against any OpenAI-compatible
// chat-completions endpoint. Both upstream model servers speak this shape.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/httputil"
	"github.com/scisolve/scigateway/internal/llm"
)

type Client struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(model, apiKey, baseURL string) *Client {
	return &Client{
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httputil.DefaultClient(),
	}
}

// NewWithHTTPClient is used by tests and by callers that need custom
// transport timeouts.
func NewWithHTTPClient(model, apiKey, baseURL string, hc *http.Client) *Client {
	return &Client{model: model, apiKey: apiKey, baseURL: baseURL, client: hc}
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Tools       []llm.ToolDef `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      llm.Message `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage domain.Usage `json:"usage"`
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	body, err := json.Marshal(wireRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
		MaxTokens:   req.Sampling.MaxTokens,
		Tools:       req.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model endpoint error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("model endpoint returned no choices")
	}

	return &llm.Completion{
		Message:      wire.Choices[0].Message,
		FinishReason: wire.Choices[0].FinishReason,
		Usage:        wire.Usage,
	}, nil
}
