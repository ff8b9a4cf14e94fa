// Package openai implements generation.Generator against an OpenAI-compatible
// chat completions endpoint such as OpenRouter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/generation"
	"github.com/docqa/docqa/pkg/models"
	"github.com/docqa/docqa/pkg/router"
)

const maxErrorBody = 512

// Client sends single-message chat completion requests.
type Client struct {
	provider config.ProviderConfig
	model    string
	client   *http.Client
}

// New creates a Client for provider p requesting model.
func New(p config.ProviderConfig, model string) *Client {
	if model == "" {
		model = p.Model
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{provider: p, model: model, client: &http.Client{Timeout: timeout}}
}

// FromRoute is a generation.Factory.
func FromRoute(r router.Route) generation.Generator {
	return New(r.Provider, r.Model)
}

// Complete implements generation.Generator.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	out, _, err := c.CompleteWithUsage(ctx, prompt)
	return out, err
}

// CompleteWithUsage implements generation.UsageReporter. Usage is zero when
// the provider omits it.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string) (string, models.Usage, error) {
	var usage models.Usage
	temp := c.provider.Temperature
	req := models.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []models.ChatMessage{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}
	if c.provider.MaxTokens > 0 {
		maxTokens := c.provider.MaxTokens
		req.MaxTokens = &maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", usage, fmt.Errorf("marshal completion request: %w", err)
	}

	url := strings.TrimRight(c.provider.URL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", usage, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.provider.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", usage, &generation.UpstreamError{Provider: c.provider.Name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", usage, &generation.UpstreamError{Provider: c.provider.Name, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", usage, &generation.UpstreamError{Provider: c.provider.Name, StatusCode: resp.StatusCode, Message: msg}
	}

	var cr models.ChatCompletionResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", usage, &generation.UpstreamError{Provider: c.provider.Name, Message: "decode response", Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", usage, &generation.UpstreamError{Provider: c.provider.Name, Message: "response has no choices"}
	}
	if cr.Usage != nil {
		usage = *cr.Usage
	}
	return cr.Choices[0].Message.Content, usage, nil
}
