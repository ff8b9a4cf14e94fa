// Package openai implements embedding.Embedder against an OpenAI-compatible
// /embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/models"
)

// Client requests embeddings over HTTP. The API key is read from the
// configured environment variable on every call.
type Client struct {
	endpoint   string
	model      string
	apiKeyEnv  string
	dimensions int
	client     *http.Client
}

// New creates a Client from the embedder configuration.
func New(cfg config.EmbedderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.URL,
		model:      cfg.Model,
		apiKeyEnv:  cfg.APIKeyEnv,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}
}

// Dimension implements embedding.Embedder.
func (c *Client) Dimension() int { return c.dimensions }

// Embed implements embedding.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(models.EmbeddingRequest{
		Model:          c.model,
		Input:          text,
		EncodingFormat: "float",
		Dimensions:     c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	if c.apiKeyEnv != "" {
		key := os.Getenv(c.apiKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("empty api key from env %s", c.apiKeyEnv)
		}
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed: (%d) %s", resp.StatusCode, data)
	}

	var er models.EmbeddingResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return er.Data[0].Embedding, nil
}
