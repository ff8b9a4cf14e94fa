package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/generation"
	"github.com/docqa/docqa/pkg/models"
)

func newTestServer(t *testing.T, h http.HandlerFunc) config.ProviderConfig {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return config.ProviderConfig{
		Name:        "test",
		URL:         srv.URL + "/api/v1",
		APIKey:      "sk-test",
		Model:       "test-model",
		Temperature: 0.3,
		MaxTokens:   150,
	}
}

func TestComplete(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		var req models.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "test-model" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Temperature == nil || *req.Temperature != 0.3 {
			t.Errorf("expected temperature 0.3")
		}
		if req.MaxTokens == nil || *req.MaxTokens != 150 {
			t.Errorf("expected max_tokens 150")
		}
		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{{Message: models.ChatMessage{Role: "assistant", Content: "March 1"}}},
		})
	})

	out, err := New(p, "").Complete(context.Background(), "When is it due?")
	if err != nil {
		t.Fatal(err)
	}
	if out != "March 1" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCompleteStatusError(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := New(p, "").Complete(context.Background(), "x")
	if !errors.Is(err, generation.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	var ue *generation.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 upstream error, got %v", err)
	}
	if generation.Retryable(err) {
		t.Error("4xx should not be retryable")
	}
}

func TestCompleteServerErrorRetryable(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := New(p, "").Complete(context.Background(), "x")
	if !generation.Retryable(err) {
		t.Errorf("5xx should be retryable, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := New(p, "").Complete(context.Background(), "x"); !errors.Is(err, generation.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestCompleteTransportError(t *testing.T) {
	p := config.ProviderConfig{Name: "down", URL: "http://127.0.0.1:1"}
	_, err := New(p, "m").Complete(context.Background(), "x")
	if !errors.Is(err, generation.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !generation.Retryable(err) {
		t.Error("transport errors should be retryable")
	}
}

func TestCompleteWithUsage(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"$500"}}],
			"usage":{"prompt_tokens":40,"completion_tokens":2,"total_tokens":42}}`))
	})

	out, usage, err := New(p, "").CompleteWithUsage(context.Background(), "total?")
	if err != nil {
		t.Fatal(err)
	}
	if out != "$500" || usage.TotalTokens != 42 || usage.PromptTokens != 40 {
		t.Errorf("unexpected result %q %+v", out, usage)
	}
}
