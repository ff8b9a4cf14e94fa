package models

import "time"

// Usage represents token usage from an LLM response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord is one successful generation call.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Operation        string    `json:"operation"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates generation calls per operation, provider and model.
type UsageSummary struct {
	Operation       string  `json:"operation"`
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	RequestCount    int     `json:"request_count"`
	TotalPrompt     int     `json:"total_prompt"`
	TotalCompletion int     `json:"total_completion"`
	TotalTokens     int     `json:"total_tokens"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}
