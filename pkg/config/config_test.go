package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docqa/docqa/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8000" {
		t.Errorf("expected :8000, got %s", cfg.Listen)
	}
	if cfg.Matching.LexicalWeight != 0.7 || cfg.Matching.SemanticWeight != 0.3 {
		t.Errorf("unexpected weights: %+v", cfg.Matching)
	}
	if cfg.Matching.CanonicalCutoff != 85 {
		t.Errorf("expected cutoff 85, got %v", cfg.Matching.CanonicalCutoff)
	}
	if cfg.Matching.HitThreshold != 0.65 {
		t.Errorf("expected threshold 0.65, got %v", cfg.Matching.HitThreshold)
	}
	if len(cfg.Matching.CanonicalQueries) != len(DefaultCanonicalQueries) {
		t.Errorf("expected %d canonical queries, got %d", len(DefaultCanonicalQueries), len(cfg.Matching.CanonicalQueries))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestDefaultCanonicalQueriesNotShared(t *testing.T) {
	cfg := Default()
	cfg.Matching.CanonicalQueries[0] = "changed"
	if DefaultCanonicalQueries[0] == "changed" {
		t.Error("Default must copy the canonical query set")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_ROUTER_KEY", "sk-test-123")

	content := `
listen: ":9090"
db_path: "test.db"
providers:
  - name: openrouter
    url: https://openrouter.ai/api/v1
    api_key: ${TEST_ROUTER_KEY}
    model: some/model
matching:
  hit_threshold: 0.8
  canonical_queries:
    - "What is the total amount?"
storage:
  max_retries: 5
  retry_backoff: 10ms
vector_store:
  type: memory
budget:
  enabled: true
  policies:
    - operation: extract
      max_tokens: 5000
      period: monthly
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers[0].APIKey)
	}
	if cfg.Matching.HitThreshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", cfg.Matching.HitThreshold)
	}
	// Unset keys keep their defaults.
	if cfg.Matching.LexicalWeight != 0.7 {
		t.Errorf("expected default lexical weight, got %v", cfg.Matching.LexicalWeight)
	}
	if len(cfg.Matching.CanonicalQueries) != 1 {
		t.Fatalf("expected 1 canonical query, got %d", len(cfg.Matching.CanonicalQueries))
	}
	if cfg.Storage.RetryBackoff != 10*time.Millisecond {
		t.Errorf("expected 10ms backoff, got %v", cfg.Storage.RetryBackoff)
	}
	if cfg.VectorStore.Type != "memory" {
		t.Errorf("expected memory vector store, got %s", cfg.VectorStore.Type)
	}
	if !cfg.Budget.Enabled || len(cfg.Budget.Policies) != 1 {
		t.Fatalf("expected one budget policy, got %+v", cfg.Budget)
	}
	if p := cfg.Budget.Policies[0]; p.Operation != "extract" || p.MaxTokens != 5000 || p.Period != models.BudgetMonthly {
		t.Errorf("unexpected budget policy %+v", p)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-env")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers[0].APIKey != "sk-env" {
		t.Errorf("expected expanded default key, got %q", cfg.Providers[0].APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Matching.LexicalWeight = -1 }},
		{"zero weights", func(c *Config) { c.Matching.LexicalWeight, c.Matching.SemanticWeight = 0, 0 }},
		{"threshold above one", func(c *Config) { c.Matching.HitThreshold = 1.5 }},
		{"zero threshold", func(c *Config) { c.Matching.HitThreshold = 0 }},
		{"negative threshold", func(c *Config) { c.Matching.HitThreshold = -0.1 }},
		{"cutoff above hundred", func(c *Config) { c.Matching.CanonicalCutoff = 101 }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"budget without tokens", func(c *Config) {
			c.Budget.Policies = []models.BudgetPolicy{{Period: models.BudgetDaily}}
		}},
		{"budget unknown period", func(c *Config) {
			c.Budget.Policies = []models.BudgetPolicy{{MaxTokens: 10, Period: "weekly"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
