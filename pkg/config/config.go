package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docqa/docqa/pkg/models"
)

// Config holds all docqa configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	DBPath      string            `yaml:"db_path"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Providers   []ProviderConfig  `yaml:"providers"`
	Router      RouterConfig      `yaml:"router"`
	Matching    MatchingConfig    `yaml:"matching"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Storage     StorageConfig     `yaml:"storage"`
	Budget      BudgetConfig      `yaml:"budget"`
	Log         LogConfig         `yaml:"log"`
}

// EmbedderConfig configures the OpenAI-compatible embedding endpoint.
type EmbedderConfig struct {
	URL        string        `yaml:"url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// VectorStoreConfig selects the vector store. Type is "qdrant" (default) or "memory".
type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	ScrollSize int    `yaml:"scroll_size"`
}

// ProviderConfig defines an OpenAI-compatible chat completion provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RouterConfig maps an operation ("ask", "summarize", "extract") to an
// ordered list of providers to try.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig is the fallback chain for a single operation.
type RouteConfig struct {
	Operation string        `yaml:"operation"`
	Targets   []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a provider and an optional model override.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// MatchingConfig holds the tuning constants of the response cache.
type MatchingConfig struct {
	LexicalWeight    float64  `yaml:"lexical_weight"`
	SemanticWeight   float64  `yaml:"semantic_weight"`
	CanonicalCutoff  float64  `yaml:"canonical_cutoff"`
	HitThreshold     float64  `yaml:"hit_threshold"`
	CanonicalQueries []string `yaml:"canonical_queries"`
}

// RetrievalConfig controls vector search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// StorageConfig controls SQLite contention handling.
type StorageConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// BudgetConfig caps generation tokens. Cache hits are never counted.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// LogConfig controls the zap logger. Format is "json" or "console".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultCanonicalQueries are the common invoice questions paraphrases are folded onto.
var DefaultCanonicalQueries = []string{
	"What is the total amount?",
	"What is the due date?",
	"Who is the recipient of the invoice?",
	"Who should make the payment?",
	"To whom is the invoice addressed?",
	"What is the invoice number?",
	"What is the payment method?",
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		DBPath: "docqa.db",
		Embedder: EmbedderConfig{
			URL:        "https://api.openai.com/v1/embeddings",
			APIKeyEnv:  "OPENAI_API_KEY",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
			Timeout:    30 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Type:       "qdrant",
			Host:       "localhost",
			Port:       6334,
			Collection: "invoice_embeddings",
			ScrollSize: 1000,
		},
		Providers: []ProviderConfig{
			{
				Name:        "openrouter",
				URL:         "https://openrouter.ai/api/v1",
				APIKey:      "${OPENROUTER_API_KEY}",
				Model:       "google/gemini-2.0-flash-exp:free",
				Temperature: 0.3,
				MaxTokens:   150,
				Timeout:     60 * time.Second,
			},
		},
		Matching: MatchingConfig{
			LexicalWeight:    0.7,
			SemanticWeight:   0.3,
			CanonicalCutoff:  85,
			HitThreshold:     0.65,
			CanonicalQueries: append([]string(nil), DefaultCanonicalQueries...),
		},
		Retrieval: RetrievalConfig{TopK: 3},
		Storage: StorageConfig{
			MaxRetries:   3,
			RetryBackoff: 50 * time.Millisecond,
			BusyTimeout:  10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
// Provider API keys in the defaults are expanded from the environment.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		for i := range cfg.Providers {
			cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
		}
		return cfg, nil
	}
	return Load(path)
}

// Validate checks the matching constants for obviously broken values.
func (c *Config) Validate() error {
	m := c.Matching
	if m.LexicalWeight < 0 || m.SemanticWeight < 0 {
		return fmt.Errorf("invalid config: matching weights must not be negative")
	}
	if m.LexicalWeight+m.SemanticWeight == 0 {
		return fmt.Errorf("invalid config: matching weights must not both be zero")
	}
	if m.HitThreshold <= 0 || m.HitThreshold > 1 {
		return fmt.Errorf("invalid config: hit_threshold %v out of (0,1]", m.HitThreshold)
	}
	if m.CanonicalCutoff < 0 || m.CanonicalCutoff > 100 {
		return fmt.Errorf("invalid config: canonical_cutoff %v out of [0,100]", m.CanonicalCutoff)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid config: retrieval.top_k must be positive")
	}
	for i, p := range c.Budget.Policies {
		if p.MaxTokens <= 0 {
			return fmt.Errorf("invalid config: budget.policies[%d].max_tokens must be positive", i)
		}
		switch p.Period {
		case models.BudgetDaily, models.BudgetMonthly:
		default:
			return fmt.Errorf("invalid config: budget.policies[%d].period %q", i, p.Period)
		}
	}
	return nil
}
