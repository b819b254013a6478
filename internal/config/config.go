// Package config handles loading and validating Aria configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ariahq/aria/internal/observability"
	"github.com/ariahq/aria/internal/tools/mcp"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Aria.
type Config struct {
	// Listen is the gateway bind address. Default ":8080".
	// Override: ARIA_LISTEN env var.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`

	// Environment is "production" (default), "staging", or "development".
	// Local tool processes only connect in development unless force-enabled.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`

	Providers     ProvidersConfig        `json:"providers" yaml:"providers"`
	Rates         map[string]RateConfig  `json:"rates,omitempty" yaml:"rates,omitempty"`
	Assistant     AssistantConfig        `json:"assistant" yaml:"assistant"`
	Knowledge     KnowledgeConfig        `json:"knowledge" yaml:"knowledge"`
	Catalog       CatalogConfig          `json:"catalog" yaml:"catalog"`
	Cache         CacheConfig            `json:"cache" yaml:"cache"`
	RateLimits    map[string]LimitConfig `json:"rate_limits,omitempty" yaml:"rate_limits,omitempty"`
	Tools         ToolsConfig            `json:"tools" yaml:"tools"`
	Observability *observability.Config  `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ProvidersConfig holds per-backend credentials and model overrides.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI    ProviderConfig `json:"openai" yaml:"openai"`
	Groq      ProviderConfig `json:"groq" yaml:"groq"`
	Ollama    ProviderConfig `json:"ollama" yaml:"ollama"`
}

// ProviderConfig configures one LLM backend. An empty APIKey means the
// backend is unavailable, except Ollama, which is keyless and available when
// BaseURL is set.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// RateConfig overrides the cost table for one model id, in USD per 1K tokens.
type RateConfig struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// AssistantConfig shapes the chat turn loop.
type AssistantConfig struct {
	SystemPrompt       string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	MaxIterations      int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	MaxHistoryMessages int    `json:"max_history_messages,omitempty" yaml:"max_history_messages,omitempty"`
	MaxTokens          int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	WebSearch          bool   `json:"web_search" yaml:"web_search"` // provider-native web search flag
}

// KnowledgeConfig configures the retrieval engine.
type KnowledgeConfig struct {
	CorpusDir          string `json:"corpus_dir" yaml:"corpus_dir"`
	EmbeddingModel     string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"` // default "text-embedding-3-small"
	EmbeddingCachePath string `json:"embedding_cache_path,omitempty" yaml:"embedding_cache_path,omitempty"`
}

// CatalogConfig points at the music catalog seed data.
type CatalogConfig struct {
	Path string `json:"path" yaml:"path"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Disabled   bool         `json:"disabled" yaml:"disabled"`
	MaxEntries int          `json:"max_entries,omitempty" yaml:"max_entries,omitempty"` // clamped 10–1000, default 100
	TTLSeconds int          `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"` // clamped 60–86400, default 1800
	Redis      *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`             // nil = local-only
}

// TTL returns the configured TTL as a duration, zero when unset.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RedisConfig configures the optional distributed cache tier.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// LimitConfig is one named rate limit (e.g. "chat").
type LimitConfig struct {
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
	Max           int `json:"max" yaml:"max"`
}

// Window returns the window as a duration.
func (l LimitConfig) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

// ToolsConfig configures tool execution and local tool processes.
type ToolsConfig struct {
	MaxOutputBytes int  `json:"max_output_bytes,omitempty" yaml:"max_output_bytes,omitempty"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	LocalEnabled   bool `json:"local_enabled" yaml:"local_enabled"` // force-enable outside development

	Local []mcp.ServerConfig `json:"local,omitempty" yaml:"local,omitempty"`
}

// Timeout returns the per-tool timeout, zero when unset.
func (t ToolsConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// LocalToolsActive reports whether local tool processes should be connected:
// always in development, only when force-enabled elsewhere.
func (c *Config) LocalToolsActive() bool {
	return c.Environment == "development" || c.Tools.LocalEnabled
}

// Default returns a Config built from defaults and environment only.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML or JSON config file and applies env overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv applies environment overrides — env vars take precedence over
// config file values.
func (c *Config) applyEnv() {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		c.Providers.Anthropic.APIKey = envKey
	}
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		c.Providers.OpenAI.APIKey = envKey
	}
	if envKey := os.Getenv("GROQ_API_KEY"); envKey != "" {
		c.Providers.Groq.APIKey = envKey
	}
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		c.Providers.Ollama.BaseURL = envURL
	}
	if envAddr := os.Getenv("ARIA_LISTEN"); envAddr != "" {
		c.Listen = envAddr
	}
	if env := os.Getenv("ARIA_ENV"); env != "" {
		c.Environment = env
	}
	if envAddr := os.Getenv("ARIA_REDIS_ADDR"); envAddr != "" {
		if c.Cache.Redis == nil {
			c.Cache.Redis = &RedisConfig{}
		}
		c.Cache.Redis.Addr = envAddr
	}
	// Rate overrides as a JSON map, e.g. {"gpt-4o":{"input_per_1k":0.002}}.
	if envRates := os.Getenv("ARIA_RATE_OVERRIDES"); envRates != "" {
		overrides := make(map[string]RateConfig)
		if err := json.Unmarshal([]byte(envRates), &overrides); err == nil {
			if c.Rates == nil {
				c.Rates = make(map[string]RateConfig, len(overrides))
			}
			for id, r := range overrides {
				c.Rates[id] = r
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.Knowledge.EmbeddingModel == "" {
		c.Knowledge.EmbeddingModel = "text-embedding-3-small"
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]LimitConfig{}
	}
	if _, ok := c.RateLimits["chat"]; !ok {
		c.RateLimits["chat"] = LimitConfig{WindowSeconds: 60, Max: 20}
	}
}

// Validate rejects configurations that cannot be started. Out-of-range cache
// bounds are NOT errors; the cache clamps them.
func (c *Config) Validate() error {
	switch c.Environment {
	case "production", "development", "staging":
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	for name, l := range c.RateLimits {
		if l.Max > 0 && l.WindowSeconds <= 0 {
			return fmt.Errorf("rate limit %q: max set without a window", name)
		}
	}
	for _, s := range c.Tools.Local {
		if s.Name == "" {
			return fmt.Errorf("local tool server missing name")
		}
		switch s.Transport {
		case "", "stdio":
			if s.Command == "" {
				return fmt.Errorf("local tool server %q: stdio transport requires command", s.Name)
			}
		case "sse", "streamable_http":
			if s.URL == "" {
				return fmt.Errorf("local tool server %q: %s transport requires url", s.Name, s.Transport)
			}
		default:
			return fmt.Errorf("local tool server %q: unsupported transport %q", s.Name, s.Transport)
		}
	}
	return nil
}
