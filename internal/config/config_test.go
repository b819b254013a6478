package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "aria.yaml", `
listen: ":9090"
environment: development
providers:
  anthropic:
    api_key: file-key
cache:
  max_entries: 200
  ttl_seconds: 600
rate_limits:
  chat:
    window_seconds: 30
    max: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("unexpected listen %q", cfg.Listen)
	}
	if cfg.Providers.Anthropic.APIKey != "file-key" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Errorf("unexpected anthropic key %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Cache.MaxEntries != 200 || cfg.Cache.TTLSeconds != 600 {
		t.Errorf("cache config not loaded: %+v", cfg.Cache)
	}
	chat := cfg.RateLimits["chat"]
	if chat.Max != 5 || chat.WindowSeconds != 30 {
		t.Errorf("chat limit not loaded: %+v", chat)
	}
	if !cfg.LocalToolsActive() {
		t.Error("development must activate local tools")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ARIA_LISTEN", ":7777")

	path := writeConfig(t, "aria.yaml", `
listen: ":9090"
providers:
  anthropic:
    api_key: file-key
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "env-key" {
		t.Errorf("env must win over file, got %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Listen != ":7777" {
		t.Errorf("env must win over file, got %q", cfg.Listen)
	}
}

func TestLoad_RateOverridesFromEnv(t *testing.T) {
	t.Setenv("ARIA_RATE_OVERRIDES", `{"gpt-4o":{"input_per_1k":0.002,"output_per_1k":0.008}}`)

	path := writeConfig(t, "aria.yaml", "listen: \":8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, ok := cfg.Rates["gpt-4o"]
	if !ok {
		t.Fatal("expected rate override from env")
	}
	if r.InputPer1K != 0.002 || r.OutputPer1K != 0.008 {
		t.Errorf("unexpected rate %+v", r)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("default listen should be :8080, got %q", cfg.Listen)
	}
	if cfg.Environment != "production" && os.Getenv("ARIA_ENV") == "" {
		t.Errorf("default environment should be production, got %q", cfg.Environment)
	}
	if cfg.Knowledge.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("unexpected default embedding model %q", cfg.Knowledge.EmbeddingModel)
	}
	chat, ok := cfg.RateLimits["chat"]
	if !ok || chat.Max != 20 || chat.WindowSeconds != 60 {
		t.Errorf("expected default chat limit 20/60s, got %+v", chat)
	}
	if cfg.LocalToolsActive() {
		t.Error("local tools must be inactive in production by default")
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad environment", "environment: testing\n"},
		{"limit without window", "rate_limits:\n  chat:\n    max: 5\n"},
		{"local tool missing command", "tools:\n  local:\n    - name: helper\n"},
		{"local tool missing name", "tools:\n  local:\n    - command: helper\n"},
		{"local tool bad transport", "tools:\n  local:\n    - name: helper\n      transport: pigeon\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeConfig(t, "aria.yaml", c.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected validation error for %s", c.name)
			}
		})
	}
}
