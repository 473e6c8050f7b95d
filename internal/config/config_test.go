package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ctxwindow "github.com/haasonsaas/textgen/internal/context"
)

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, "textgen.yaml", `
default_provider: openai
providers:
  openai:
    api_key: sk-test
    default_model: gpt-4o
    context_windows:
      gpt-4-turbo: 20
  perplexity:
    type: openai
    api_key: pplx-test
    base_url: https://api.perplexity.ai
generation:
  max_retries: 3
  max_tokens: 512
  temperature: 0.2
context_window:
  strategy: error
  tokenizer: basic
tools:
  concurrency: 8
  timeout: 5s
retry:
  preset: aggressive
  max_ms: 1000
rate_limit:
  enabled: true
  requests_per_second: 2
logging:
  level: debug
observability:
  metrics: true
  tracing:
    service_name: textgen-test
server:
  addr: 127.0.0.1:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d", cfg.Version)
	}
	if got := cfg.Providers["perplexity"].Type; got != ProviderOpenAI {
		t.Errorf("perplexity type = %q", got)
	}
	if got := cfg.Providers["openai"].Type; got != ProviderOpenAI {
		t.Errorf("openai type defaulted to %q", got)
	}
	if got := cfg.Providers["openai"].ContextWindows["gpt-4-turbo"]; got != 20 {
		t.Errorf("context window override = %d", got)
	}
	if cfg.Generation.MaxRetries == nil || *cfg.Generation.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v", cfg.Generation.MaxRetries)
	}
	if cfg.Generation.MaxTokens == nil || *cfg.Generation.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v", cfg.Generation.MaxTokens)
	}
	if cfg.Tools.Timeout != 5*time.Second || cfg.Tools.ExecConfig().Concurrency != 8 {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
	if cfg.RateLimit.BurstSize != 20 {
		t.Errorf("BurstSize = %d, want default", cfg.RateLimit.BurstSize)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}

	policy := cfg.Retry.BackoffPolicy()
	if policy.InitialMs != 50 || policy.MaxMs != 1000 {
		t.Errorf("BackoffPolicy() = %+v", policy)
	}

	h, err := cfg.ContextWindow.Handler()
	if err != nil || h == nil {
		t.Fatalf("Handler() = %v, %v", h, err)
	}
	if h.Strategy != ctxwindow.StrategyError {
		t.Errorf("Strategy = %s", h.Strategy)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "textgen.yaml", `
server:
  addr: ":8080"
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "default provider missing",
			config: `
default_provider: openai
providers:
  anthropic: {api_key: k}
`,
			wantErr: "default_provider",
		},
		{
			name: "unknown provider type",
			config: `
providers:
  groq: {api_key: k}
`,
			wantErr: "providers.groq",
		},
		{
			name: "missing api key",
			config: `
providers:
  anthropic: {}
`,
			wantErr: "api_key is required",
		},
		{
			name: "azure without endpoint",
			config: `
providers:
  azure: {api_key: k, default_model: gpt-4o}
`,
			wantErr: "base_url is required",
		},
		{
			name: "half aws credentials",
			config: `
providers:
  bedrock: {access_key_id: AKIA}
`,
			wantErr: "secret_access_key",
		},
		{
			name: "non-positive context window",
			config: `
providers:
  openai: {api_key: k, context_windows: {gpt-4o: 0}}
`,
			wantErr: "context_windows.gpt-4o",
		},
		{
			name: "unknown strategy",
			config: `
context_window: {strategy: shrink}
`,
			wantErr: "context_window",
		},
		{
			name: "custom strategy",
			config: `
context_window: {strategy: custom}
`,
			wantErr: "programmatic handler",
		},
		{
			name: "unknown tokenizer",
			config: `
context_window: {tokenizer: tiktoken}
`,
			wantErr: "unknown tokenizer",
		},
		{
			name: "temperature out of range",
			config: `
generation: {temperature: 3}
`,
			wantErr: "temperature",
		},
		{
			name: "negative retries",
			config: `
generation: {max_retries: -1}
`,
			wantErr: "max_retries",
		},
		{
			name: "unknown retry preset",
			config: `
retry: {preset: turbo}
`,
			wantErr: "preset",
		},
		{
			name: "bad log level",
			config: `
logging: {level: loud}
`,
			wantErr: "logging.level",
		},
		{
			name: "newer version",
			config: `
version: 99
`,
			wantErr: "newer than this build",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "textgen.yaml", tt.config))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q in error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadSingleProviderBecomesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, "textgen.yaml", `
providers:
  google: {api_key: k}
`))
	if err != nil {
		t.Fatal(err)
	}
	name, p, err := cfg.Provider("")
	if err != nil || name != "google" || p.Type != ProviderGoogle {
		t.Errorf("Provider(\"\") = %q, %+v, %v", name, p, err)
	}
	if _, _, err := cfg.Provider("openai"); err == nil {
		t.Error("expected error for unconfigured provider")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEXTGEN_TEST_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, "textgen.yaml", `
providers:
  openai:
    api_key: ${TEXTGEN_TEST_KEY}
    default_model: ${TEXTGEN_TEST_MODEL:-gpt-4o-mini}
`))
	if err != nil {
		t.Fatal(err)
	}
	p := cfg.Providers["openai"]
	if p.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", p.APIKey)
	}
	if p.DefaultModel != "gpt-4o-mini" {
		t.Errorf("DefaultModel = %q, want default from reference", p.DefaultModel)
	}
}

func TestExpandEnvLeavesBareDollar(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	if got := expandEnv("costs $5 and $HOME"); got != "costs $5 and $HOME" {
		t.Errorf("expandEnv() = %q", got)
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "providers.yaml", `
providers:
  openai:
    api_key: sk-base
    default_model: gpt-4o
logging:
  level: warn
`)
	path := writeFile(t, dir, "textgen.yaml", `
$include: providers.yaml
providers:
  openai:
    default_model: gpt-4.1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	p := cfg.Providers["openai"]
	if p.APIKey != "sk-base" || p.DefaultModel != "gpt-4.1" {
		t.Errorf("merged provider = %+v", p)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `$include: b.yaml`)
	path := writeFile(t, dir, "b.yaml", `$include: a.yaml`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	cfg, err := Load(writeConfig(t, "textgen.json5", `{
  // comments and trailing commas are allowed
  providers: {
    anthropic: {api_key: "k", default_model: "claude-sonnet-4"},
  },
  tools: {concurrency: 2, timeout: "1m"},
}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider)
	}
	if cfg.Tools.Concurrency != 2 || cfg.Tools.Timeout != time.Minute {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Logging.Level != "info" {
		t.Errorf("Default() = %+v", cfg)
	}
	h, err := cfg.ContextWindow.Handler()
	if err != nil || h == nil || h.Strategy != ctxwindow.StrategyRemove {
		t.Errorf("default handler = %+v, %v", h, err)
	}
	if p := cfg.Retry.BackoffPolicy(); p.InitialMs != 2000 || p.Factor != 2 {
		t.Errorf("default policy = %+v", p)
	}
}

func TestContextWindowHandlerNone(t *testing.T) {
	h, err := ContextWindowConfig{Strategy: "none"}.Handler()
	if err != nil || h != nil {
		t.Errorf("Handler() = %+v, %v; want nil handler", h, err)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	for _, key := range []string{"default_provider", "providers", "context_window", "rate_limit"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("schema missing %q", key)
		}
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), name, contents)
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestFromEnv(t *testing.T) {
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "MISTRAL_API_KEY"} {
		t.Setenv(name, "")
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("FromEnv() does not validate: %v", err)
	}
	if cfg.DefaultProvider != ProviderAnthropic {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider)
	}
	if got := cfg.ProviderNames(); len(got) != 2 || got[0] != "anthropic" || got[1] != "google" {
		t.Errorf("ProviderNames() = %v", got)
	}
	if cfg.Providers["google"].APIKey != "g-key" {
		t.Errorf("google provider = %+v", cfg.Providers["google"])
	}
}
