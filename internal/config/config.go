package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/haasonsaas/textgen/internal/models"
	"github.com/haasonsaas/textgen/internal/observability"
	"github.com/haasonsaas/textgen/internal/ratelimit"
)

// Config is the main configuration structure for textgen.
type Config struct {
	// Version is the config file format version. Zero means CurrentVersion.
	Version int `yaml:"version"`

	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`

	// BedrockDiscovery lists Bedrock models at startup so their context
	// windows are known without catalog entries.
	BedrockDiscovery models.BedrockDiscoveryConfig `yaml:"bedrock_discovery"`

	Generation    GenerationConfig    `yaml:"generation"`
	ContextWindow ContextWindowConfig `yaml:"context_window"`
	Tools         ToolsConfig         `yaml:"tools"`
	Retry         RetryConfig         `yaml:"retry"`
	RateLimit     ratelimit.Config    `yaml:"rate_limit"`

	Logging       observability.LogConfig `yaml:"logging"`
	Observability ObservabilityConfig     `yaml:"observability"`
	Server        ServerConfig            `yaml:"server"`
}

// Load reads, merges, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no
// providers. It is used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// envKeys maps provider types to the API key variables FromEnv reads.
var envKeys = []struct {
	provider string
	vars     []string
}{
	{ProviderOpenAI, []string{"OPENAI_API_KEY"}},
	{ProviderAnthropic, []string{"ANTHROPIC_API_KEY"}},
	{ProviderGoogle, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}},
	{ProviderMistral, []string{"MISTRAL_API_KEY"}},
}

// FromEnv returns Default with a provider added for every API key found in
// the environment. The first one found becomes the default provider.
func FromEnv() *Config {
	cfg := &Config{Providers: map[string]ProviderConfig{}}
	for _, entry := range envKeys {
		for _, name := range entry.vars {
			key := strings.TrimSpace(os.Getenv(name))
			if key == "" {
				continue
			}
			cfg.Providers[entry.provider] = ProviderConfig{Type: entry.provider, APIKey: key}
			if cfg.DefaultProvider == "" {
				cfg.DefaultProvider = entry.provider
			}
			break
		}
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.DefaultProvider == "" && len(cfg.Providers) == 1 {
		for name := range cfg.Providers {
			cfg.DefaultProvider = name
		}
	}
	for name, p := range cfg.Providers {
		if p.Type == "" {
			p.Type = name
		}
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		cfg.Providers[name] = p
	}
	if cfg.ContextWindow.Strategy == "" {
		cfg.ContextWindow.Strategy = "remove"
	}
	if cfg.ContextWindow.Tokenizer == "" {
		cfg.ContextWindow.Tokenizer = "approx"
	}
	if cfg.RateLimit.Enabled {
		def := ratelimit.DefaultConfig()
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			cfg.RateLimit.RequestsPerSecond = def.RequestsPerSecond
		}
		if cfg.RateLimit.BurstSize <= 0 {
			cfg.RateLimit.BurstSize = def.BurstSize
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "textgen"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

// Validate checks cross-field constraints. It reports every problem found,
// joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.Version != 0 {
		if err := ValidateVersion(c.Version); err != nil {
			errs = append(errs, err)
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider %q is not configured under providers", c.DefaultProvider))
		}
	}
	for _, name := range c.ProviderNames() {
		if err := c.Providers[name].validate(); err != nil {
			errs = append(errs, fmt.Errorf("providers.%s: %w", name, err))
		}
	}

	if err := c.Generation.validate(); err != nil {
		errs = append(errs, fmt.Errorf("generation: %w", err))
	}
	if err := c.ContextWindow.validate(); err != nil {
		errs = append(errs, fmt.Errorf("context_window: %w", err))
	}
	if err := c.Tools.validate(); err != nil {
		errs = append(errs, fmt.Errorf("tools: %w", err))
	}
	if err := c.Retry.validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.BurstSize < 0 {
		errs = append(errs, errors.New("rate_limit: requests_per_second and burst_size must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	if rate := c.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate %v must be between 0 and 1", rate))
	}

	return errors.Join(errs...)
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider returns the named provider config, or the default provider when
// name is empty.
func (c *Config) Provider(name string) (string, ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	if name == "" {
		return "", ProviderConfig{}, errors.New("no provider selected and no default_provider configured")
	}
	p, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("provider %q is not configured", name)
	}
	return name, p, nil
}
