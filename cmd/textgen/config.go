package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/agent/providers"
	"github.com/haasonsaas/textgen/internal/config"
	"github.com/haasonsaas/textgen/internal/models"
	"github.com/haasonsaas/textgen/internal/observability"
	"github.com/haasonsaas/textgen/internal/ratelimit"
)

const defaultConfigName = "textgen.yaml"

// defaultConfigPath honours TEXTGEN_CONFIG before falling back to
// textgen.yaml in the working directory.
func defaultConfigPath() string {
	if path := strings.TrimSpace(os.Getenv("TEXTGEN_CONFIG")); path != "" {
		return path
	}
	return defaultConfigName
}

// loadConfig loads the config file. When the default file does not exist
// and no path was given explicitly, providers come from the environment.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	explicit := cmd.Flags().Changed("config") || strings.TrimSpace(os.Getenv("TEXTGEN_CONFIG")) != ""
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.FromEnv(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// runtime holds the dependencies shared by generate and serve.
type runtime struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	shutdown func(context.Context) error
}

func newRuntime(cfg *config.Config) *runtime {
	rt := &runtime{cfg: cfg, logger: observability.NewLogger(cfg.Logging)}
	if cfg.Observability.Metrics {
		rt.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	rt.tracer, rt.shutdown = observability.NewTracer(cfg.Observability.Tracing)
	return rt
}

// close flushes pending spans.
func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.shutdown(ctx); err != nil {
		rt.logger.Warn(ctx, "tracer shutdown failed", "error", err)
	}
}

// generatorOptions builds the generator configuration from the config file.
func (rt *runtime) generatorOptions() agent.Options {
	opts := agent.Options{
		Logger:      rt.logger,
		Metrics:     rt.metrics,
		Tracer:      rt.tracer,
		ToolExec:    rt.cfg.Tools.ExecConfig(),
		MaxRetries:  rt.cfg.Generation.MaxRetries,
		RetryPolicy: rt.cfg.Retry.BackoffPolicy(),
	}
	if rt.cfg.RateLimit.Enabled {
		opts.Limiter = ratelimit.NewLimiter(rt.cfg.RateLimit)
	}
	return opts
}

// resolveModel builds the backend for a configured provider.
func (rt *runtime) resolveModel(ctx context.Context, provider, model string) (agent.LanguageModel, error) {
	name, pcfg, err := rt.cfg.Provider(provider)
	if err != nil {
		return nil, err
	}
	return providers.NewFromConfig(ctx, name, pcfg, model)
}

// discoverBedrock registers Bedrock foundation models with the default
// catalog so their context windows are known to the backends.
func (rt *runtime) discoverBedrock(ctx context.Context, force bool) (*models.BedrockDiscovery, error) {
	dcfg := rt.cfg.BedrockDiscovery
	if !dcfg.Enabled && !force {
		return nil, nil
	}
	dcfg.Enabled = true
	if dcfg.Region == "" {
		if _, p, err := rt.cfg.Provider(config.ProviderBedrock); err == nil {
			dcfg.Region = p.Region
		}
	}
	discovery := models.NewBedrockDiscovery(dcfg, rt.logger.WithFields("component", "bedrock_discovery"))
	if err := discovery.RegisterWithCatalog(ctx, models.DefaultCatalog); err != nil {
		return discovery, fmt.Errorf("bedrock discovery: %w", err)
	}
	return discovery, nil
}
