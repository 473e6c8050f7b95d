package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/textgen/internal/models"
	"github.com/haasonsaas/textgen/internal/ratelimit"
	"github.com/haasonsaas/textgen/internal/server"
)

// runServe implements the serve command.
// It handles configuration loading, server construction, and graceful shutdown.
func runServe(cmd *cobra.Command, configPath, addr string, debug bool) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	rt := newRuntime(cfg)
	defer rt.close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.logger.Info(ctx, "starting textgen",
		"version", version,
		"commit", commit,
		"providers", cfg.ProviderNames(),
		"default_provider", cfg.DefaultProvider,
		"metrics", cfg.Observability.Metrics,
	)

	discovery, err := rt.discoverBedrock(ctx, false)
	if err != nil {
		rt.logger.Warn(ctx, "continuing without discovered bedrock models", "error", err)
	}
	if discovery != nil {
		go refreshBedrock(ctx, rt, discovery)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit)
	}

	srv, err := server.New(cfg, rt.resolveModel, server.Options{
		Logger:    rt.logger,
		Metrics:   rt.metrics,
		Tracer:    rt.tracer,
		Limiter:   limiter,
		Generator: rt.generatorOptions(),
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// refreshBedrock re-registers discovered models until ctx is done.
func refreshBedrock(ctx context.Context, rt *runtime, discovery *models.BedrockDiscovery) {
	interval := rt.cfg.BedrockDiscovery.RefreshInterval
	if interval <= 0 {
		interval = models.DefaultBedrockRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The tick and the cache expiry share one interval; drop the
			// cache so a tick landing just before expiry still lists.
			discovery.ClearCache()
			if err := discovery.RegisterWithCatalog(ctx, models.DefaultCatalog); err != nil {
				rt.logger.Warn(ctx, "bedrock refresh failed", "error", err)
			}
		}
	}
}
