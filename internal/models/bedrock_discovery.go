package models

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"golang.org/x/sync/singleflight"

	"github.com/haasonsaas/textgen/internal/observability"
)

const (
	// DefaultBedrockRefreshInterval is how often to refresh the model list.
	DefaultBedrockRefreshInterval = 1 * time.Hour
	// DefaultBedrockContextWindow is used for discovered models that match
	// no known model family.
	DefaultBedrockContextWindow = 32000
	// DefaultBedrockMaxTokens is the default max tokens for discovered models.
	DefaultBedrockMaxTokens = 4096
)

// BedrockDiscoveryConfig configures Bedrock model discovery.
type BedrockDiscoveryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Region  string `yaml:"region" json:"region"`

	// RefreshInterval is how long a discovered list is reused.
	// Default: 1 hour.
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`

	// ProviderFilter limits discovery to specific model providers, for
	// example ["anthropic", "amazon"]. Empty means all providers.
	ProviderFilter []string `yaml:"provider_filter" json:"provider_filter"`

	DefaultContextWindow int `yaml:"default_context_window" json:"default_context_window"`
	DefaultMaxTokens     int `yaml:"default_max_tokens" json:"default_max_tokens"`
}

// BedrockClient is the subset of the Bedrock control plane API used for discovery.
type BedrockClient interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

// BedrockDiscovery lists the text models available in a Bedrock region so
// their context windows can be resolved for sizing.
type BedrockDiscovery struct {
	config BedrockDiscoveryConfig
	logger *observability.Logger

	group     singleflight.Group
	mu        sync.RWMutex
	cache     []*Model
	expiresAt time.Time

	clientFactory func(region string) BedrockClient
}

// NewBedrockDiscovery creates a new Bedrock discovery instance.
func NewBedrockDiscovery(cfg BedrockDiscoveryConfig, logger *observability.Logger) *BedrockDiscovery {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "warn"})
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultBedrockRefreshInterval
	}
	if cfg.DefaultContextWindow <= 0 {
		cfg.DefaultContextWindow = DefaultBedrockContextWindow
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = DefaultBedrockMaxTokens
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &BedrockDiscovery{config: cfg, logger: logger}
}

// Discover returns the available Bedrock text models. Results are cached
// for RefreshInterval and concurrent callers share a single fetch. A failed
// refresh falls back to the previous list when there is one.
func (d *BedrockDiscovery) Discover(ctx context.Context) ([]*Model, error) {
	if !d.config.Enabled {
		return nil, nil
	}

	if cached, ok := d.cached(); ok {
		return cached, nil
	}

	v, err, _ := d.group.Do("discover", func() (any, error) {
		if cached, ok := d.cached(); ok {
			return cached, nil
		}
		models, err := d.fetchModels(ctx)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.cache = models
		d.expiresAt = time.Now().Add(d.config.RefreshInterval)
		d.mu.Unlock()
		return models, nil
	})
	if err != nil {
		d.logger.Warn(ctx, "bedrock discovery failed", "region", d.config.Region, "error", err)
		d.mu.RLock()
		stale := d.cache
		d.mu.RUnlock()
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}
	return v.([]*Model), nil
}

func (d *BedrockDiscovery) cached() ([]*Model, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cache != nil && time.Now().Before(d.expiresAt) {
		return d.cache, true
	}
	return nil, false
}

// RegisterWithCatalog discovers Bedrock models and registers them with the
// catalog. A discovered model that belongs to a known family inherits the
// family's context window and output limit.
func (d *BedrockDiscovery) RegisterWithCatalog(ctx context.Context, catalog *Catalog) error {
	models, err := d.Discover(ctx)
	if err != nil {
		return err
	}

	for _, model := range models {
		if family, ok := catalog.Lookup(model.ID); ok && family.ID != model.ID {
			inherited := *model
			inherited.ContextWindow = family.ContextWindow
			if family.MaxOutputTokens > 0 {
				inherited.MaxOutputTokens = family.MaxOutputTokens
			}
			model = &inherited
		}
		catalog.Register(model)
	}

	d.logger.Info(ctx, "registered bedrock models", "region", d.config.Region, "count", len(models))
	return nil
}

func (d *BedrockDiscovery) fetchModels(ctx context.Context) ([]*Model, error) {
	client, err := d.createClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create bedrock client: %w", err)
	}

	output, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{
		ByOutputModality: types.ModelModalityText,
	})
	if err != nil {
		return nil, fmt.Errorf("list foundation models: %w", err)
	}

	providerFilter := normalizeProviderFilter(d.config.ProviderFilter)
	models := make([]*Model, 0, len(output.ModelSummaries))
	for _, summary := range output.ModelSummaries {
		if !shouldInclude(summary, providerFilter) {
			continue
		}
		models = append(models, d.toModel(summary))
	}

	d.logger.Debug(ctx, "discovered bedrock models",
		"total", len(output.ModelSummaries),
		"included", len(models))
	return models, nil
}

func (d *BedrockDiscovery) createClient(ctx context.Context) (BedrockClient, error) {
	if d.clientFactory != nil {
		return d.clientFactory(d.config.Region), nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(d.config.Region))
	if err != nil {
		return nil, err
	}
	return bedrock.NewFromConfig(cfg), nil
}

// shouldInclude keeps active text-output models from the filtered providers.
func shouldInclude(summary types.FoundationModelSummary, providerFilter []string) bool {
	if summary.ModelId == nil || *summary.ModelId == "" {
		return false
	}
	if !hasTextModality(summary.OutputModalities) {
		return false
	}
	if summary.ModelLifecycle != nil && summary.ModelLifecycle.Status != types.FoundationModelLifecycleStatusActive {
		return false
	}
	if len(providerFilter) == 0 {
		return true
	}
	providerName := extractProviderName(summary)
	for _, p := range providerFilter {
		if p == providerName {
			return true
		}
	}
	return false
}

func (d *BedrockDiscovery) toModel(summary types.FoundationModelSummary) *Model {
	id := *summary.ModelId
	name := id
	if summary.ModelName != nil && *summary.ModelName != "" {
		name = *summary.ModelName
	}

	model := &Model{
		ID:              id,
		Name:            name,
		Provider:        ProviderBedrock,
		Tier:            inferTier(id, name),
		ContextWindow:   d.config.DefaultContextWindow,
		MaxOutputTokens: d.config.DefaultMaxTokens,
		Capabilities:    inferCapabilities(summary),
	}
	if providerName := extractProviderName(summary); providerName != "" {
		model.Description = fmt.Sprintf("%s model via AWS Bedrock", providerName)
	}
	return model
}

// extractProviderName prefers the reported provider name and falls back to
// the model ID prefix (provider.model-name).
func extractProviderName(summary types.FoundationModelSummary) string {
	if summary.ProviderName != nil && *summary.ProviderName != "" {
		return strings.ToLower(*summary.ProviderName)
	}
	if summary.ModelId != nil {
		prefix, _, _ := strings.Cut(*summary.ModelId, ".")
		return strings.ToLower(prefix)
	}
	return ""
}

func hasTextModality(modalities []types.ModelModality) bool {
	for _, m := range modalities {
		if m == types.ModelModalityText {
			return true
		}
	}
	return false
}

func inferTier(id, name string) Tier {
	lower := strings.ToLower(id + " " + name)

	switch {
	case strings.Contains(lower, "opus"), strings.Contains(lower, "large"), strings.Contains(lower, "premier"):
		return TierFlagship
	case strings.Contains(lower, "haiku"), strings.Contains(lower, "mini"), strings.Contains(lower, "lite"):
		return TierFast
	case strings.Contains(lower, "instant"), strings.Contains(lower, "micro"):
		return TierMini
	default:
		return TierStandard
	}
}

func inferCapabilities(summary types.FoundationModelSummary) []Capability {
	var caps []Capability

	for _, m := range summary.InputModalities {
		if m == types.ModelModalityImage {
			caps = append(caps, CapVision)
		}
	}
	for _, c := range summary.CustomizationsSupported {
		if c == types.ModelCustomizationFineTuning {
			caps = append(caps, CapFineTunable)
		}
	}
	for _, inf := range summary.InferenceTypesSupported {
		if inf == types.InferenceTypeOnDemand {
			caps = append(caps, CapTools)
			break
		}
	}
	return caps
}

func normalizeProviderFilter(filter []string) []string {
	if len(filter) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var result []string
	for _, p := range filter {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" && !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// ClearCache forces a refresh on the next Discover.
func (d *BedrockDiscovery) ClearCache() {
	d.mu.Lock()
	d.cache = nil
	d.expiresAt = time.Time{}
	d.mu.Unlock()
}

// SetClientFactory replaces the AWS client constructor.
func (d *BedrockDiscovery) SetClientFactory(factory func(region string) BedrockClient) {
	d.clientFactory = factory
}
