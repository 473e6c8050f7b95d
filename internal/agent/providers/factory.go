package providers

import (
	"context"
	"fmt"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/config"
)

// DefaultMistralBaseURL is the chat completions endpoint used for
// providers of type mistral without a base_url.
const DefaultMistralBaseURL = "https://api.mistral.ai/v1"

// Default models for provider types whose constructors require one.
const (
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultMistralModel = "mistral-large-latest"
)

// NewFromConfig builds the backend for the provider called name. model
// overrides the provider's default_model when non-empty.
func NewFromConfig(ctx context.Context, name string, cfg config.ProviderConfig, model string) (agent.LanguageModel, error) {
	if model == "" {
		model = cfg.DefaultModel
	}

	switch cfg.Type {
	case config.ProviderOpenAI, "":
		if model == "" {
			model = DefaultOpenAIModel
		}
		return NewOpenAIModel(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Organization:   cfg.Organization,
			Model:          model,
			ContextWindows: cfg.ContextWindows,
			Provider:       name,
		})

	case config.ProviderMistral:
		if model == "" {
			model = DefaultMistralModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultMistralBaseURL
		}
		return NewOpenAIModel(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        baseURL,
			Model:          model,
			ContextWindows: cfg.ContextWindows,
			Provider:       name,
		})

	case config.ProviderAzure:
		if model == "" {
			model = cfg.Deployment
		}
		return NewAzureModel(AzureConfig{
			Endpoint:       cfg.BaseURL,
			APIKey:         cfg.APIKey,
			APIVersion:     cfg.APIVersion,
			Model:          model,
			Deployment:     cfg.Deployment,
			ContextWindows: cfg.ContextWindows,
		})

	case config.ProviderAnthropic:
		return NewAnthropicModel(AnthropicConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          model,
			ContextWindows: cfg.ContextWindows,
		})

	case config.ProviderGoogle:
		return NewGoogleModel(ctx, GoogleConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          model,
			ContextWindows: cfg.ContextWindows,
		})

	case config.ProviderBedrock:
		return NewBedrockModel(ctx, BedrockConfig{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			Model:           model,
			ContextWindows:  cfg.ContextWindows,
		})

	default:
		return nil, fmt.Errorf("provider %q has unknown type %q", name, cfg.Type)
	}
}
