package config

import (
	"errors"
	"fmt"
	"strings"
)

// Provider types understood by the model factory. Any provider name may be
// used as long as Type resolves to one of these.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderBedrock   = "bedrock"
	ProviderMistral   = "mistral"
)

var providerTypes = []string{ProviderOpenAI, ProviderAzure, ProviderAnthropic, ProviderGoogle, ProviderBedrock, ProviderMistral}

// ProviderConfig configures one backend.
type ProviderConfig struct {
	// Type selects the backend implementation. Defaults to the provider's
	// key, so "openai:" needs no type while "perplexity:" sets type: openai.
	Type string `yaml:"type"`

	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`

	// BaseURL points OpenAI-compatible and Anthropic clients at another
	// endpoint. For Azure it is the resource endpoint.
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
	Organization string `yaml:"organization"`

	// Deployment is the Azure deployment name. Defaults to the model.
	Deployment string `yaml:"deployment"`

	// AWS settings for Bedrock. Empty keys use the default credential chain.
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// ContextWindows overrides the catalog context size per model ID.
	ContextWindows map[string]int `yaml:"context_windows"`
}

func (p ProviderConfig) validate() error {
	var errs []error
	known := false
	for _, t := range providerTypes {
		if p.Type == t {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("type %q must be one of %s", p.Type, strings.Join(providerTypes, ", ")))
	}

	switch p.Type {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderMistral:
		if strings.TrimSpace(p.APIKey) == "" {
			errs = append(errs, errors.New("api_key is required"))
		}
	case ProviderAzure:
		if strings.TrimSpace(p.APIKey) == "" {
			errs = append(errs, errors.New("api_key is required"))
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			errs = append(errs, errors.New("base_url is required for azure"))
		}
		if strings.TrimSpace(p.DefaultModel) == "" && strings.TrimSpace(p.Deployment) == "" {
			errs = append(errs, errors.New("default_model or deployment is required for azure"))
		}
	case ProviderBedrock:
		if (p.AccessKeyID == "") != (p.SecretAccessKey == "") {
			errs = append(errs, errors.New("access_key_id and secret_access_key must be set together"))
		}
	}

	for model, size := range p.ContextWindows {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("context_windows.%s must be positive, got %d", model, size))
		}
	}
	return errors.Join(errs...)
}
