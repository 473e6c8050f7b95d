package providers

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultAzureAPIVersion is used when AzureConfig.APIVersion is empty.
const DefaultAzureAPIVersion = "2024-02-15-preview"

// AzureConfig holds configuration for Azure OpenAI Service.
//
// Azure OpenAI uses a different URL structure and authentication than direct OpenAI:
//   - Base URL: https://{resource-name}.openai.azure.com
//   - API Version: Required query parameter (e.g., 2024-02-15-preview)
//   - Deployment: Model name maps to a deployment name in your Azure resource
type AzureConfig struct {
	// Endpoint is the Azure OpenAI resource endpoint (required)
	Endpoint string

	// APIKey is the Azure OpenAI API key (required)
	APIKey string

	APIVersion string

	// Model is the underlying model name, used for context window lookup.
	Model string

	// Deployment is the deployment name. Defaults to Model.
	Deployment string

	ContextWindows map[string]int

	HTTPClient *http.Client
}

// NewAzureModel creates a chat completions backend for an Azure deployment.
func NewAzureModel(cfg AzureConfig) (*OpenAIModel, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("azure: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("azure: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("azure: model is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAzureAPIVersion
	}
	deployment := cfg.Deployment
	if deployment == "" {
		deployment = cfg.Model
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
	clientConfig.APIVersion = cfg.APIVersion
	clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIModel{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: "azure",
		model:    cfg.Model,
		info:     newModelInfo(cfg.Model, cfg.ContextWindows),
	}, nil
}
