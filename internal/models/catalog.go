// Package models provides a catalog of LLM models and the context windows
// used to size prompts before they are sent.
package models

import (
	"sort"
	"strings"
	"sync"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderAzure     Provider = "azure"
	ProviderBedrock   Provider = "bedrock"
	ProviderMistral   Provider = "mistral"
)

// Capability identifies a model capability.
type Capability string

const (
	CapVision      Capability = "vision"       // Can process images
	CapTools       Capability = "tools"        // Supports function calling
	CapJSON        Capability = "json"         // Supports JSON mode
	CapReasoning   Capability = "reasoning"    // Extended reasoning
	CapFineTunable Capability = "fine_tunable" // Can be fine-tuned
	CapPDFInput    Capability = "pdf_input"    // Can process PDFs directly
	CapLongContext Capability = "long_context" // 100k+ context window
)

// Tier identifies a model's quality/cost tier.
type Tier string

const (
	TierFlagship Tier = "flagship"
	TierStandard Tier = "standard"
	TierFast     Tier = "fast"
	TierMini     Tier = "mini"
)

// Model represents an LLM model with its capabilities and metadata.
type Model struct {
	// ID is the model identifier used in API calls. Dated or versioned
	// variants of ID resolve to this entry through Lookup.
	ID string `json:"id"`

	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
	Tier     Tier     `json:"tier"`

	// ContextWindow is the maximum prompt size in tokens
	ContextWindow int `json:"context_window"`

	// MaxOutputTokens is the maximum output size
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	Capabilities []Capability `json:"capabilities"`

	// Aliases are alternative names for this model
	Aliases []string `json:"aliases,omitempty"`

	Deprecated  bool   `json:"deprecated,omitempty"`
	Description string `json:"description,omitempty"`
}

// HasCapability checks if the model has a specific capability.
func (m *Model) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// SupportsTools returns true if the model supports function calling.
func (m *Model) SupportsTools() bool {
	return m.HasCapability(CapTools)
}

// Catalog manages a collection of models.
type Catalog struct {
	mu      sync.RWMutex
	models  map[string]*Model // id -> model
	aliases map[string]string // alias -> id
}

// NewCatalog creates a catalog preloaded with the built-in models.
func NewCatalog() *Catalog {
	c := NewEmptyCatalog()
	c.registerBuiltinModels()
	return c
}

// NewEmptyCatalog creates a catalog without built-in models.
func NewEmptyCatalog() *Catalog {
	return &Catalog{
		models:  make(map[string]*Model),
		aliases: make(map[string]string),
	}
}

// Register adds a model to the catalog, replacing any model with the same ID.
func (c *Catalog) Register(model *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models[model.ID] = model
	for _, alias := range model.Aliases {
		c.aliases[strings.ToLower(alias)] = model.ID
	}
}

// Get retrieves a model by exact ID or alias.
func (c *Catalog) Get(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(id)
}

func (c *Catalog) getLocked(id string) (*Model, bool) {
	if model, ok := c.models[id]; ok {
		return model, true
	}
	if realID, ok := c.aliases[strings.ToLower(id)]; ok {
		return c.models[realID], true
	}
	return nil, false
}

// Lookup resolves id to a catalog model. Exact IDs and aliases win;
// otherwise the registered ID that is the longest prefix of id is used, so
// "gpt-4o-2024-08-06" resolves to "gpt-4o" and
// "anthropic.claude-3-5-haiku-20241022-v1:0" to "anthropic.claude-3-5-haiku".
// Bedrock cross-region prefixes such as "us." are ignored.
func (c *Catalog) Lookup(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if model, ok := c.getLocked(id); ok {
		return model, true
	}

	candidate := strings.ToLower(stripRegionPrefix(id))
	var best *Model
	for key, model := range c.models {
		k := strings.ToLower(key)
		if strings.HasPrefix(candidate, k) && isBoundary(candidate, len(k)) {
			if best == nil || len(k) > len(best.ID) {
				best = model
			}
		}
	}
	return best, best != nil
}

// ContextWindow returns the context window for id, and false when the
// model is unknown.
func (c *Catalog) ContextWindow(id string) (int, bool) {
	model, ok := c.Lookup(id)
	if !ok || model.ContextWindow <= 0 {
		return 0, false
	}
	return model.ContextWindow, true
}

func stripRegionPrefix(id string) string {
	for _, prefix := range []string{"us.", "eu.", "apac.", "global."} {
		if strings.HasPrefix(id, prefix) {
			return strings.TrimPrefix(id, prefix)
		}
	}
	return id
}

// isBoundary reports whether a prefix match of length n ends at a
// separator, so "gpt-4" does not claim "gpt-40".
func isBoundary(s string, n int) bool {
	if n == len(s) {
		return true
	}
	switch s[n] {
	case '-', ':', '@', '.', '/':
		return true
	}
	return false
}

// List returns all models matching filter, ordered by provider, tier and name.
func (c *Catalog) List(filter *Filter) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Model
	for _, model := range c.models {
		if filter.Matches(model) {
			result = append(result, model)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Provider != result[j].Provider {
			return result[i].Provider < result[j].Provider
		}
		if result[i].Tier != result[j].Tier {
			return tierRank(result[i].Tier) < tierRank(result[j].Tier)
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// ListByProvider returns all models for a provider.
func (c *Catalog) ListByProvider(provider Provider) []*Model {
	return c.List(&Filter{Providers: []Provider{provider}})
}

// Filter for querying models.
type Filter struct {
	Providers []Provider

	// RequiredCapabilities must all be present
	RequiredCapabilities []Capability

	MinContextWindow int

	IncludeDeprecated bool
}

// Matches checks if a model matches the filter.
func (f *Filter) Matches(m *Model) bool {
	if f == nil {
		return !m.Deprecated
	}

	if len(f.Providers) > 0 {
		found := false
		for _, p := range f.Providers {
			if p == m.Provider {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, cap := range f.RequiredCapabilities {
		if !m.HasCapability(cap) {
			return false
		}
	}

	if f.MinContextWindow > 0 && m.ContextWindow < f.MinContextWindow {
		return false
	}

	if !f.IncludeDeprecated && m.Deprecated {
		return false
	}

	return true
}

func tierRank(t Tier) int {
	switch t {
	case TierFlagship:
		return 0
	case TierStandard:
		return 1
	case TierFast:
		return 2
	case TierMini:
		return 3
	default:
		return 4
	}
}

func (c *Catalog) registerBuiltinModels() {
	claude := []Capability{CapVision, CapTools, CapJSON, CapLongContext, CapPDFInput}

	// Anthropic
	c.Register(&Model{
		ID: "claude-opus-4", Name: "Claude Opus 4", Provider: ProviderAnthropic, Tier: TierFlagship,
		ContextWindow: 200000, MaxOutputTokens: 32000, Capabilities: claude,
		Aliases: []string{"opus"},
	})
	c.Register(&Model{
		ID: "claude-sonnet-4", Name: "Claude Sonnet 4", Provider: ProviderAnthropic, Tier: TierStandard,
		ContextWindow: 200000, MaxOutputTokens: 64000, Capabilities: claude,
		Aliases: []string{"sonnet"},
	})
	c.Register(&Model{
		ID: "claude-3-5-sonnet", Name: "Claude 3.5 Sonnet", Provider: ProviderAnthropic, Tier: TierStandard,
		ContextWindow: 200000, MaxOutputTokens: 8192, Capabilities: claude,
		Aliases: []string{"claude-3-5-sonnet-latest"}, Deprecated: true,
	})
	c.Register(&Model{
		ID: "claude-3-5-haiku", Name: "Claude 3.5 Haiku", Provider: ProviderAnthropic, Tier: TierFast,
		ContextWindow: 200000, MaxOutputTokens: 8192, Capabilities: claude,
		Aliases: []string{"claude-3-5-haiku-latest", "haiku"},
	})

	// OpenAI
	c.Register(&Model{
		ID: "gpt-4o", Name: "GPT-4o", Provider: ProviderOpenAI, Tier: TierStandard,
		ContextWindow: 128000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapLongContext},
	})
	c.Register(&Model{
		ID: "gpt-4o-mini", Name: "GPT-4o Mini", Provider: ProviderOpenAI, Tier: TierFast,
		ContextWindow: 128000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapLongContext},
	})
	c.Register(&Model{
		ID: "gpt-4.1", Name: "GPT-4.1", Provider: ProviderOpenAI, Tier: TierFlagship,
		ContextWindow: 1047576, MaxOutputTokens: 32768,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapLongContext},
	})
	c.Register(&Model{
		ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Provider: ProviderOpenAI, Tier: TierStandard,
		ContextWindow: 128000, MaxOutputTokens: 4096,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapLongContext}, Deprecated: true,
	})
	c.Register(&Model{
		ID: "gpt-4", Name: "GPT-4", Provider: ProviderOpenAI, Tier: TierStandard,
		ContextWindow: 8192, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapTools}, Deprecated: true,
	})
	c.Register(&Model{
		ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: ProviderOpenAI, Tier: TierMini,
		ContextWindow: 16385, MaxOutputTokens: 4096,
		Capabilities: []Capability{CapTools, CapJSON, CapFineTunable}, Deprecated: true,
	})
	c.Register(&Model{
		ID: "o3-mini", Name: "o3-mini", Provider: ProviderOpenAI, Tier: TierStandard,
		ContextWindow: 200000, MaxOutputTokens: 100000,
		Capabilities: []Capability{CapTools, CapReasoning, CapJSON, CapLongContext},
	})

	// Google
	c.Register(&Model{
		ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: ProviderGoogle, Tier: TierFlagship,
		ContextWindow: 1048576, MaxOutputTokens: 65536,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapReasoning, CapLongContext, CapPDFInput},
	})
	c.Register(&Model{
		ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: ProviderGoogle, Tier: TierFast,
		ContextWindow: 1048576, MaxOutputTokens: 65536,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapLongContext, CapPDFInput},
	})
	c.Register(&Model{
		ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: ProviderGoogle, Tier: TierFast,
		ContextWindow: 1048576, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapVision, CapTools, CapJSON, CapLongContext},
	})

	// Mistral, served through its chat completions endpoint
	c.Register(&Model{
		ID: "mistral-large", Name: "Mistral Large", Provider: ProviderMistral, Tier: TierFlagship,
		ContextWindow: 131072, Capabilities: []Capability{CapTools, CapJSON, CapLongContext},
		Aliases: []string{"mistral-large-latest"},
	})
	c.Register(&Model{
		ID: "mistral-medium", Name: "Mistral Medium", Provider: ProviderMistral, Tier: TierStandard,
		ContextWindow: 32000, Capabilities: []Capability{CapTools, CapJSON},
		Aliases: []string{"mistral-medium-latest"}, Deprecated: true,
	})
	c.Register(&Model{
		ID: "mistral-small", Name: "Mistral Small", Provider: ProviderMistral, Tier: TierFast,
		ContextWindow: 32000, Capabilities: []Capability{CapTools, CapJSON},
		Aliases: []string{"mistral-small-latest"},
	})
	c.Register(&Model{
		ID: "open-mixtral-8x7b", Name: "Mixtral 8x7B", Provider: ProviderMistral, Tier: TierMini,
		ContextWindow: 32768, Capabilities: []Capability{CapTools},
	})
	c.Register(&Model{
		ID: "open-mistral-7b", Name: "Mistral 7B", Provider: ProviderMistral, Tier: TierMini,
		ContextWindow: 32768,
	})

	// Bedrock model families
	c.Register(&Model{
		ID: "anthropic.claude-sonnet-4", Name: "Claude Sonnet 4 (Bedrock)", Provider: ProviderBedrock, Tier: TierStandard,
		ContextWindow: 200000, MaxOutputTokens: 64000, Capabilities: claude,
	})
	c.Register(&Model{
		ID: "anthropic.claude-3-5-sonnet", Name: "Claude 3.5 Sonnet (Bedrock)", Provider: ProviderBedrock, Tier: TierStandard,
		ContextWindow: 200000, MaxOutputTokens: 8192, Capabilities: claude,
	})
	c.Register(&Model{
		ID: "anthropic.claude-3-5-haiku", Name: "Claude 3.5 Haiku (Bedrock)", Provider: ProviderBedrock, Tier: TierFast,
		ContextWindow: 200000, MaxOutputTokens: 8192, Capabilities: claude,
	})
	c.Register(&Model{
		ID: "amazon.nova-pro", Name: "Amazon Nova Pro", Provider: ProviderBedrock, Tier: TierStandard,
		ContextWindow: 300000, MaxOutputTokens: 5120,
		Capabilities: []Capability{CapVision, CapTools, CapLongContext},
	})
	c.Register(&Model{
		ID: "amazon.nova-lite", Name: "Amazon Nova Lite", Provider: ProviderBedrock, Tier: TierFast,
		ContextWindow: 300000, MaxOutputTokens: 5120,
		Capabilities: []Capability{CapVision, CapTools, CapLongContext},
	})
	c.Register(&Model{
		ID: "meta.llama3-1-70b-instruct", Name: "Llama 3.1 70B Instruct", Provider: ProviderBedrock, Tier: TierStandard,
		ContextWindow: 128000, MaxOutputTokens: 2048,
		Capabilities: []Capability{CapTools, CapLongContext},
	})
}

// DefaultCatalog is the process-wide catalog used by the providers.
var DefaultCatalog = NewCatalog()

// Get retrieves a model from the default catalog.
func Get(id string) (*Model, bool) {
	return DefaultCatalog.Get(id)
}

// Lookup resolves id against the default catalog.
func Lookup(id string) (*Model, bool) {
	return DefaultCatalog.Lookup(id)
}

// ContextWindow returns the default catalog's context window for id.
func ContextWindow(id string) (int, bool) {
	return DefaultCatalog.ContextWindow(id)
}

// List returns models from the default catalog.
func List(filter *Filter) []*Model {
	return DefaultCatalog.List(filter)
}
