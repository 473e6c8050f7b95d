package models

import (
	"testing"
)

func TestCatalog_Get(t *testing.T) {
	c := NewCatalog()

	model, ok := c.Get("claude-opus-4")
	if !ok {
		t.Fatal("expected to find claude-opus-4")
	}
	if model.Name != "Claude Opus 4" {
		t.Errorf("Name = %s, want Claude Opus 4", model.Name)
	}

	// Aliases are case-insensitive
	model, ok = c.Get("Sonnet")
	if !ok {
		t.Fatal("expected to find sonnet alias")
	}
	if model.ID != "claude-sonnet-4" {
		t.Errorf("ID = %s, want claude-sonnet-4", model.ID)
	}

	if _, ok := c.Get("unknown-model"); ok {
		t.Error("should not find unknown-model")
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		id     string
		wantID string
		found  bool
	}{
		{"gpt-4o", "gpt-4o", true},
		{"gpt-4o-2024-08-06", "gpt-4o", true},
		{"gpt-4o-mini-2024-07-18", "gpt-4o-mini", true},
		{"gpt-4-0613", "gpt-4", true},
		{"gpt-40", "", false},
		{"claude-3-5-haiku-20241022", "claude-3-5-haiku", true},
		{"claude-sonnet-4-20250514", "claude-sonnet-4", true},
		{"anthropic.claude-3-5-haiku-20241022-v1:0", "anthropic.claude-3-5-haiku", true},
		{"us.anthropic.claude-sonnet-4-20250514-v1:0", "anthropic.claude-sonnet-4", true},
		{"gemini-2.0-flash-001", "gemini-2.0-flash", true},
		{"haiku", "claude-3-5-haiku", true},
		{"mistral-large-latest", "mistral-large", true},
		{"mistral-small-2409", "mistral-small", true},
		{"llama-unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			model, ok := c.Lookup(tt.id)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.id, ok, tt.found)
			}
			if ok && model.ID != tt.wantID {
				t.Errorf("Lookup(%q) = %s, want %s", tt.id, model.ID, tt.wantID)
			}
		})
	}
}

func TestCatalog_ContextWindow(t *testing.T) {
	c := NewCatalog()

	if n, ok := c.ContextWindow("gpt-4-0613"); !ok || n != 8192 {
		t.Errorf("ContextWindow(gpt-4-0613) = %d, %v; want 8192, true", n, ok)
	}
	if n, ok := c.ContextWindow("claude-3-5-sonnet-20241022"); !ok || n != 200000 {
		t.Errorf("ContextWindow(claude-3-5-sonnet-20241022) = %d, %v; want 200000, true", n, ok)
	}
	if _, ok := c.ContextWindow("mystery"); ok {
		t.Error("unknown model should have no context window")
	}

	c.Register(&Model{ID: "zero-window", Provider: ProviderOpenAI})
	if _, ok := c.ContextWindow("zero-window"); ok {
		t.Error("model without a window should report none")
	}
}

func TestModel_Capabilities(t *testing.T) {
	model := &Model{
		ID:           "test",
		Capabilities: []Capability{CapVision, CapTools},
	}

	if !model.HasCapability(CapVision) {
		t.Error("should have vision capability")
	}
	if !model.SupportsTools() {
		t.Error("should support tools")
	}
	if model.HasCapability(CapReasoning) {
		t.Error("should not have reasoning capability")
	}
}

func TestCatalog_List(t *testing.T) {
	c := NewCatalog()

	all := c.List(nil)
	if len(all) == 0 {
		t.Fatal("expected built-in models")
	}
	for _, m := range all {
		if m.Deprecated {
			t.Errorf("nil filter returned deprecated model %s", m.ID)
		}
	}

	for i := 1; i < len(all); i++ {
		if all[i-1].Provider > all[i].Provider {
			t.Fatalf("models not ordered by provider: %s before %s", all[i-1].Provider, all[i].Provider)
		}
	}

	anthropic := c.ListByProvider(ProviderAnthropic)
	if len(anthropic) == 0 {
		t.Fatal("expected anthropic models")
	}
	if anthropic[0].Tier != TierFlagship {
		t.Errorf("first anthropic model tier = %s, want flagship", anthropic[0].Tier)
	}
	for _, m := range anthropic {
		if m.Provider != ProviderAnthropic {
			t.Errorf("unexpected provider %s", m.Provider)
		}
	}
}

func TestFilter_Matches(t *testing.T) {
	model := &Model{
		ID:            "test",
		Provider:      ProviderOpenAI,
		ContextWindow: 128000,
		Capabilities:  []Capability{CapTools, CapVision},
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &Filter{}, true},
		{"matching provider", &Filter{Providers: []Provider{ProviderOpenAI, ProviderGoogle}}, true},
		{"other provider", &Filter{Providers: []Provider{ProviderAnthropic}}, false},
		{"has capabilities", &Filter{RequiredCapabilities: []Capability{CapTools, CapVision}}, true},
		{"missing capability", &Filter{RequiredCapabilities: []Capability{CapReasoning}}, false},
		{"window large enough", &Filter{MinContextWindow: 100000}, true},
		{"window too small", &Filter{MinContextWindow: 200000}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(model); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Deprecated(t *testing.T) {
	model := &Model{ID: "old", Provider: ProviderOpenAI, Deprecated: true}

	if (&Filter{}).Matches(model) {
		t.Error("deprecated model should be excluded by default")
	}
	if !(&Filter{IncludeDeprecated: true}).Matches(model) {
		t.Error("deprecated model should match with IncludeDeprecated")
	}
}

func TestDefaultCatalog(t *testing.T) {
	if _, ok := Get("gpt-4o"); !ok {
		t.Error("default catalog should contain gpt-4o")
	}
	if _, ok := Lookup("gpt-4o-2024-05-13"); !ok {
		t.Error("default catalog should resolve dated gpt-4o ids")
	}
	if n, ok := ContextWindow("gemini-2.5-pro"); !ok || n != 1048576 {
		t.Errorf("ContextWindow(gemini-2.5-pro) = %d, %v", n, ok)
	}
	if len(List(&Filter{Providers: []Provider{ProviderBedrock}})) == 0 {
		t.Error("default catalog should list bedrock families")
	}
}
