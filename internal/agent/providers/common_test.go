package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/pkg/models"
)

func TestToolResultText(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"nil", nil, ""},
		{"string", "sunny", "sunny"},
		{"raw json", json.RawMessage(`{"a":1}`), `{"a":1}`},
		{"bytes", []byte("raw"), "raw"},
		{"map", map[string]any{"temp": 21}, `{"temp":21}`},
		{"number", 42, "42"},
		{"unmarshalable", func() {}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toolResultText(tt.result)
			if tt.name == "unmarshalable" {
				if got == "" {
					t.Error("expected a fallback rendering")
				}
				return
			}
			if got != tt.want {
				t.Errorf("toolResultText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolArgs(t *testing.T) {
	args, err := toolArgs(nil)
	if err != nil || len(args) != 0 {
		t.Errorf("empty args = %v, %v", args, err)
	}
	args, err = toolArgs(json.RawMessage(`{"q":"go"}`))
	if err != nil || args["q"] != "go" {
		t.Errorf("args = %v, %v", args, err)
	}
	if _, err := toolArgs(json.RawMessage(`[1]`)); err == nil {
		t.Error("expected error for non-object args")
	}
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		url      string
		wantType string
		wantData string
		wantOK   bool
	}{
		{"data:image/png;base64,aGVsbG8=", "image/png", "hello", true},
		{"data:text/plain,hello", "", "", false},
		{"data:image/png;base64,!!!", "", "", false},
		{"https://example.com/a.png", "", "", false},
	}
	for _, tt := range tests {
		mediaType, data, ok := parseDataURL(tt.url)
		if ok != tt.wantOK || mediaType != tt.wantType || string(data) != tt.wantData {
			t.Errorf("parseDataURL(%q) = %q, %q, %v", tt.url, mediaType, data, ok)
		}
	}
}

func TestDataURL(t *testing.T) {
	if got := dataURL(models.Part{URL: "https://example.com/a.png"}); got != "https://example.com/a.png" {
		t.Errorf("remote URL = %q", got)
	}
	if got := dataURL(models.Part{MimeType: "image/gif", Data: []byte("hello")}); got != "data:image/gif;base64,aGVsbG8=" {
		t.Errorf("inline URL = %q", got)
	}
}

func TestModelInfo_ContextWindow(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		overrides map[string]int
		want      int
		wantOK    bool
	}{
		{"catalog", "gpt-4o", nil, 128000, true},
		{"dated catalog id", "claude-3-5-haiku-20241022", nil, 200000, true},
		{"override", "gpt-4o", map[string]int{"gpt-4o": 64000}, 64000, true},
		{"zero override ignored", "gpt-4o", map[string]int{"gpt-4o": 0}, 128000, true},
		{"unknown", "my-local-model", nil, 0, false},
		{"unknown with override", "my-local-model", map[string]int{"my-local-model": 32768}, 32768, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := newModelInfo(tt.id, tt.overrides).contextWindow()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("contextWindow() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSamplingWarnings(t *testing.T) {
	s := agent.CallSettings{TopK: agent.Ptr(3), Seed: agent.Ptr(1), LogProbs: true}

	warnings := samplingWarnings(s, "top_k", "presence_penalty", "logprobs")
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2: %+v", len(warnings), warnings)
	}
	if warnings[0].Setting != "top_k" || warnings[1].Setting != "logprobs" {
		t.Errorf("warnings = %+v", warnings)
	}
	for _, w := range warnings {
		if w.Type != models.WarningUnsupportedSetting {
			t.Errorf("warning type = %s", w.Type)
		}
	}

	if got := samplingWarnings(agent.CallSettings{}, "top_k", "seed"); len(got) != 0 {
		t.Errorf("unset settings produced warnings: %+v", got)
	}
}
