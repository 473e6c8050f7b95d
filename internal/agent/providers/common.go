package providers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/textgen/internal/agent"
	catalog "github.com/haasonsaas/textgen/internal/models"
	"github.com/haasonsaas/textgen/pkg/models"
)

// DefaultMaxTokens is sent to providers that require an output limit when
// the caller set none.
const DefaultMaxTokens = 4096

// modelInfo resolves the context window of a model. Overrides win over the
// catalog so OpenAI-compatible endpoints can declare their own sizes.
type modelInfo struct {
	id        string
	overrides map[string]int
	catalog   *catalog.Catalog
}

func newModelInfo(id string, overrides map[string]int) modelInfo {
	return modelInfo{id: id, overrides: overrides, catalog: catalog.DefaultCatalog}
}

func (m modelInfo) contextWindow() (int, bool) {
	if n, ok := m.overrides[m.id]; ok && n > 0 {
		return n, true
	}
	if m.catalog == nil {
		return 0, false
	}
	return m.catalog.ContextWindow(m.id)
}

// unsupportedContent reports message content a provider cannot encode.
// It is classified as an invalid request and never retried.
func unsupportedContent(provider, model string, format string, args ...any) *ProviderError {
	return &ProviderError{
		Reason:   FailoverInvalidRequest,
		Provider: provider,
		Model:    model,
		Message:  fmt.Sprintf(format, args...),
	}
}

// toolResultText renders a tool result for providers that take tool output
// as text. Strings pass through; everything else is JSON encoded.
func toolResultText(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	case []byte:
		return string(v)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// toolArgs decodes tool call arguments into an object, treating empty
// arguments as {}.
func toolArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// partText joins the text parts of a structured message.
func partText(parts []models.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == models.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// dataURL returns the URL of an image part, inlining its bytes when the part
// carries data instead of a link.
func dataURL(p models.Part) string {
	if p.URL != "" {
		return p.URL
	}
	mime := p.MimeType
	if mime == "" {
		mime = http.DetectContentType(p.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// parseDataURL splits a base64 data URL into its media type and payload.
func parseDataURL(raw string) (mediaType string, data []byte, ok bool) {
	if !strings.HasPrefix(raw, "data:") {
		return "", nil, false
	}
	meta, payload, found := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return strings.TrimSuffix(meta, ";base64"), decoded, true
}

// imageBytes returns the raw bytes and media type of an image part, decoding
// data URLs. ok is false for remote URLs.
func imageBytes(p models.Part) (mediaType string, data []byte, ok bool) {
	if len(p.Data) > 0 {
		mediaType = p.MimeType
		if mediaType == "" {
			mediaType = http.DetectContentType(p.Data)
		}
		return mediaType, p.Data, true
	}
	return parseDataURL(p.URL)
}

func textPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// samplingWarnings reports settings a provider ignores.
func samplingWarnings(s agent.CallSettings, unsupported ...string) []models.Warning {
	var warnings []models.Warning
	for _, name := range unsupported {
		set := false
		switch name {
		case "top_k":
			set = s.TopK != nil
		case "presence_penalty":
			set = s.PresencePenalty != nil
		case "frequency_penalty":
			set = s.FrequencyPenalty != nil
		case "seed":
			set = s.Seed != nil
		case "logprobs":
			set = s.LogProbs
		case "temperature":
			set = s.Temperature != nil
		case "top_p":
			set = s.TopP != nil
		}
		if set {
			warnings = append(warnings, agent.UnsupportedSetting(name, "ignored by this provider"))
		}
	}
	return warnings
}
